package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/remote"
	"github.com/odvcencio/jig/pkg/view"
)

// ErrNotFastForward is returned when moving a bookmark to a commit that
// does not descend from its current target.
var ErrNotFastForward = errors.New("bookmark move is not a fast-forward")

// CreateBookmark points a new local bookmark at id.
func (mut *MutableRepo) CreateBookmark(name string, id object.Hash) error {
	if name == "" {
		return fmt.Errorf("create bookmark: name is required")
	}
	if mut.view.LocalBookmark(name).IsPresent() {
		return fmt.Errorf("create bookmark %s: already exists", name)
	}
	if _, err := mut.ReadCommit(id); err != nil {
		return fmt.Errorf("create bookmark %s: %w", name, err)
	}
	mut.view.SetLocalBookmark(name, view.Normal(id))
	return mut.AddHead(id)
}

// SetBookmark moves a local bookmark to id, creating it when absent. Unless
// allowBackwards is set, id must descend from every commit the bookmark
// currently points at.
func (mut *MutableRepo) SetBookmark(name string, id object.Hash, allowBackwards bool) error {
	if _, err := mut.ReadCommit(id); err != nil {
		return fmt.Errorf("set bookmark %s: %w", name, err)
	}
	current := mut.view.LocalBookmark(name)
	if !allowBackwards {
		for _, old := range current.AddedIDs() {
			ok, err := mut.repo.index.IsAncestor(old, id)
			if err != nil {
				return fmt.Errorf("set bookmark %s: %w", name, err)
			}
			if !ok {
				return fmt.Errorf("set bookmark %s from %s to %s: %w", name, old.Short(12), id.Short(12), ErrNotFastForward)
			}
		}
	}
	mut.view.SetLocalBookmark(name, view.Normal(id))
	return mut.AddHead(id)
}

// DeleteBookmark removes a local bookmark. Remote records are kept so a
// later push deletes the bookmark on the remote.
func (mut *MutableRepo) DeleteBookmark(name string) error {
	if mut.view.LocalBookmark(name).IsAbsent() {
		return fmt.Errorf("delete bookmark %s: %w", name, ErrNoSuchSymbol)
	}
	mut.view.SetLocalBookmark(name, view.Absent())
	return nil
}

// ImportResult describes what importing a remote bookmark changed.
type ImportResult struct {
	Changed      bool
	LocalChanged bool
	Local        view.RefTarget
}

// ImportRemote records that bookmark name on remote now points at target.
// A tracked bookmark carries the remote move over to the local bookmark
// with a three-way merge, so concurrent local and remote moves become a
// conflict instead of one side winning. Commits in target become visible.
func (mut *MutableRepo) ImportRemote(name, remoteName string, target view.RefTarget) (ImportResult, error) {
	sym := view.RemoteRefSymbol{Name: name, Remote: remoteName}
	old, known := mut.view.RemoteBookmarks[sym]
	local := mut.view.LocalBookmark(name)
	if old.Target.Equal(target) {
		return ImportResult{Local: local}, nil
	}

	state := old.State
	if !known && mut.repo.Settings.Bookmarks.AutoTrack {
		state = view.RemoteRefTracking
	}
	for _, id := range target.AddedIDs() {
		if err := mut.AddHead(id); err != nil {
			return ImportResult{}, fmt.Errorf("import %s: %w", sym, err)
		}
	}
	mut.view.SetRemoteBookmark(sym, view.RemoteRef{Target: target, State: state})

	res := ImportResult{Changed: true, Local: local}
	if state != view.RemoteRefTracking {
		return res, nil
	}
	merged, err := view.MergeRefTargets(mut.repo.index, local, old.Target, target)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import %s: %w", sym, err)
	}
	if !merged.Equal(local) {
		mut.view.SetLocalBookmark(name, merged)
		res.LocalChanged = true
		res.Local = merged
	}
	return res, nil
}

// TrackBookmark starts tracking name@remote. The remote target is merged
// into the local bookmark as if it had just been imported.
func (mut *MutableRepo) TrackBookmark(name, remoteName string) error {
	sym := view.RemoteRefSymbol{Name: name, Remote: remoteName}
	ref, ok := mut.view.RemoteBookmarks[sym]
	if !ok {
		return fmt.Errorf("track %s: %w", sym, ErrNoSuchSymbol)
	}
	if ref.IsTracking() {
		return nil
	}
	merged, err := view.MergeRefTargets(mut.repo.index, mut.view.LocalBookmark(name), view.Absent(), ref.Target)
	if err != nil {
		return fmt.Errorf("track %s: %w", sym, err)
	}
	mut.view.SetLocalBookmark(name, merged)
	ref.State = view.RemoteRefTracking
	mut.view.RemoteBookmarks[sym] = ref
	return nil
}

// UntrackBookmark stops tracking name@remote. The local bookmark is left
// where it is.
func (mut *MutableRepo) UntrackBookmark(name, remoteName string) error {
	sym := view.RemoteRefSymbol{Name: name, Remote: remoteName}
	ref, ok := mut.view.RemoteBookmarks[sym]
	if !ok {
		return fmt.Errorf("untrack %s: %w", sym, ErrNoSuchSymbol)
	}
	if ref.Target.IsAbsent() {
		delete(mut.view.RemoteBookmarks, sym)
		return nil
	}
	ref.State = view.RemoteRefNew
	mut.view.RemoteBookmarks[sym] = ref
	return nil
}

// FetchResult summarizes a fetch.
type FetchResult struct {
	Objects int
	Updated []string
}

// Fetch downloads the bookmarks of remoteName and the objects they need,
// then imports every bookmark. Bookmarks that disappeared from the remote
// are imported as absent.
func (mut *MutableRepo) Fetch(ctx context.Context, t remote.Transport, remoteName string) (FetchResult, error) {
	remoteBookmarks, err := t.ListBookmarks(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", remoteName, err)
	}
	wants := make([]object.Hash, 0, len(remoteBookmarks))
	for _, h := range remoteBookmarks {
		wants = append(wants, h)
	}
	n, err := remote.FetchIntoStore(ctx, t, mut.repo.Store, wants, mut.view.Heads())
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", remoteName, err)
	}

	names := make(map[string]struct{}, len(remoteBookmarks))
	for name := range remoteBookmarks {
		names[name] = struct{}{}
	}
	for sym := range mut.view.RemoteBookmarks {
		if sym.Remote == remoteName {
			names[sym.Name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	res := FetchResult{Objects: n}
	for _, name := range sorted {
		target := view.Absent()
		if h, ok := remoteBookmarks[name]; ok {
			target = view.Normal(h)
		}
		imp, err := mut.ImportRemote(name, remoteName, target)
		if err != nil {
			return FetchResult{}, fmt.Errorf("fetch %s: %w", remoteName, err)
		}
		if imp.Changed {
			res.Updated = append(res.Updated, name)
		}
	}
	mut.repo.Logger.Info("fetched remote", "remote", remoteName, "objects", n, "updated", len(res.Updated))
	return res, nil
}

// PushAction classifies what pushing a bookmark would do.
type PushAction int

const (
	PushAlreadyMatches PushAction = iota
	PushLocalConflicted
	PushRemoteConflicted
	PushUpdate
)

// PushPlan is the outcome of ClassifyPush. Old and New are only meaningful
// for PushUpdate; an empty hash means absent.
type PushPlan struct {
	Action PushAction
	Old    object.Hash
	New    object.Hash
}

// ClassifyPush compares the local bookmark with the last known position on
// the remote.
func (mut *MutableRepo) ClassifyPush(name, remoteName string) PushPlan {
	local := mut.view.LocalBookmark(name)
	rec := mut.view.RemoteBookmark(view.RemoteRefSymbol{Name: name, Remote: remoteName})
	switch {
	case local.Equal(rec.Target):
		return PushPlan{Action: PushAlreadyMatches}
	case local.HasConflict():
		return PushPlan{Action: PushLocalConflicted}
	case rec.Target.HasConflict():
		return PushPlan{Action: PushRemoteConflicted}
	}
	oldID, _ := rec.Target.AsNormal()
	newID, _ := local.AsNormal()
	return PushPlan{Action: PushUpdate, Old: oldID, New: newID}
}

// ExportLocal pushes local bookmark name to remoteName. The push is leased
// on the remote position recorded by the last fetch: if the remote moved
// since, a *LeaseError is returned and nothing changes, even when the
// local bookmark already matches the record. The remote applies
// the update with compare-and-swap, which catches a race with another
// pusher.
func (mut *MutableRepo) ExportLocal(ctx context.Context, t remote.Transport, name, remoteName string) (PushPlan, error) {
	sym := view.RemoteRefSymbol{Name: name, Remote: remoteName}
	plan := mut.ClassifyPush(name, remoteName)
	switch plan.Action {
	case PushLocalConflicted:
		return plan, fmt.Errorf("push %s: %w", name, ErrConflictedBookmark)
	case PushRemoteConflicted:
		return plan, fmt.Errorf("push %s: remote record is conflicted: %w", sym, ErrConflictedBookmark)
	}

	rec := mut.view.RemoteBookmark(sym)
	actual, err := t.ListBookmarks(ctx)
	if err != nil {
		return plan, fmt.Errorf("push %s: %w", sym, err)
	}
	actualTarget := view.Absent()
	if h, ok := actual[name]; ok {
		actualTarget = view.Normal(h)
	}
	if !actualTarget.Equal(rec.Target) {
		return plan, &LeaseError{Bookmark: name, Remote: remoteName, Expected: rec.Target, Actual: actualTarget}
	}
	if plan.Action == PushAlreadyMatches {
		mut.view.SetRemoteBookmark(sym, view.RemoteRef{Target: rec.Target, State: view.RemoteRefTracking})
		return plan, nil
	}

	if plan.New != "" {
		var stops []object.Hash
		if plan.Old != "" {
			stops = append(stops, plan.Old)
		}
		objs, err := remote.CollectObjectsForPush(mut.repo.Store, []object.Hash{plan.New}, stops)
		if err != nil {
			return plan, fmt.Errorf("push %s: %w", sym, err)
		}
		if err := t.PushObjects(ctx, objs); err != nil {
			return plan, fmt.Errorf("push %s: %w", sym, err)
		}
		mut.repo.Logger.Debug("pushed objects", "bookmark", name, "remote", remoteName, "count", len(objs))
	}
	update := remote.BookmarkUpdate{Name: name, Old: plan.Old, New: plan.New}
	if err := t.UpdateBookmarks(ctx, []remote.BookmarkUpdate{update}); err != nil {
		if errors.Is(err, remote.ErrRefCASMismatch) {
			lease := &LeaseError{Bookmark: name, Remote: remoteName, Expected: rec.Target, Err: err}
			if now, lerr := t.ListBookmarks(ctx); lerr == nil {
				if h, ok := now[name]; ok {
					lease.Actual = view.Normal(h)
				}
			}
			return plan, lease
		}
		return plan, fmt.Errorf("push %s: %w", sym, err)
	}

	newTarget := view.Absent()
	if plan.New != "" {
		newTarget = view.Normal(plan.New)
	}
	mut.view.SetRemoteBookmark(sym, view.RemoteRef{Target: newTarget, State: view.RemoteRefTracking})
	return plan, nil
}
