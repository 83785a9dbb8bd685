package repo

import (
	"fmt"
	"sort"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/view"
)

// MergeView applies the difference between base and other to the pending
// view. Heads, working copies, bookmarks and tags are merged three ways;
// commits that other hid and replaced by a commit with the same change id
// are recorded as rewrites, on both sides, so RebaseDescendants moves
// descendants one side added onto commits the other side rewrote.
func (mut *MutableRepo) MergeView(base, other *view.View) error {
	ix := mut.repo.index
	own := mut.view

	workspaces := make(map[string]struct{})
	for ws := range base.WorkingCopies {
		workspaces[ws] = struct{}{}
	}
	for ws := range other.WorkingCopies {
		workspaces[ws] = struct{}{}
	}
	for ws := range workspaces {
		baseID, otherID, ownID := base.WorkingCopies[ws], other.WorkingCopies[ws], own.WorkingCopies[ws]
		if baseID == otherID || ownID != baseID {
			continue
		}
		if otherID == "" {
			delete(own.WorkingCopies, ws)
		} else {
			own.WorkingCopies[ws] = otherID
		}
	}

	baseHeads, ownHeads, otherHeads := base.Heads(), own.Heads(), other.Heads()
	if err := mut.recordRewrites(baseHeads, ownHeads); err != nil {
		return fmt.Errorf("merge view: %w", err)
	}
	if err := mut.recordRewrites(baseHeads, otherHeads); err != nil {
		return fmt.Errorf("merge view: %w", err)
	}
	if sameHashes(ownHeads, baseHeads) {
		own.HeadIDs = make(map[object.Hash]struct{}, len(otherHeads))
		for _, id := range otherHeads {
			own.HeadIDs[id] = struct{}{}
		}
	} else {
		for _, id := range baseHeads {
			if _, ok := other.HeadIDs[id]; !ok {
				own.RemoveHead(id)
			}
		}
		for _, id := range otherHeads {
			if _, ok := base.HeadIDs[id]; !ok {
				own.AddHead(id)
			}
		}
	}

	for _, name := range unionNames(base.LocalBookmarks, other.LocalBookmarks) {
		merged, err := view.MergeRefTargets(ix, own.LocalBookmark(name), base.LocalBookmark(name), other.LocalBookmark(name))
		if err != nil {
			return fmt.Errorf("merge bookmark %s: %w", name, err)
		}
		own.SetLocalBookmark(name, merged)
	}
	for _, name := range unionNames(base.Tags, other.Tags) {
		merged, err := view.MergeRefTargets(ix, own.Tag(name), base.Tag(name), other.Tag(name))
		if err != nil {
			return fmt.Errorf("merge tag %s: %w", name, err)
		}
		own.SetTag(name, merged)
	}

	symbols := make(map[view.RemoteRefSymbol]struct{})
	for sym := range base.RemoteBookmarks {
		symbols[sym] = struct{}{}
	}
	for sym := range other.RemoteBookmarks {
		symbols[sym] = struct{}{}
	}
	for sym := range symbols {
		ownRef, baseRef, otherRef := own.RemoteBookmark(sym), base.RemoteBookmark(sym), other.RemoteBookmark(sym)
		target, err := view.MergeRefTargets(ix, ownRef.Target, baseRef.Target, otherRef.Target)
		if err != nil {
			return fmt.Errorf("merge remote bookmark %s: %w", sym, err)
		}
		state := ownRef.State
		if otherRef.State != baseRef.State {
			state = otherRef.State
		}
		own.SetRemoteBookmark(sym, view.RemoteRef{Target: target, State: state})
	}

	return mut.normalizeHeads()
}

// recordRewrites finds commits hidden between baseHeads and newHeads and
// matches them by change id against the commits that became visible. A hidden commit with a
// matching successor was rewritten; one without was abandoned.
func (mut *MutableRepo) recordRewrites(baseHeads, newHeads []object.Hash) error {
	ix := mut.repo.index
	removed, err := ix.Walk(baseHeads, newHeads)
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return nil
	}
	added, err := ix.Walk(newHeads, baseHeads)
	if err != nil {
		return err
	}
	byChange := make(map[object.ChangeID][]object.Hash)
	for _, id := range added {
		c, err := mut.ReadCommit(id)
		if err != nil {
			return err
		}
		byChange[c.ChangeID] = append(byChange[c.ChangeID], id)
	}
	for _, id := range removed {
		if id == object.RootCommitID {
			continue
		}
		c, err := mut.ReadCommit(id)
		if err != nil {
			return err
		}
		successors := byChange[c.ChangeID]
		if len(successors) == 0 {
			mut.RecordAbandoned(id)
			continue
		}
		for _, s := range successors {
			mut.RecordRewrite(id, s)
		}
	}
	return nil
}

func unionNames(a, b map[string]view.RefTarget) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, m := range []map[string]view.RefTarget{a, b} {
		for name := range m {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
