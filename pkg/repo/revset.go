package repo

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/odvcencio/jig/pkg/dag"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/view"
)

// Resolution is what a symbol resolves to. Conflicted is set for a
// conflicted bookmark and for a divergent change; IDs then lists every
// candidate.
type Resolution struct {
	IDs        []object.Hash
	Conflicted bool
}

// Single returns the only id of an unconflicted resolution.
func (r Resolution) Single() (object.Hash, bool) {
	if r.Conflicted || len(r.IDs) != 1 {
		return "", false
	}
	return r.IDs[0], true
}

// Resolver answers the graph and symbol queries a revset evaluator needs,
// against one view. Visibility is defined by the view's heads: a commit is
// visible when some head reaches it.
type Resolver struct {
	view  *view.View
	index *dag.Index
	store *object.Store

	visible  map[object.Hash]struct{}
	byChange map[object.ChangeID][]object.Hash
}

// Resolver returns a resolver over the repo's view.
func (rr *ReadonlyRepo) Resolver() *Resolver {
	return &Resolver{view: rr.view, index: rr.repo.index, store: rr.repo.Store}
}

// Resolver returns a resolver over the pending view. It must not be used
// after the view changes.
func (mut *MutableRepo) Resolver() *Resolver {
	return &Resolver{view: mut.view, index: mut.repo.index, store: mut.repo.Store}
}

func (r *Resolver) VisibleHeads() []object.Hash { return r.view.Heads() }

func (r *Resolver) Parents(id object.Hash) ([]object.Hash, error) {
	return r.index.Parents(id)
}

// Ancestors returns ids and all their ancestors, children first.
func (r *Resolver) Ancestors(ids []object.Hash) ([]object.Hash, error) {
	return r.index.Walk(ids, nil)
}

// Descendants returns the visible descendants of roots (roots included),
// parents first.
func (r *Resolver) Descendants(roots []object.Hash) ([]object.Hash, error) {
	return r.index.Descendants(roots, r.view.Heads())
}

func (r *Resolver) IsVisible(id object.Hash) (bool, error) {
	if err := r.loadVisible(); err != nil {
		return false, err
	}
	_, ok := r.visible[id]
	return ok, nil
}

func (r *Resolver) loadVisible() error {
	if r.visible != nil {
		return nil
	}
	ids, err := r.index.Walk(r.view.Heads(), nil)
	if err != nil {
		return fmt.Errorf("visible commits: %w", err)
	}
	visible := make(map[object.Hash]struct{}, len(ids)+1)
	byChange := make(map[object.ChangeID][]object.Hash)
	visible[object.RootCommitID] = struct{}{}
	for _, id := range ids {
		visible[id] = struct{}{}
		c, err := r.store.ReadCommit(id)
		if err != nil {
			return fmt.Errorf("visible commits: %w", err)
		}
		byChange[c.ChangeID] = append(byChange[c.ChangeID], id)
	}
	for _, ids := range byChange {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	r.visible, r.byChange = visible, byChange
	return nil
}

func resolveTarget(kind, symbol string, t view.RefTarget) (Resolution, error) {
	if t.IsAbsent() {
		return Resolution{}, fmt.Errorf("%s %q: %w", kind, symbol, ErrNoSuchSymbol)
	}
	return Resolution{IDs: t.AddedIDs(), Conflicted: t.HasConflict()}, nil
}

func (r *Resolver) ResolveBookmark(name string) (Resolution, error) {
	return resolveTarget("bookmark", name, r.view.LocalBookmark(name))
}

func (r *Resolver) ResolveRemoteBookmark(name, remoteName string) (Resolution, error) {
	sym := view.RemoteRefSymbol{Name: name, Remote: remoteName}
	return resolveTarget("remote bookmark", sym.String(), r.view.RemoteBookmark(sym).Target)
}

func (r *Resolver) ResolveTag(name string) (Resolution, error) {
	return resolveTarget("tag", name, r.view.Tag(name))
}

// ResolveChangeID resolves a change id prefix among visible commits. A
// prefix shared by several changes is ambiguous; a single change with
// several visible commits is divergent and comes back conflicted.
func (r *Resolver) ResolveChangeID(prefix string) (Resolution, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return Resolution{}, fmt.Errorf("change id: empty prefix: %w", ErrNoSuchSymbol)
	}
	if err := r.loadVisible(); err != nil {
		return Resolution{}, err
	}
	var matches []object.ChangeID
	for changeID := range r.byChange {
		if strings.HasPrefix(string(changeID), prefix) {
			matches = append(matches, changeID)
		}
	}
	switch len(matches) {
	case 0:
		return Resolution{}, fmt.Errorf("change id %q: %w", prefix, ErrNoSuchSymbol)
	case 1:
		ids := append([]object.Hash(nil), r.byChange[matches[0]]...)
		return Resolution{IDs: ids, Conflicted: len(ids) > 1}, nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	candidates := make([]string, len(matches))
	for i, m := range matches {
		candidates[i] = string(m)
	}
	return Resolution{}, &AmbiguousError{Symbol: prefix, Candidates: candidates}
}

// ResolveCommitPrefix resolves a commit id prefix among visible commits. A
// full id of a hidden commit that is still in the store resolves too.
func (r *Resolver) ResolveCommitPrefix(prefix string) (object.Hash, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("commit id: empty prefix: %w", ErrNoSuchSymbol)
	}
	if err := r.loadVisible(); err != nil {
		return "", err
	}
	var matches []string
	for id := range r.visible {
		if strings.HasPrefix(string(id), prefix) {
			matches = append(matches, string(id))
		}
	}
	switch len(matches) {
	case 1:
		return object.Hash(matches[0]), nil
	case 0:
		full := object.Hash(prefix)
		if object.ValidateHash(full) == nil {
			if _, err := r.store.ReadCommit(full); err == nil {
				return full, nil
			}
		}
		return "", fmt.Errorf("commit id %q: %w", prefix, ErrNoSuchSymbol)
	}
	sort.Strings(matches)
	return "", &AmbiguousError{Symbol: prefix, Candidates: matches}
}

// DivergentChanges lists the change ids with more than one visible commit.
func (r *Resolver) DivergentChanges() (map[object.ChangeID][]object.Hash, error) {
	if err := r.loadVisible(); err != nil {
		return nil, err
	}
	out := make(map[object.ChangeID][]object.Hash)
	for changeID, ids := range r.byChange {
		if len(ids) > 1 {
			out[changeID] = append([]object.Hash(nil), ids...)
		}
	}
	return out, nil
}

// Resolve resolves a user-supplied symbol in order: "@" (the working copy
// of workspace), a bookmark, a tag, name@remote, a change id prefix and a
// commit id prefix. It fails unless exactly one commit is found; a prefix
// naming a change and also some other commit is ambiguous.
func (r *Resolver) Resolve(symbol, workspace string) (object.Hash, error) {
	symbol = strings.TrimSpace(symbol)
	switch symbol {
	case "@":
		if id, ok := r.view.WorkingCopies[workspace]; ok {
			return id, nil
		}
		return "", fmt.Errorf("working copy of %s: %w", workspace, ErrNoSuchSymbol)
	case "root()":
		return object.RootCommitID, nil
	}

	single := func(res Resolution) (object.Hash, error) {
		if id, ok := res.Single(); ok {
			return id, nil
		}
		candidates := make([]string, len(res.IDs))
		for i, id := range res.IDs {
			candidates[i] = string(id)
		}
		return "", &AmbiguousError{Symbol: symbol, Candidates: candidates}
	}
	if res, err := r.ResolveBookmark(symbol); err == nil {
		return single(res)
	}
	if res, err := r.ResolveTag(symbol); err == nil {
		return single(res)
	}
	if name, remoteName, ok := strings.Cut(symbol, "@"); ok && name != "" && remoteName != "" {
		if res, err := r.ResolveRemoteBookmark(name, remoteName); err == nil {
			return single(res)
		}
	}
	res, err := r.ResolveChangeID(symbol)
	if err == nil {
		if others := r.commitsOutside(symbol, res.IDs); len(others) > 0 {
			candidates := make([]string, 0, len(res.IDs)+len(others))
			for _, id := range res.IDs {
				candidates = append(candidates, string(id))
			}
			candidates = append(candidates, others...)
			return "", &AmbiguousError{Symbol: symbol, Candidates: candidates}
		}
		return single(res)
	}
	if !errors.Is(err, ErrNoSuchSymbol) {
		return "", err
	}
	return r.ResolveCommitPrefix(symbol)
}

// commitsOutside lists the visible commits whose id starts with prefix but
// which are not among ids. Change ids and commit ids share the hex
// alphabet, so a prefix can name both.
func (r *Resolver) commitsOutside(prefix string, ids []object.Hash) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var out []string
	for id := range r.visible {
		if !strings.HasPrefix(string(id), prefix) || slices.Contains(ids, id) {
			continue
		}
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}
