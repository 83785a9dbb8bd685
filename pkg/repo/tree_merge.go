package repo

import (
	"fmt"
	"sort"

	"github.com/odvcencio/jig/pkg/conflicts"
	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
)

// MergeTrees merges two trees against a common base. Paths that cannot be
// merged are stored as conflict entries, so merging never fails because of
// content.
func MergeTrees(store *object.Store, base, side1, side2 object.Hash) (object.Hash, error) {
	dir := func(h object.Hash) object.TreeValue {
		return object.TreeValue{Mode: object.TreeModeDir, Hash: h}
	}
	m, err := mergeTreeValues(store, merge.Three(dir(base), dir(side1), dir(side2)))
	if err != nil {
		return "", err
	}
	v, ok := m.AsResolved()
	if !ok {
		return "", fmt.Errorf("merge trees: root did not resolve")
	}
	if v.IsAbsent() {
		return object.EmptyTreeHash(), nil
	}
	return v.Hash, nil
}

// MergeCommitTrees returns the tree a commit with the given parents starts
// from: the parent's tree, or the parents' trees merged pairwise against
// their closest common ancestor.
func (mut *MutableRepo) MergeCommitTrees(parents []object.Hash) (object.Hash, error) {
	store := mut.repo.Store
	if len(parents) == 0 {
		return object.EmptyTreeHash(), nil
	}
	first, err := mut.ReadCommit(parents[0])
	if err != nil {
		return "", err
	}
	tree := first.TreeHash
	for i := 1; i < len(parents); i++ {
		other, err := mut.ReadCommit(parents[i])
		if err != nil {
			return "", err
		}
		ancestor, ok, err := mut.repo.index.ClosestCommonAncestor(parents[:i], parents[i:i+1])
		if err != nil {
			return "", fmt.Errorf("merge parent trees: %w", err)
		}
		baseTree := object.EmptyTreeHash()
		if ok {
			bc, err := mut.ReadCommit(ancestor)
			if err != nil {
				return "", err
			}
			baseTree = bc.TreeHash
		}
		tree, err = MergeTrees(store, baseTree, tree, other.TreeHash)
		if err != nil {
			return "", err
		}
	}
	return tree, nil
}

// mergeTreeValues resolves a merge of tree values as far as possible.
// Conflict terms are expanded first, directories merge entry by entry and
// files are merged line by line. What remains is returned unresolved.
func mergeTreeValues(store *object.Store, m merge.Merge[object.TreeValue]) (merge.Merge[object.TreeValue], error) {
	m, err := expandConflicts(store, m)
	if err != nil {
		return m, err
	}
	m = m.Resolve()
	if m.IsResolved() {
		return m, nil
	}

	allDirs, allFiles := true, true
	for _, v := range m.Terms() {
		if v.IsAbsent() {
			continue
		}
		if !v.IsDir() {
			allDirs = false
		}
		if !v.IsFile() {
			allFiles = false
		}
	}
	switch {
	case allDirs:
		return mergeDirs(store, m)
	case allFiles:
		return mergeFiles(store, m)
	}
	return m, nil
}

// expandConflicts replaces every conflict term by the merge it stores and
// flattens the result.
func expandConflicts(store *object.Store, m merge.Merge[object.TreeValue]) (merge.Merge[object.TreeValue], error) {
	hasConflict := false
	for _, v := range m.Terms() {
		if v.IsConflict() {
			hasConflict = true
			break
		}
	}
	if !hasConflict {
		return m, nil
	}
	nested := func(vs []object.TreeValue) ([]merge.Merge[object.TreeValue], error) {
		out := make([]merge.Merge[object.TreeValue], len(vs))
		for i, v := range vs {
			if !v.IsConflict() {
				out[i] = merge.Resolved(v)
				continue
			}
			c, err := store.ReadConflict(v.Hash)
			if err != nil {
				return nil, err
			}
			out[i] = conflicts.FromObject(c)
		}
		return out, nil
	}
	removes, err := nested(m.Removes())
	if err != nil {
		return m, err
	}
	adds, err := nested(m.Adds())
	if err != nil {
		return m, err
	}
	return merge.Flatten(removes, adds).Simplify(), nil
}

func mergeDirs(store *object.Store, m merge.Merge[object.TreeValue]) (merge.Merge[object.TreeValue], error) {
	terms := m.Terms()
	trees := make([]*object.TreeObj, len(terms))
	names := make(map[string]struct{})
	for i, v := range terms {
		if v.IsAbsent() {
			trees[i] = &object.TreeObj{}
			continue
		}
		t, err := store.ReadTree(v.Hash)
		if err != nil {
			return m, err
		}
		trees[i] = t
		for _, e := range t.Entries {
			names[e.Name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var entries []object.TreeEntry
	for _, name := range sorted {
		entryTerms := make([]object.TreeValue, len(trees))
		for i, t := range trees {
			if e, ok := t.Entry(name); ok {
				entryTerms[i] = e.Value()
			}
		}
		merged, err := mergeTreeValues(store, merge.FromTerms(entryTerms))
		if err != nil {
			return m, fmt.Errorf("merge %s: %w", name, err)
		}
		value, ok := merged.AsResolved()
		if !ok {
			h, err := store.WriteConflict(conflicts.ToObject(merged))
			if err != nil {
				return m, err
			}
			value = object.TreeValue{Mode: object.TreeModeConflict, Hash: h}
		}
		if value.IsAbsent() {
			continue
		}
		if value.IsDir() && value.Hash == object.EmptyTreeHash() {
			continue
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: value.Mode, Hash: value.Hash})
	}
	h, err := store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return m, err
	}
	return merge.Resolved(object.TreeValue{Mode: object.TreeModeDir, Hash: h}), nil
}

// mergeFiles merges file contents when every side is present. The
// executable bit must resolve on its own; otherwise the merge stays as is.
func mergeFiles(store *object.Store, m merge.Merge[object.TreeValue]) (merge.Merge[object.TreeValue], error) {
	for _, v := range m.Terms() {
		if v.IsAbsent() {
			return m, nil
		}
	}
	mode, ok := merge.Map(m, func(v object.TreeValue) string { return v.Mode }).Resolve().AsResolved()
	if !ok {
		return m, nil
	}
	content, ok, err := conflicts.ReadContent(store, m)
	if err != nil || !ok {
		return m, err
	}
	merged, ok := conflicts.Resolve(content)
	if !ok {
		return m, nil
	}
	h, err := store.WriteBlob(&object.Blob{Data: []byte(merged)})
	if err != nil {
		return m, err
	}
	return merge.Resolved(object.TreeValue{Mode: mode, Hash: h}), nil
}
