package view

import (
	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
)

// Ancestry answers commit-graph ancestry questions. *dag.Index implements
// it.
type Ancestry interface {
	IsAncestor(ancestor, descendant object.Hash) (bool, error)
}

// MergeRefTargets merges two divergent movements of a ref that started at
// base. When both sides moved the ref along the same line of history the
// descendant wins; anything else is kept as a conflicted target.
func MergeRefTargets(ix Ancestry, left, base, right RefTarget) (RefTarget, error) {
	switch {
	case left.Equal(right):
		return left, nil
	case left.Equal(base):
		return right, nil
	case right.Equal(base):
		return left, nil
	}

	m := merge.Flatten(
		[]merge.Merge[object.Hash]{base.Merge()},
		[]merge.Merge[object.Hash]{left.Merge(), right.Merge()},
	).Simplify()
	if m.IsResolved() {
		return FromMerge(m), nil
	}

	removes, adds := m.Removes(), m.Adds()
	for {
		ri, ai, ok, err := findPairToRemove(ix, removes, adds)
		if err != nil {
			return RefTarget{}, err
		}
		if !ok {
			break
		}
		removes = append(removes[:ri], removes[ri+1:]...)
		adds = append(adds[:ai], adds[ai+1:]...)
	}
	return FromMerge(merge.New(removes, adds)), nil
}

// findPairToRemove looks for two adds on one line of history and a remove
// that is an ancestor of the older one; dropping that add together with the
// remove leaves the newer add in place.
func findPairToRemove(ix Ancestry, removes, adds []object.Hash) (int, int, bool, error) {
	for i := range adds {
		for j := i + 1; j < len(adds); j++ {
			a1, a2 := adds[i], adds[j]
			if a1 == "" || a2 == "" {
				continue
			}
			addIdx, addID := -1, object.Hash("")
			if a1 == a2 {
				addIdx, addID = i, a1
			} else if ok, err := ix.IsAncestor(a1, a2); err != nil {
				return 0, 0, false, err
			} else if ok {
				addIdx, addID = i, a1
			} else if ok, err := ix.IsAncestor(a2, a1); err != nil {
				return 0, 0, false, err
			} else if ok {
				addIdx, addID = j, a2
			}
			if addIdx < 0 {
				continue
			}
			for ri, rm := range removes {
				if rm == "" {
					return ri, addIdx, true, nil
				}
				ok, err := ix.IsAncestor(rm, addID)
				if err != nil {
					return 0, 0, false, err
				}
				if ok {
					return ri, addIdx, true, nil
				}
			}
		}
	}
	return 0, 0, false, nil
}
