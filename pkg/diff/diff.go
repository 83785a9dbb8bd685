package diff

import (
	"fmt"
	"sort"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/workingcopy"
)

// ChangeType classifies what happened to a path between two trees.
type ChangeType int

const (
	Added    ChangeType = iota // Path exists only in the after tree.
	Removed                    // Path exists only in the before tree.
	Modified                   // Path exists in both trees with a different value.
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "A"
	case Removed:
		return "D"
	default:
		return "M"
	}
}

// PathChange records a single path that differs between two trees.
type PathChange struct {
	Type   ChangeType
	Path   string
	Before object.TreeValue // absent for Added.
	After  object.TreeValue // absent for Removed.
}

// TreeDiff holds the changes between two trees in path order.
type TreeDiff struct {
	Changes []PathChange
}

// Conflicts returns the paths whose after value is a conflict.
func (d *TreeDiff) Conflicts() []string {
	var out []string
	for _, c := range d.Changes {
		if c.After.IsConflict() {
			out = append(out, c.Path)
		}
	}
	return out
}

// Trees compares two trees path by path. Directory entries are descended
// into; only files, executables and conflicts are reported.
func Trees(store *object.Store, before, after object.Hash) (*TreeDiff, error) {
	d := &TreeDiff{}
	if before == after {
		return d, nil
	}
	beforeFiles, err := workingcopy.FlattenTree(store, before)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}
	afterFiles, err := workingcopy.FlattenTree(store, after)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	paths := make([]string, 0, len(beforeFiles)+len(afterFiles))
	for p := range beforeFiles {
		paths = append(paths, p)
	}
	for p := range afterFiles {
		if _, ok := beforeFiles[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		b, inBefore := beforeFiles[p]
		a, inAfter := afterFiles[p]
		switch {
		case !inBefore:
			d.Changes = append(d.Changes, PathChange{Type: Added, Path: p, After: a})
		case !inAfter:
			d.Changes = append(d.Changes, PathChange{Type: Removed, Path: p, Before: b})
		case a != b:
			d.Changes = append(d.Changes, PathChange{Type: Modified, Path: p, Before: b, After: a})
		}
	}
	return d, nil
}
