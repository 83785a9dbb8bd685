// Package dag answers ancestry questions over a graph of content-addressed
// nodes. It serves both the commit graph and the operation graph.
package dag

import (
	"fmt"
	"sync"

	"github.com/odvcencio/jig/pkg/object"
)

// ParentsFunc returns the parents of a node in order.
type ParentsFunc func(id object.Hash) ([]object.Hash, error)

type mergeBaseKey struct {
	left  object.Hash
	right object.Hash
}

type mergeBaseEntry struct {
	base  object.Hash
	found bool
}

// Index caches parents, generation numbers and merge bases. A node's
// generation is one more than the largest generation of its parents, so a
// node always has a strictly larger generation than each of its ancestors.
// Nodes are immutable, which makes every cached answer permanent.
type Index struct {
	parentsOf ParentsFunc

	mu          sync.RWMutex
	parents     map[object.Hash][]object.Hash
	generations map[object.Hash]uint64
	mergeBases  map[mergeBaseKey]mergeBaseEntry
}

// New returns an index reading parents through fn.
func New(fn ParentsFunc) *Index {
	return &Index{
		parentsOf:   fn,
		parents:     make(map[object.Hash][]object.Hash),
		generations: make(map[object.Hash]uint64),
		mergeBases:  make(map[mergeBaseKey]mergeBaseEntry),
	}
}

// ForCommits returns an index over the commit graph of store.
func ForCommits(store *object.Store) *Index {
	return New(func(id object.Hash) ([]object.Hash, error) {
		c, err := store.ReadCommit(id)
		if err != nil {
			return nil, err
		}
		return c.Parents, nil
	})
}

// Parents returns the parents of id.
func (ix *Index) Parents(id object.Hash) ([]object.Hash, error) {
	ix.mu.RLock()
	cached, ok := ix.parents[id]
	ix.mu.RUnlock()
	if ok {
		return cached, nil
	}
	parents, err := ix.parentsOf(id)
	if err != nil {
		return nil, fmt.Errorf("dag: read parents of %s: %w", id, err)
	}
	ix.mu.Lock()
	ix.parents[id] = parents
	ix.mu.Unlock()
	return parents, nil
}

// Generation returns the generation number of id. Parentless nodes have
// generation 1.
func (ix *Index) Generation(id object.Hash) (uint64, error) {
	return ix.generationRecursive(id, make(map[object.Hash]bool))
}

func (ix *Index) generationRecursive(id object.Hash, visiting map[object.Hash]bool) (uint64, error) {
	if id == "" {
		return 0, nil
	}
	ix.mu.RLock()
	g, ok := ix.generations[id]
	ix.mu.RUnlock()
	if ok {
		return g, nil
	}
	if visiting[id] {
		return 0, fmt.Errorf("dag: cycle detected at %s", id)
	}

	visiting[id] = true
	defer delete(visiting, id)
	parents, err := ix.Parents(id)
	if err != nil {
		return 0, err
	}
	var maxParent uint64
	for _, p := range parents {
		pg, err := ix.generationRecursive(p, visiting)
		if err != nil {
			return 0, err
		}
		maxParent = max(maxParent, pg)
	}

	ix.mu.Lock()
	ix.generations[id] = maxParent + 1
	ix.mu.Unlock()
	return maxParent + 1, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parents. A node is its own ancestor.
func (ix *Index) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	ancestorGen, err := ix.Generation(ancestor)
	if err != nil {
		return false, err
	}
	descendantGen, err := ix.Generation(descendant)
	if err != nil {
		return false, err
	}
	if ancestorGen >= descendantGen {
		return false, nil
	}

	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []object.Hash{descendant}
	steps := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		steps++
		if steps > maxTraversalSteps {
			return false, stepsLimitError()
		}
		if cur == ancestor {
			return true, nil
		}
		parents, err := ix.Parents(cur)
		if err != nil {
			return false, err
		}
		for _, p := range parents {
			if _, seen := visited[p]; seen {
				continue
			}
			pg, err := ix.Generation(p)
			if err != nil {
				return false, err
			}
			if pg < ancestorGen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return false, nil
}

// IsAncestorOfAny reports whether ancestor is an ancestor of any of ids.
func (ix *Index) IsAncestorOfAny(ancestor object.Hash, ids []object.Hash) (bool, error) {
	for _, id := range ids {
		ok, err := ix.IsAncestor(ancestor, id)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
