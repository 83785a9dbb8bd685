package dag

import (
	"container/heap"
	"sort"

	"github.com/odvcencio/jig/pkg/object"
)

// Heads returns the members of ids that are not ancestors of another
// member, sorted by id.
func (ix *Index) Heads(ids []object.Hash) ([]object.Hash, error) {
	ids = object.UniqueHashes(ids)
	if len(ids) <= 1 {
		return ids, nil
	}
	set := make(map[object.Hash]bool, len(ids))
	minGen := ^uint64(0)
	for _, id := range ids {
		set[id] = true
		g, err := ix.Generation(id)
		if err != nil {
			return nil, err
		}
		minGen = min(minGen, g)
	}

	dominated := make(map[object.Hash]bool)
	visited := make(map[object.Hash]struct{})
	var stack []object.Hash
	for _, id := range ids {
		parents, err := ix.Parents(id)
		if err != nil {
			return nil, err
		}
		stack = append(stack, parents...)
	}
	steps := 0
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		steps++
		if steps > maxTraversalSteps {
			return nil, stepsLimitError()
		}
		g, err := ix.Generation(cur)
		if err != nil {
			return nil, err
		}
		if g < minGen {
			continue
		}
		if set[cur] {
			dominated[cur] = true
		}
		parents, err := ix.Parents(cur)
		if err != nil {
			return nil, err
		}
		stack = append(stack, parents...)
	}

	out := make([]object.Hash, 0, len(ids))
	for _, id := range ids {
		if !dominated[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// Walk returns every node reachable from wanted but not from unwanted,
// children before parents (descending generation, then id).
func (ix *Index) Walk(wanted, unwanted []object.Hash) ([]object.Hash, error) {
	excluded := make(map[object.Hash]bool)
	queued := make(map[object.Hash]struct{})
	var queue maxHeap
	wantedQueued := 0

	push := func(id object.Hash, isUnwanted bool) error {
		if id == "" {
			return nil
		}
		if _, ok := queued[id]; ok {
			if isUnwanted && !excluded[id] {
				excluded[id] = true
				wantedQueued--
			}
			return nil
		}
		g, err := ix.Generation(id)
		if err != nil {
			return err
		}
		queued[id] = struct{}{}
		excluded[id] = isUnwanted
		if !isUnwanted {
			wantedQueued++
		}
		heap.Push(&queue, queueItem{id: id, generation: g})
		return nil
	}
	for _, id := range unwanted {
		if err := push(id, true); err != nil {
			return nil, err
		}
	}
	for _, id := range wanted {
		if err := push(id, false); err != nil {
			return nil, err
		}
	}

	var out []object.Hash
	steps := 0
	for queue.Len() > 0 && wantedQueued > 0 {
		item := heap.Pop(&queue).(queueItem)
		isUnwanted := excluded[item.id]
		if !isUnwanted {
			wantedQueued--
			out = append(out, item.id)
		}
		steps++
		if steps > maxTraversalSteps {
			return nil, stepsLimitError()
		}
		parents, err := ix.Parents(item.id)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if err := push(p, isUnwanted); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Descendants returns the nodes reachable from heads that have one of roots
// as an ancestor (roots included), parents before children.
func (ix *Index) Descendants(roots, heads []object.Hash) ([]object.Hash, error) {
	roots = object.UniqueHashes(roots)
	if len(roots) == 0 {
		return nil, nil
	}
	rootSet := make(map[object.Hash]bool, len(roots))
	minGen := ^uint64(0)
	for _, r := range roots {
		rootSet[r] = true
		g, err := ix.Generation(r)
		if err != nil {
			return nil, err
		}
		minGen = min(minGen, g)
	}

	// Collect the candidate region: everything reachable from heads with a
	// generation no lower than the lowest root.
	var region []queueItem
	visited := make(map[object.Hash]struct{})
	stack := append([]object.Hash(nil), heads...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok || cur == "" {
			continue
		}
		visited[cur] = struct{}{}
		if len(visited) > maxTraversalSteps {
			return nil, stepsLimitError()
		}
		g, err := ix.Generation(cur)
		if err != nil {
			return nil, err
		}
		if g < minGen {
			continue
		}
		region = append(region, queueItem{id: cur, generation: g})
		parents, err := ix.Parents(cur)
		if err != nil {
			return nil, err
		}
		stack = append(stack, parents...)
	}
	sortAscending(region)

	isDescendant := make(map[object.Hash]bool, len(region))
	var out []object.Hash
	for _, item := range region {
		ok := rootSet[item.id]
		if !ok {
			parents, err := ix.Parents(item.id)
			if err != nil {
				return nil, err
			}
			for _, p := range parents {
				if isDescendant[p] {
					ok = true
					break
				}
			}
		}
		if ok {
			isDescendant[item.id] = true
			out = append(out, item.id)
		}
	}
	return out, nil
}

// SortParentsFirst orders ids so every node comes after its ancestors in
// the list (ascending generation, then id).
func (ix *Index) SortParentsFirst(ids []object.Hash) ([]object.Hash, error) {
	items := make([]queueItem, 0, len(ids))
	for _, id := range object.UniqueHashes(ids) {
		g, err := ix.Generation(id)
		if err != nil {
			return nil, err
		}
		items = append(items, queueItem{id: id, generation: g})
	}
	sortAscending(items)
	out := make([]object.Hash, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out, nil
}

func sortAscending(items []queueItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].generation != items[j].generation {
			return items[i].generation < items[j].generation
		}
		return items[i].id < items[j].id
	})
}

// ClosestCommonAncestor returns the highest-generation node that is an
// ancestor of one of left and of one of right.
func (ix *Index) ClosestCommonAncestor(left, right []object.Hash) (object.Hash, bool, error) {
	leftAncestors, err := ix.Walk(left, nil)
	if err != nil {
		return "", false, err
	}
	inLeft := make(map[object.Hash]struct{}, len(leftAncestors))
	for _, id := range leftAncestors {
		inLeft[id] = struct{}{}
	}
	rightAncestors, err := ix.Walk(right, nil)
	if err != nil {
		return "", false, err
	}
	// Walk yields descending generation, so the first hit is the closest.
	for _, id := range rightAncestors {
		if _, ok := inLeft[id]; ok {
			return id, true, nil
		}
	}
	return "", false, nil
}
