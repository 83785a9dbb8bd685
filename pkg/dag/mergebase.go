package dag

import (
	"container/heap"
	"fmt"

	"github.com/odvcencio/jig/pkg/object"
)

const defaultMaxTraversalSteps = 1_000_000

// maxTraversalSteps bounds every walk; tests may tighten it.
var maxTraversalSteps = defaultMaxTraversalSteps

func stepsLimitError() error {
	return fmt.Errorf("dag: traversal exceeded maximum steps (%d)", maxTraversalSteps)
}

func canonicalMergeBaseKey(a, b object.Hash) mergeBaseKey {
	if a <= b {
		return mergeBaseKey{left: a, right: b}
	}
	return mergeBaseKey{left: b, right: a}
}

// MergeBase finds the best common ancestor of a and b: the one with the
// highest generation, ties broken by the smallest id. It reports false when
// the two nodes share no ancestor.
func (ix *Index) MergeBase(a, b object.Hash) (object.Hash, bool, error) {
	if a == "" || b == "" {
		return "", false, nil
	}
	if a == b {
		return a, true, nil
	}

	key := canonicalMergeBaseKey(a, b)
	ix.mu.RLock()
	cached, ok := ix.mergeBases[key]
	ix.mu.RUnlock()
	if ok {
		return cached.base, cached.found, nil
	}

	base, found, err := ix.findMergeBase(a, b)
	if err != nil {
		return "", false, err
	}
	ix.mu.Lock()
	ix.mergeBases[key] = mergeBaseEntry{base: base, found: found}
	ix.mu.Unlock()
	return base, found, nil
}

func (ix *Index) findMergeBase(a, b object.Hash) (object.Hash, bool, error) {
	// Fast path: one side already contains the other.
	if ok, err := ix.IsAncestor(a, b); err != nil || ok {
		return a, ok, err
	}
	if ok, err := ix.IsAncestor(b, a); err != nil || ok {
		return b, ok, err
	}

	genA, err := ix.Generation(a)
	if err != nil {
		return "", false, err
	}
	genB, err := ix.Generation(b)
	if err != nil {
		return "", false, err
	}

	visitedA := map[object.Hash]struct{}{a: {}}
	visitedB := map[object.Hash]struct{}{b: {}}
	queueA := maxHeap{{id: a, generation: genA}}
	queueB := maxHeap{{id: b, generation: genB}}
	heap.Init(&queueA)
	heap.Init(&queueB)

	best := object.Hash("")
	var bestGeneration uint64
	steps := 0

	for queueA.Len() > 0 || queueB.Len() > 0 {
		if best != "" {
			topA, okA := queueA.Peek()
			topB, okB := queueB.Peek()
			if (!okA || topA.generation < bestGeneration) && (!okB || topB.generation < bestGeneration) {
				break
			}
		}

		var traverseA bool
		switch {
		case queueA.Len() == 0:
			traverseA = false
		case queueB.Len() == 0:
			traverseA = true
		default:
			topA, topB := queueA[0], queueB[0]
			if topA.generation != topB.generation {
				traverseA = topA.generation > topB.generation
			} else {
				traverseA = topA.id <= topB.id
			}
		}

		visitedSelf, visitedOther, queue := visitedA, visitedB, &queueA
		if !traverseA {
			visitedSelf, visitedOther, queue = visitedB, visitedA, &queueB
		}
		item := heap.Pop(queue).(queueItem)

		steps++
		if steps > maxTraversalSteps {
			return "", false, stepsLimitError()
		}
		if best != "" && item.generation < bestGeneration {
			continue
		}
		if _, seen := visitedOther[item.id]; seen {
			best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.id, item.generation)
		}

		parents, err := ix.Parents(item.id)
		if err != nil {
			return "", false, err
		}
		for _, p := range parents {
			pg, err := ix.Generation(p)
			if err != nil {
				return "", false, err
			}
			if best != "" && pg < bestGeneration {
				continue
			}
			if _, seen := visitedSelf[p]; seen {
				continue
			}
			visitedSelf[p] = struct{}{}
			heap.Push(queue, queueItem{id: p, generation: pg})
			if _, seen := visitedOther[p]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, pg)
			}
		}
	}

	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}

func chooseBetterMergeBase(best object.Hash, bestGeneration uint64, candidate object.Hash, candidateGeneration uint64) (object.Hash, uint64) {
	switch {
	case best == "":
		return candidate, candidateGeneration
	case candidateGeneration > bestGeneration:
		return candidate, candidateGeneration
	case candidateGeneration < bestGeneration:
		return best, bestGeneration
	case candidate < best:
		return candidate, candidateGeneration
	}
	return best, bestGeneration
}
