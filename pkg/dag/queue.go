package dag

import "github.com/odvcencio/jig/pkg/object"

type queueItem struct {
	id         object.Hash
	generation uint64
}

// maxHeap pops the highest generation first, breaking ties by id so walks
// are deterministic.
type maxHeap []queueItem

func (h maxHeap) Len() int { return len(h) }

func (h maxHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].id < h[j].id
	}
	return h[i].generation > h[j].generation
}

func (h maxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *maxHeap) Push(x any) {
	*h = append(*h, x.(queueItem))
}

func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h maxHeap) Peek() (queueItem, bool) {
	if len(h) == 0 {
		return queueItem{}, false
	}
	return h[0], true
}
