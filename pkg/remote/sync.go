package remote

import (
	"context"
	"fmt"

	"github.com/odvcencio/jig/pkg/object"
)

const (
	// MaxBatchObjects caps the objects requested per batch round.
	MaxBatchObjects = 50000
	// MaxBatchHaveHashes keeps batch request payloads under server body limits.
	MaxBatchHaveHashes = 20000
	// MaxBatchNegotiationRounds prevents unbounded negotiation loops.
	MaxBatchNegotiationRounds = 1024
)

// FetchIntoStore copies every object reachable from wants into store and
// returns how many were new. Transports that implement BatchFetcher are
// asked in batches first; the object graph is then walked locally and
// anything still missing is fetched one by one.
func FetchIntoStore(ctx context.Context, t Transport, store *object.Store, wants, haves []object.Hash) (int, error) {
	var roots []object.Hash
	for _, h := range object.UniqueHashes(wants) {
		if !object.IsSynthetic(h) {
			roots = append(roots, h)
		}
	}
	if len(roots) == 0 {
		return 0, nil
	}

	written := 0
	if bf, ok := t.(BatchFetcher); ok {
		n, err := negotiateBatches(ctx, bf, store, roots, haves)
		written += n
		if err != nil {
			return written, err
		}
	}
	n, err := ensureGraphClosure(ctx, t, store, roots)
	written += n
	return written, err
}

func negotiateBatches(ctx context.Context, bf BatchFetcher, store *object.Store, roots, haves []object.Hash) (int, error) {
	known := object.UniqueHashes(haves)
	knownSet := make(map[object.Hash]struct{}, len(known))
	for _, h := range known {
		knownSet[h] = struct{}{}
	}
	written := 0
	for round := 0; round < MaxBatchNegotiationRounds; round++ {
		batch, truncated, err := bf.BatchObjects(ctx, roots, selectBatchHaves(known, MaxBatchHaveHashes), MaxBatchObjects)
		if err != nil {
			return written, err
		}
		newInRound := 0
		for _, obj := range batch {
			n, err := writeVerifiedObject(store, obj)
			if err != nil {
				return written, err
			}
			written += n
			newInRound += n
			if _, ok := knownSet[obj.Hash]; !ok {
				knownSet[obj.Hash] = struct{}{}
				known = append(known, obj.Hash)
			}
		}
		// A truncated batch without anything new would repeat forever; the
		// closure walk finishes the job instead.
		if !truncated || newInRound == 0 {
			return written, nil
		}
	}
	return written, fmt.Errorf("batch negotiation exceeded %d rounds", MaxBatchNegotiationRounds)
}

func selectBatchHaves(haves []object.Hash, max int) []object.Hash {
	if max <= 0 || len(haves) <= max {
		return append([]object.Hash(nil), haves...)
	}
	return append([]object.Hash(nil), haves[len(haves)-max:]...)
}

func ensureGraphClosure(ctx context.Context, t Transport, store *object.Store, roots []object.Hash) (int, error) {
	written := 0
	seen := make(map[object.Hash]struct{}, len(roots))
	stack := append([]object.Hash(nil), roots...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if object.IsSynthetic(h) {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}

		if !store.Has(h) {
			obj, err := t.GetObject(ctx, h)
			if err != nil {
				return written, err
			}
			n, err := writeVerifiedObject(store, obj)
			if err != nil {
				return written, err
			}
			written += n
		}

		objType, data, err := store.Read(h)
		if err != nil {
			return written, fmt.Errorf("read object %s: %w", h, err)
		}
		refs, err := object.ReferencedHashes(objType, data)
		if err != nil {
			return written, fmt.Errorf("parse object %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}
	return written, nil
}

func writeVerifiedObject(store *object.Store, obj ObjectRecord) (int, error) {
	if err := verifyRecord(obj); err != nil {
		return 0, err
	}
	if store.Has(obj.Hash) {
		return 0, nil
	}
	written, err := store.Write(obj.Type, obj.Data)
	if err != nil {
		return 0, err
	}
	if written != obj.Hash {
		return 0, fmt.Errorf("object write mismatch: expected %s, wrote %s", obj.Hash, written)
	}
	return 1, nil
}

// CollectObjectsForPush returns the objects reachable from roots that are
// not reachable from stopRoots. Synthetic objects are never collected.
func CollectObjectsForPush(store *object.Store, roots, stopRoots []object.Hash) ([]ObjectRecord, error) {
	stopSet, err := store.ReachableSet(stopRoots)
	if err != nil {
		return nil, err
	}
	seen := make(map[object.Hash]struct{})
	stack := object.UniqueHashes(roots)
	var objects []ObjectRecord
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if object.IsSynthetic(h) {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		if _, stopped := stopSet[h]; stopped {
			continue
		}
		seen[h] = struct{}{}

		objType, data, err := store.Read(h)
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", h, err)
		}
		objects = append(objects, ObjectRecord{Hash: h, Type: objType, Data: data})
		refs, err := object.ReferencedHashes(objType, data)
		if err != nil {
			return nil, fmt.Errorf("parse object %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}
	return objects, nil
}
