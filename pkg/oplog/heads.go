package oplog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/odvcencio/jig/pkg/lockfile"
	"github.com/odvcencio/jig/pkg/object"
)

// ErrNoOpHeads is returned when the heads record is missing or empty.
var ErrNoOpHeads = errors.New("no operation heads")

// Heads is the op heads record: the set of operations not yet superseded
// by a later one. Normally it holds exactly one id; concurrent writers can
// leave several until the next load reconciles them.
type Heads struct {
	path string
}

// NewHeads returns the record stored in the file at path.
func NewHeads(path string) *Heads {
	return &Heads{path: path}
}

// Init makes id the only head.
func (h *Heads) Init(id object.Hash) error {
	return lockfile.Update(h.path, func([]byte) ([]byte, error) {
		return formatHeads([]object.Hash{id}), nil
	})
}

// Read returns the current heads sorted. The record is replaced by
// rename, so reading needs no lock.
func (h *Heads) Read() ([]object.Hash, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoOpHeads
		}
		return nil, fmt.Errorf("read op heads: %w", err)
	}
	ids := parseHeads(data)
	if len(ids) == 0 {
		return nil, ErrNoOpHeads
	}
	return ids, nil
}

// Publish adds id as a head and removes the heads it replaces, in one
// atomic update. Replaced ids that are no longer heads are ignored, so
// publishing on top of a stale head leaves the concurrent head in place.
func (h *Heads) Publish(id object.Hash, replaced []object.Hash) error {
	err := lockfile.Update(h.path, func(old []byte) ([]byte, error) {
		return formatHeads(replaceHeads(parseHeads(old), id, replaced)), nil
	})
	if err != nil {
		return fmt.Errorf("publish operation %s: %w", id.Short(12), err)
	}
	return nil
}

// Lock holds the heads record so a caller can read and replace it
// atomically.
func (h *Heads) Lock() (*HeadsLock, error) {
	l, err := lockfile.Acquire(h.path)
	if err != nil {
		return nil, fmt.Errorf("lock op heads: %w", err)
	}
	return &HeadsLock{lock: l}, nil
}

// HeadsLock is a held lock on the heads record.
type HeadsLock struct {
	lock *lockfile.Lock
}

// Heads re-reads the heads under the lock.
func (hl *HeadsLock) Heads() ([]object.Hash, error) {
	data, err := hl.lock.Read()
	if err != nil {
		return nil, err
	}
	ids := parseHeads(data)
	if len(ids) == 0 {
		return nil, ErrNoOpHeads
	}
	return ids, nil
}

// Publish replaces heads with id and releases the lock.
func (hl *HeadsLock) Publish(id object.Hash, replaced []object.Hash) error {
	data, err := hl.lock.Read()
	if err != nil {
		return err
	}
	return hl.lock.Commit(formatHeads(replaceHeads(parseHeads(data), id, replaced)))
}

// Release drops the lock without changes.
func (hl *HeadsLock) Release() error { return hl.lock.Release() }

func replaceHeads(current []object.Hash, id object.Hash, replaced []object.Hash) []object.Hash {
	drop := make(map[object.Hash]struct{}, len(replaced))
	for _, r := range replaced {
		drop[r] = struct{}{}
	}
	next := []object.Hash{id}
	for _, c := range current {
		if _, ok := drop[c]; !ok {
			next = append(next, c)
		}
	}
	return object.UniqueHashes(next)
}

func parseHeads(data []byte) []object.Hash {
	var ids []object.Hash
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, object.Hash(line))
		}
	}
	return object.UniqueHashes(ids)
}

func formatHeads(ids []object.Hash) []byte {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(string(id))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
