package repo

import (
	"fmt"
	"time"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/oplog"
)

// Transaction collects changes on top of a ReadonlyRepo and records them as
// one operation. Nothing is visible to other processes until Commit
// publishes the operation.
type Transaction struct {
	base      *ReadonlyRepo
	mut       *MutableRepo
	parentOps []object.Hash
	start     time.Time
	tags      map[string]string
	snapshot  bool
}

// StartTransaction begins a transaction based on rr.
func (rr *ReadonlyRepo) StartTransaction() *Transaction {
	return &Transaction{
		base:      rr,
		mut:       newMutableRepo(rr.repo, rr.view),
		parentOps: []object.Hash{rr.opID},
		start:     time.Now(),
	}
}

// Base returns the repo the transaction started from.
func (tx *Transaction) Base() *ReadonlyRepo { return tx.base }

// Mut returns the mutable repo holding the pending changes.
func (tx *Transaction) Mut() *MutableRepo { return tx.mut }

// SetTag attaches a key/value pair to the operation metadata.
func (tx *Transaction) SetTag(key, value string) {
	if tx.tags == nil {
		tx.tags = make(map[string]string)
	}
	tx.tags[key] = value
}

// MarkSnapshot records that the operation only snapshots the working copy.
func (tx *Transaction) MarkSnapshot() { tx.snapshot = true }

// Commit rebases pending descendants, writes the view and the operation and
// publishes it as the new op head.
func (tx *Transaction) Commit(description string) (*ReadonlyRepo, error) {
	r := tx.base.repo
	opID, err := tx.write(description)
	if err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	if err := r.OpHeads.Publish(opID, tx.parentOps); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	r.Logger.Debug("published operation", "op", opID.Short(12), "description", description)
	return r.LoadAt(opID)
}

func (tx *Transaction) write(description string) (object.Hash, error) {
	r := tx.base.repo
	if tx.mut.HasRewrites() {
		n, err := tx.mut.RebaseDescendants()
		if err != nil {
			return "", err
		}
		if n > 0 {
			r.Logger.Debug("rebased descendants", "count", n)
		}
	}
	if err := tx.mut.normalizeHeads(); err != nil {
		return "", err
	}
	viewID, err := r.OpStore.WriteView(tx.mut.view)
	if err != nil {
		return "", err
	}
	op := &oplog.Operation{
		ViewID:  viewID,
		Parents: tx.parentOps,
		Metadata: oplog.Metadata{
			Start:       tx.start,
			End:         time.Now(),
			Description: description,
			Hostname:    r.Settings.Hostname(),
			Username:    r.Settings.Username(),
			IsSnapshot:  tx.snapshot,
			Tags:        tx.tags,
		},
	}
	return r.OpStore.WriteOperation(op)
}
