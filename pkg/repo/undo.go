package repo

import (
	"fmt"

	"github.com/odvcencio/jig/pkg/object"
)

// Undo reverts the effect of operation opID on the current view. The change
// opID made (from its parent's view to its own) is inverted and merged into
// the current view, so later operations stay in place. Merge operations
// cannot be undone.
func (mut *MutableRepo) Undo(opID object.Hash) error {
	store := mut.repo.OpStore
	op, err := store.ReadOperation(opID)
	if err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	if len(op.Parents) != 1 {
		return fmt.Errorf("undo %s: operation has %d parents: %w", opID.Short(12), len(op.Parents), ErrCannotUndo)
	}
	parent, err := store.ReadOperation(op.Parents[0])
	if err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	opView, err := store.ReadView(op.ViewID)
	if err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	parentView, err := store.ReadView(parent.ViewID)
	if err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	if err := mut.MergeView(opView, parentView); err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	return nil
}

// Restore makes the view of operation opID the pending view.
func (mut *MutableRepo) Restore(opID object.Hash) error {
	store := mut.repo.OpStore
	op, err := store.ReadOperation(opID)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	v, err := store.ReadView(op.ViewID)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	mut.SetView(v)
	return nil
}

// Undo records an operation that reverts opID and publishes it.
func (rr *ReadonlyRepo) Undo(opID object.Hash) (*ReadonlyRepo, error) {
	tx := rr.StartTransaction()
	if err := tx.Mut().Undo(opID); err != nil {
		return nil, err
	}
	tx.SetTag("args", "undo "+string(opID))
	return tx.Commit("undo operation " + opID.Short(12))
}

// Restore records an operation that returns the repository to the state of
// opID and publishes it.
func (rr *ReadonlyRepo) Restore(opID object.Hash) (*ReadonlyRepo, error) {
	tx := rr.StartTransaction()
	if err := tx.Mut().Restore(opID); err != nil {
		return nil, err
	}
	tx.SetTag("args", "restore "+string(opID))
	return tx.Commit("restore to operation " + opID.Short(12))
}
