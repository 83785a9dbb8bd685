package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/jig/pkg/dag"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/oplog"
	"github.com/odvcencio/jig/pkg/view"
)

// ReadonlyRepo is the repository as of one operation.
type ReadonlyRepo struct {
	repo *Repo
	opID object.Hash
	op   *oplog.Operation
	view *view.View
}

// Repo returns the underlying repository.
func (rr *ReadonlyRepo) Repo() *Repo { return rr.repo }

// OperationID returns the id of the operation this repo was loaded at.
func (rr *ReadonlyRepo) OperationID() object.Hash { return rr.opID }

// Operation returns the operation this repo was loaded at.
func (rr *ReadonlyRepo) Operation() *oplog.Operation { return rr.op }

// View returns the view. Callers must not modify it.
func (rr *ReadonlyRepo) View() *view.View { return rr.view }

// Store returns the object store.
func (rr *ReadonlyRepo) Store() *object.Store { return rr.repo.Store }

// Index returns the commit-graph index.
func (rr *ReadonlyRepo) Index() *dag.Index { return rr.repo.index }

// LoadAt returns the repository as of operation opID.
func (r *Repo) LoadAt(opID object.Hash) (*ReadonlyRepo, error) {
	op, err := r.OpStore.ReadOperation(opID)
	if err != nil {
		return nil, fmt.Errorf("load operation %s: %w", opID.Short(12), err)
	}
	v, err := r.OpStore.ReadView(op.ViewID)
	if err != nil {
		return nil, fmt.Errorf("load view of operation %s: %w", opID.Short(12), err)
	}
	return &ReadonlyRepo{repo: r, opID: opID, op: op, view: v}, nil
}

// Load returns the repository at the current operation. When concurrent
// writers left several op heads, they are merged into a new operation
// first.
func (r *Repo) Load() (*ReadonlyRepo, error) {
	heads, err := r.OpHeads.Read()
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if len(heads) == 1 {
		return r.LoadAt(heads[0])
	}
	return r.reconcileOpHeads()
}

// reconcileOpHeads merges divergent op heads under the op heads lock. Heads
// are folded in end-time order, each one merged against the closest common
// ancestor of the heads merged so far.
func (r *Repo) reconcileOpHeads() (*ReadonlyRepo, error) {
	lock, err := r.OpHeads.Lock()
	if err != nil {
		return nil, fmt.Errorf("reconcile op heads: %w", err)
	}
	defer lock.Release()

	all, err := lock.Heads()
	if err != nil {
		return nil, fmt.Errorf("reconcile op heads: %w", err)
	}
	opIndex := r.OpStore.Index()
	heads, err := opIndex.Heads(all)
	if err != nil {
		return nil, fmt.Errorf("reconcile op heads: %w", err)
	}
	if len(heads) == 1 {
		if len(all) > 1 {
			if err := lock.Publish(heads[0], all); err != nil {
				return nil, fmt.Errorf("reconcile op heads: %w", err)
			}
		}
		return r.LoadAt(heads[0])
	}

	ops := make(map[object.Hash]*oplog.Operation, len(heads))
	for _, id := range heads {
		op, err := r.OpStore.ReadOperation(id)
		if err != nil {
			return nil, fmt.Errorf("reconcile op heads: %w", err)
		}
		ops[id] = op
	}
	sort.SliceStable(heads, func(i, j int) bool {
		ei, ej := ops[heads[i]].Metadata.End, ops[heads[j]].Metadata.End
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return heads[i] < heads[j]
	})

	r.Logger.Info("reconciling divergent operations", "heads", len(heads))
	base, err := r.LoadAt(heads[0])
	if err != nil {
		return nil, err
	}
	tx := base.StartTransaction()
	tx.parentOps = append([]object.Hash(nil), heads...)
	for i := 1; i < len(heads); i++ {
		ancestor, ok, err := opIndex.ClosestCommonAncestor(heads[:i], heads[i:i+1])
		if err != nil {
			return nil, fmt.Errorf("reconcile op heads: %w", err)
		}
		if !ok {
			ancestor = oplog.RootOperationID
		}
		ancestorOp, err := r.OpStore.ReadOperation(ancestor)
		if err != nil {
			return nil, err
		}
		baseView, err := r.OpStore.ReadView(ancestorOp.ViewID)
		if err != nil {
			return nil, err
		}
		otherView, err := r.OpStore.ReadView(ops[heads[i]].ViewID)
		if err != nil {
			return nil, err
		}
		if err := tx.mut.MergeView(baseView, otherView); err != nil {
			return nil, fmt.Errorf("reconcile op heads: %w", err)
		}
		if _, err := tx.mut.RebaseDescendants(); err != nil {
			return nil, fmt.Errorf("reconcile op heads: %w", err)
		}
	}

	opID, err := tx.write("reconcile divergent operations")
	if err != nil {
		return nil, fmt.Errorf("reconcile op heads: %w", err)
	}
	if err := lock.Publish(opID, all); err != nil {
		return nil, fmt.Errorf("reconcile op heads: %w", err)
	}
	return r.LoadAt(opID)
}

// ResolveOperation finds an operation in the log of rr by id prefix. "@"
// is rr's own operation and "@-" its parent.
func (rr *ReadonlyRepo) ResolveOperation(prefix string) (object.Hash, error) {
	switch prefix {
	case "@":
		return rr.opID, nil
	case "@-":
		if len(rr.op.Parents) != 1 {
			return "", fmt.Errorf("operation %s has %d parents: %w", rr.opID.Short(12), len(rr.op.Parents), ErrAmbiguousReference)
		}
		return rr.op.Parents[0], nil
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("operation %q: %w", prefix, ErrNoSuchSymbol)
	}
	ids, err := rr.repo.OpStore.Log(rr.opID, 0)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(string(id), prefix) {
			matches = append(matches, string(id))
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("operation %q: %w", prefix, ErrNoSuchSymbol)
	case 1:
		return object.Hash(matches[0]), nil
	}
	return "", &AmbiguousError{Symbol: prefix, Candidates: matches}
}
