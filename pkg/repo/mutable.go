package repo

import (
	"fmt"

	"github.com/odvcencio/jig/pkg/dag"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/view"
)

// MutableRepo is the working state of a transaction: a private copy of the
// view plus the rewrites recorded so far. Descendants of rewritten and
// abandoned commits are rebased by RebaseDescendants, which Transaction
// calls before writing.
type MutableRepo struct {
	repo *Repo
	view *view.View

	// rewritten maps a superseded commit to its replacements. More than one
	// replacement makes the change divergent.
	rewritten map[object.Hash][]object.Hash
	abandoned map[object.Hash]struct{}
}

func newMutableRepo(r *Repo, base *view.View) *MutableRepo {
	return &MutableRepo{
		repo:      r,
		view:      base.Clone(),
		rewritten: make(map[object.Hash][]object.Hash),
		abandoned: make(map[object.Hash]struct{}),
	}
}

// Repo returns the underlying repository.
func (mut *MutableRepo) Repo() *Repo { return mut.repo }

// View returns the pending view. Changes made to it are part of the
// transaction.
func (mut *MutableRepo) View() *view.View { return mut.view }

// SetView replaces the pending view wholesale.
func (mut *MutableRepo) SetView(v *view.View) { mut.view = v.Clone() }

// Store returns the object store.
func (mut *MutableRepo) Store() *object.Store { return mut.repo.Store }

// Index returns the commit-graph index.
func (mut *MutableRepo) Index() *dag.Index { return mut.repo.index }

// ReadCommit reads a commit from the store.
func (mut *MutableRepo) ReadCommit(id object.Hash) (*object.CommitObj, error) {
	c, err := mut.repo.Store.ReadCommit(id)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", id.Short(12), err)
	}
	return c, nil
}

// AddHead makes id visible. Heads that become ancestors of id stop being
// heads.
func (mut *MutableRepo) AddHead(id object.Hash) error {
	mut.view.AddHead(id)
	return mut.normalizeHeads()
}

// RemoveHead hides id unless another head still reaches it.
func (mut *MutableRepo) RemoveHead(id object.Hash) {
	mut.view.RemoveHead(id)
}

func (mut *MutableRepo) normalizeHeads() error {
	heads, err := mut.repo.index.Heads(mut.view.Heads())
	if err != nil {
		return fmt.Errorf("normalize heads: %w", err)
	}
	if len(heads) == 0 {
		heads = []object.Hash{object.RootCommitID}
	}
	mut.view.HeadIDs = make(map[object.Hash]struct{}, len(heads))
	for _, id := range heads {
		mut.view.HeadIDs[id] = struct{}{}
	}
	return nil
}

// RecordRewrite notes that old was replaced by replacement. Recording a
// second replacement for the same commit makes its change divergent.
func (mut *MutableRepo) RecordRewrite(old, replacement object.Hash) {
	if old == replacement {
		return
	}
	for _, id := range mut.rewritten[old] {
		if id == replacement {
			return
		}
	}
	mut.rewritten[old] = append(mut.rewritten[old], replacement)
}

// RecordAbandoned notes that old was dropped without replacement. Its
// descendants move onto its parents.
func (mut *MutableRepo) RecordAbandoned(old object.Hash) {
	mut.abandoned[old] = struct{}{}
}

// HasRewrites reports whether rewrites are waiting for RebaseDescendants.
func (mut *MutableRepo) HasRewrites() bool {
	return len(mut.rewritten) > 0 || len(mut.abandoned) > 0
}

// SetWorkingCopy points workspace at commit id.
func (mut *MutableRepo) SetWorkingCopy(workspace string, id object.Hash) error {
	if err := mut.AddHead(id); err != nil {
		return err
	}
	mut.view.WorkingCopies[workspace] = id
	return nil
}

// RemoveWorkingCopy forgets a workspace.
func (mut *MutableRepo) RemoveWorkingCopy(workspace string) {
	delete(mut.view.WorkingCopies, workspace)
}

// CheckoutNew creates an empty commit on parents and makes it the working
// copy of workspace.
func (mut *MutableRepo) CheckoutNew(workspace string, parents []object.Hash) (object.Hash, error) {
	tree, err := mut.MergeCommitTrees(parents)
	if err != nil {
		return "", err
	}
	b, err := mut.NewCommit(parents, tree)
	if err != nil {
		return "", err
	}
	id, err := b.Write()
	if err != nil {
		return "", err
	}
	if err := mut.SetWorkingCopy(workspace, id); err != nil {
		return "", err
	}
	return id, nil
}

// Edit makes an existing commit the working copy of workspace.
func (mut *MutableRepo) Edit(workspace string, id object.Hash) error {
	if id == object.RootCommitID {
		return fmt.Errorf("edit: %w", ErrRootCommit)
	}
	if _, err := mut.ReadCommit(id); err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	return mut.SetWorkingCopy(workspace, id)
}
