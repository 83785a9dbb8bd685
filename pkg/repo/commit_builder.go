package repo

import (
	"fmt"
	"time"

	"github.com/odvcencio/jig/pkg/object"
)

// CommitBuilder prepares a commit and writes it through a MutableRepo. A
// builder made by RewriteCommit keeps the change id of the commit it
// replaces and records the rewrite when written.
type CommitBuilder struct {
	mut         *MutableRepo
	commit      object.CommitObj
	predecessor object.Hash
}

func (mut *MutableRepo) signature(now time.Time) object.Signature {
	s := mut.repo.Settings
	return object.Signature{Name: s.User.Name, Email: s.User.Email, When: now}
}

// NewCommit starts a commit with a fresh change id.
func (mut *MutableRepo) NewCommit(parents []object.Hash, tree object.Hash) (*CommitBuilder, error) {
	changeID, err := object.NewChangeID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if len(parents) == 0 {
		parents = []object.Hash{object.RootCommitID}
	}
	return &CommitBuilder{
		mut: mut,
		commit: object.CommitObj{
			TreeHash:  tree,
			Parents:   append([]object.Hash(nil), parents...),
			ChangeID:  changeID,
			Author:    mut.signature(now),
			Committer: mut.signature(now),
		},
	}, nil
}

// RewriteCommit starts a replacement for id. The committer is refreshed and
// any previous signature dropped.
func (mut *MutableRepo) RewriteCommit(id object.Hash) (*CommitBuilder, error) {
	if id == object.RootCommitID {
		return nil, ErrRootCommit
	}
	c, err := mut.ReadCommit(id)
	if err != nil {
		return nil, err
	}
	b := &CommitBuilder{mut: mut, commit: *c, predecessor: id}
	b.commit.Parents = append([]object.Hash(nil), c.Parents...)
	b.commit.Committer = mut.signature(time.Now())
	b.commit.Signature = ""
	return b, nil
}

func (b *CommitBuilder) SetDescription(d string) *CommitBuilder {
	b.commit.Description = d
	return b
}

func (b *CommitBuilder) SetTree(tree object.Hash) *CommitBuilder {
	b.commit.TreeHash = tree
	return b
}

func (b *CommitBuilder) SetParents(parents []object.Hash) *CommitBuilder {
	if len(parents) == 0 {
		parents = []object.Hash{object.RootCommitID}
	}
	b.commit.Parents = append([]object.Hash(nil), parents...)
	return b
}

func (b *CommitBuilder) SetAuthor(sig object.Signature) *CommitBuilder {
	b.commit.Author = sig
	return b
}

// GenerateNewChangeID detaches the commit from its predecessor's change.
func (b *CommitBuilder) GenerateNewChangeID() error {
	id, err := object.NewChangeID()
	if err != nil {
		return err
	}
	b.commit.ChangeID = id
	b.predecessor = ""
	return nil
}

// Commit returns the commit as it will be written.
func (b *CommitBuilder) Commit() *object.CommitObj { return &b.commit }

// Write signs (when a signer is configured), stores the commit, makes it a
// head and records the rewrite of its predecessor.
func (b *CommitBuilder) Write() (object.Hash, error) {
	r := b.mut.repo
	if r.Signer != nil {
		sig, err := r.Signer(object.CommitSigningPayload(&b.commit))
		if err != nil {
			return "", fmt.Errorf("sign commit: %w", err)
		}
		b.commit.Signature = sig
	}
	id, err := r.Store.WriteCommit(&b.commit)
	if err != nil {
		return "", err
	}
	if err := b.mut.AddHead(id); err != nil {
		return "", err
	}
	if b.predecessor != "" {
		b.mut.RecordRewrite(b.predecessor, id)
	}
	return id, nil
}
