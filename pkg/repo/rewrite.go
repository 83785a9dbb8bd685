package repo

import (
	"fmt"
	"sort"

	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/view"
)

// Transform is one logical edit of a commit. Apply writes the edited commit
// through mut and returns its id; transforms that produce no commit return
// an empty hash.
type Transform interface {
	Apply(mut *MutableRepo) (object.Hash, error)
}

// Describe replaces the description of a commit.
type Describe struct {
	Commit      object.Hash
	Description string
}

func (t Describe) Apply(mut *MutableRepo) (object.Hash, error) {
	b, err := mut.RewriteCommit(t.Commit)
	if err != nil {
		return "", fmt.Errorf("describe: %w", err)
	}
	return b.SetDescription(t.Description).Write()
}

// SetTree replaces the content of a commit.
type SetTree struct {
	Commit object.Hash
	Tree   object.Hash
}

func (t SetTree) Apply(mut *MutableRepo) (object.Hash, error) {
	b, err := mut.RewriteCommit(t.Commit)
	if err != nil {
		return "", fmt.Errorf("set tree: %w", err)
	}
	return b.SetTree(t.Tree).Write()
}

// SetParents moves a commit onto new parents. The commit's changes relative
// to its old parents are carried over to the new ones.
type SetParents struct {
	Commit  object.Hash
	Parents []object.Hash
}

func (t SetParents) Apply(mut *MutableRepo) (object.Hash, error) {
	if t.Commit == object.RootCommitID {
		return "", fmt.Errorf("rebase: %w", ErrRootCommit)
	}
	parents := t.Parents
	if len(parents) == 0 {
		parents = []object.Hash{object.RootCommitID}
	}
	for _, p := range parents {
		cyclic, err := mut.repo.index.IsAncestor(t.Commit, p)
		if err != nil {
			return "", fmt.Errorf("rebase: %w", err)
		}
		if cyclic {
			return "", fmt.Errorf("rebase %s onto %s: %w", t.Commit.Short(12), p.Short(12), ErrCyclicRewrite)
		}
	}
	c, err := mut.ReadCommit(t.Commit)
	if err != nil {
		return "", fmt.Errorf("rebase: %w", err)
	}
	return mut.rebaseCommit(t.Commit, c, parents)
}

// Abandon drops a commit. Its descendants move onto its parents.
type Abandon struct {
	Commit object.Hash
}

func (t Abandon) Apply(mut *MutableRepo) (object.Hash, error) {
	if t.Commit == object.RootCommitID {
		return "", fmt.Errorf("abandon: %w", ErrRootCommit)
	}
	if _, err := mut.ReadCommit(t.Commit); err != nil {
		return "", fmt.Errorf("abandon: %w", err)
	}
	mut.RecordAbandoned(t.Commit)
	return "", nil
}

// Duplicate copies a commit under a new change id, optionally onto other
// parents. The original stays in place.
type Duplicate struct {
	Commit  object.Hash
	Parents []object.Hash
}

func (t Duplicate) Apply(mut *MutableRepo) (object.Hash, error) {
	if t.Commit == object.RootCommitID {
		return "", fmt.Errorf("duplicate: %w", ErrRootCommit)
	}
	c, err := mut.ReadCommit(t.Commit)
	if err != nil {
		return "", fmt.Errorf("duplicate: %w", err)
	}
	parents := c.Parents
	if len(t.Parents) > 0 {
		parents = t.Parents
	}
	tree, err := mut.rebasedTree(c.Parents, parents, c.TreeHash)
	if err != nil {
		return "", fmt.Errorf("duplicate: %w", err)
	}
	b, err := mut.NewCommit(parents, tree)
	if err != nil {
		return "", err
	}
	b.SetDescription(c.Description).SetAuthor(c.Author)
	return b.Write()
}

// Rewritten summarizes the effect of a rewrite: which commits were
// replaced (including rebased descendants), which were abandoned, and the
// commit the transform produced.
type Rewritten struct {
	Created   object.Hash
	Replaced  map[object.Hash][]object.Hash
	Abandoned []object.Hash
	Rebased   int
}

// Rewrite applies t and rebases every descendant of the commits it
// replaced or abandoned.
func Rewrite(mut *MutableRepo, t Transform) (*Rewritten, error) {
	created, err := t.Apply(mut)
	if err != nil {
		return nil, err
	}
	res, err := mut.rebaseAll()
	if err != nil {
		return nil, err
	}
	res.Created = created
	return res, nil
}

// Rewrite runs t in a transaction of its own and publishes it as one
// operation.
func (rr *ReadonlyRepo) Rewrite(t Transform, description string) (*ReadonlyRepo, *Rewritten, error) {
	tx := rr.StartTransaction()
	res, err := Rewrite(tx.Mut(), t)
	if err != nil {
		return nil, nil, err
	}
	next, err := tx.Commit(description)
	if err != nil {
		return nil, nil, err
	}
	return next, res, nil
}

// RebaseDescendants rebases all descendants of the rewritten and abandoned
// commits recorded so far and moves references off the old commits. It
// returns the number of commits rebased.
func (mut *MutableRepo) RebaseDescendants() (int, error) {
	res, err := mut.rebaseAll()
	if err != nil {
		return 0, err
	}
	return res.Rebased, nil
}

func (mut *MutableRepo) rebaseAll() (*Rewritten, error) {
	res := &Rewritten{Replaced: make(map[object.Hash][]object.Hash)}
	if !mut.HasRewrites() {
		return res, nil
	}
	ix := mut.repo.index

	var roots []object.Hash
	created := make(map[object.Hash]struct{})
	for old, news := range mut.rewritten {
		roots = append(roots, old)
		for _, id := range news {
			created[id] = struct{}{}
		}
	}
	for old := range mut.abandoned {
		roots = append(roots, old)
	}
	order, err := ix.Descendants(roots, mut.view.Heads())
	if err != nil {
		return nil, fmt.Errorf("rebase descendants: %w", err)
	}

	for _, id := range order {
		if _, ok := mut.rewritten[id]; ok {
			continue
		}
		if _, ok := mut.abandoned[id]; ok {
			continue
		}
		if _, ok := created[id]; ok {
			continue
		}
		c, err := mut.ReadCommit(id)
		if err != nil {
			return nil, fmt.Errorf("rebase descendants: %w", err)
		}
		parents, err := mut.newParents(c.Parents)
		if err != nil {
			return nil, fmt.Errorf("rebase descendants: %w", err)
		}
		if sameHashes(parents, c.Parents) {
			continue
		}
		newID, err := mut.rebaseCommit(id, c, parents)
		if err != nil {
			return nil, fmt.Errorf("rebase %s: %w", id.Short(12), err)
		}
		created[newID] = struct{}{}
		res.Rebased++
	}

	olds := make([]object.Hash, 0, len(mut.rewritten))
	for old := range mut.rewritten {
		olds = append(olds, old)
	}
	sort.Slice(olds, func(i, j int) bool { return olds[i] < olds[j] })
	for _, old := range olds {
		news := mut.rewritten[old]
		res.Replaced[old] = append([]object.Hash(nil), news...)
		if err := mut.updateReferences(old, news, false); err != nil {
			return nil, err
		}
	}
	for old := range mut.abandoned {
		res.Abandoned = append(res.Abandoned, old)
	}
	sort.Slice(res.Abandoned, func(i, j int) bool { return res.Abandoned[i] < res.Abandoned[j] })
	for _, old := range res.Abandoned {
		c, err := mut.ReadCommit(old)
		if err != nil {
			return nil, err
		}
		parents, err := mut.newParents(c.Parents)
		if err != nil {
			return nil, err
		}
		if err := mut.updateReferences(old, parents, true); err != nil {
			return nil, err
		}
	}

	mut.rewritten = make(map[object.Hash][]object.Hash)
	mut.abandoned = make(map[object.Hash]struct{})
	if err := mut.normalizeHeads(); err != nil {
		return nil, err
	}
	return res, nil
}

// newParents maps a commit's parents through the recorded rewrites. A
// parent with a single replacement is followed to its latest version; a
// divergent parent is kept; an abandoned parent is replaced by its own
// (mapped) parents, after which parents that are ancestors of others are
// dropped.
func (mut *MutableRepo) newParents(old []object.Hash) ([]object.Hash, error) {
	var out []object.Hash
	flattened := false
	seen := make(map[object.Hash]bool)

	var resolve func(id object.Hash) error
	resolve = func(id object.Hash) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		if news := mut.rewritten[id]; len(news) == 1 {
			return resolve(news[0])
		}
		if _, ok := mut.abandoned[id]; ok {
			flattened = true
			c, err := mut.ReadCommit(id)
			if err != nil {
				return err
			}
			for _, p := range c.Parents {
				if err := resolve(p); err != nil {
					return err
				}
			}
			return nil
		}
		out = append(out, id)
		return nil
	}
	for _, p := range old {
		if err := resolve(p); err != nil {
			return nil, err
		}
	}

	if flattened && len(out) > 1 {
		heads, err := mut.repo.index.Heads(out)
		if err != nil {
			return nil, err
		}
		keep := make(map[object.Hash]bool, len(heads))
		for _, h := range heads {
			keep[h] = true
		}
		filtered := out[:0]
		for _, id := range out {
			if keep[id] {
				filtered = append(filtered, id)
			}
		}
		out = filtered
	}
	if len(out) == 0 {
		out = []object.Hash{object.RootCommitID}
	}
	return out, nil
}

// rebaseCommit writes a copy of c on newParents with its tree rebased.
func (mut *MutableRepo) rebaseCommit(id object.Hash, c *object.CommitObj, newParents []object.Hash) (object.Hash, error) {
	tree, err := mut.rebasedTree(c.Parents, newParents, c.TreeHash)
	if err != nil {
		return "", err
	}
	b, err := mut.RewriteCommit(id)
	if err != nil {
		return "", err
	}
	return b.SetParents(newParents).SetTree(tree).Write()
}

// rebasedTree moves tree from oldParents to newParents: the change it makes
// relative to the old parents is applied on top of the new parents. When
// both parent sets have the same tree, tree comes back unchanged.
func (mut *MutableRepo) rebasedTree(oldParents, newParents []object.Hash, tree object.Hash) (object.Hash, error) {
	oldBase, err := mut.MergeCommitTrees(oldParents)
	if err != nil {
		return "", err
	}
	newBase, err := mut.MergeCommitTrees(newParents)
	if err != nil {
		return "", err
	}
	if oldBase == newBase {
		return tree, nil
	}
	return MergeTrees(mut.repo.Store, oldBase, tree, newBase)
}

// updateReferences moves bookmarks, working copies and heads off old. For an
// abandoned commit, news are its new parents.
func (mut *MutableRepo) updateReferences(old object.Hash, news []object.Hash, abandoned bool) error {
	ix := mut.repo.index
	target := targetForIDs(news)
	for _, name := range mut.view.BookmarkNames() {
		current := mut.view.LocalBookmark(name)
		if !containsHash(current.AddedIDs(), old) {
			continue
		}
		merged, err := view.MergeRefTargets(ix, current, view.Normal(old), target)
		if err != nil {
			return fmt.Errorf("update bookmark %s: %w", name, err)
		}
		mut.view.SetLocalBookmark(name, merged)
	}

	for _, ws := range sortedWorkspaces(mut.view.WorkingCopies) {
		if mut.view.WorkingCopies[ws] != old {
			continue
		}
		if abandoned {
			if _, err := mut.CheckoutNew(ws, news); err != nil {
				return fmt.Errorf("update working copy %s: %w", ws, err)
			}
			continue
		}
		if err := mut.SetWorkingCopy(ws, news[0]); err != nil {
			return fmt.Errorf("update working copy %s: %w", ws, err)
		}
	}

	if _, ok := mut.view.HeadIDs[old]; ok {
		mut.view.RemoveHead(old)
		for _, id := range news {
			mut.view.AddHead(id)
		}
	}
	return nil
}

// targetForIDs is the ref target for a commit replaced by ids: the id
// itself, or a conflict between all of them.
func targetForIDs(ids []object.Hash) view.RefTarget {
	if len(ids) == 1 {
		return view.Normal(ids[0])
	}
	removes := make([]object.Hash, len(ids)-1)
	return view.FromMerge(merge.New(removes, ids))
}

func sortedWorkspaces(m map[string]object.Hash) []string {
	out := make([]string, 0, len(m))
	for ws := range m {
		out = append(out, ws)
	}
	sort.Strings(out)
	return out
}

func containsHash(ids []object.Hash, id object.Hash) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func sameHashes(a, b []object.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
