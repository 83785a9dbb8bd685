package repo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/jig/pkg/object"
)

func TestRewriteRebasesDescendants(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "1\n2\n3\n4\n5\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "one\n2\n3\n4\n5\n"})
	c := commitFiles(t, mut, []object.Hash{b}, "c", map[string]string{"f": "one\n2\n3\n4\n5\n", "g": "g\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	newTree := writeFiles(t, store, map[string]string{"f": "1\n2\n3\n4\nfive\n"})
	rr, res, err := rr.Rewrite(SetTree{Commit: a, Tree: newTree}, "edit a")
	require.NoError(t, err)
	require.NotEmpty(t, res.Created)
	require.Equal(t, 2, res.Rebased)
	require.Len(t, res.Replaced, 3)

	a2 := res.Created
	b2 := res.Replaced[b][0]
	c2 := res.Replaced[c][0]

	bc := mustCommit(t, store, b2)
	require.Equal(t, []object.Hash{a2}, bc.Parents)
	require.Equal(t, mustCommit(t, store, b).ChangeID, bc.ChangeID)
	require.Equal(t, "b", bc.Description)
	require.Equal(t, "one\n2\n3\n4\nfive\n", fileContent(t, store, bc.TreeHash, "f"))

	cc := mustCommit(t, store, c2)
	require.Equal(t, []object.Hash{b2}, cc.Parents)
	require.Equal(t, "g\n", fileContent(t, store, cc.TreeHash, "g"))
	require.Equal(t, "one\n2\n3\n4\nfive\n", fileContent(t, store, cc.TreeHash, "f"))

	resolver := rr.Resolver()
	for _, old := range []object.Hash{a, b, c} {
		visible, err := resolver.IsVisible(old)
		require.NoError(t, err)
		require.False(t, visible, "%s still visible", old.Short(8))
	}
	require.Contains(t, resolver.VisibleHeads(), c2)
}

func TestRewriteChainsConflictsWithoutNesting(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n"})
	c := commitFiles(t, mut, []object.Hash{b}, "c", map[string]string{"f": "c\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	rr, res, err := rr.Rewrite(SetTree{Commit: a, Tree: writeFiles(t, store, map[string]string{"f": "x\n"})}, "edit a")
	require.NoError(t, err)
	b2 := res.Replaced[b][0]
	c2 := res.Replaced[c][0]

	adds, removes := conflictSides(t, store, mustCommit(t, store, b2).TreeHash, "f")
	require.Equal(t, []string{"b\n", "x\n"}, adds)
	require.Equal(t, []string{"a\n"}, removes)

	// The child's conflict has the same shape: its own side against the
	// new base, with the intermediate state cancelled out.
	adds, removes = conflictSides(t, store, mustCommit(t, store, c2).TreeHash, "f")
	require.ElementsMatch(t, []string{"c\n", "x\n"}, adds)
	require.Equal(t, []string{"a\n"}, removes)

	// Resolving the parent leaves the child with a plain two-sided conflict.
	rr, res, err = rr.Rewrite(SetTree{Commit: b2, Tree: writeFiles(t, store, map[string]string{"f": "y\n"})}, "resolve b")
	require.NoError(t, err)
	c3 := res.Replaced[c2][0]
	adds, removes = conflictSides(t, store, mustCommit(t, store, c3).TreeHash, "f")
	require.ElementsMatch(t, []string{"c\n", "y\n"}, adds)
	require.Equal(t, []string{"b\n"}, removes)

	// Resolving the child the same way as the parent makes it clean.
	_, res, err = rr.Rewrite(SetTree{Commit: c3, Tree: writeFiles(t, store, map[string]string{"f": "y\n"})}, "resolve c")
	require.NoError(t, err)
	require.Equal(t, "y\n", fileContent(t, store, mustCommit(t, store, res.Created).TreeHash, "f"))
}

func TestRebaseOntoSameParentsKeepsTree(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n", "g": "g\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)
	bTree := mustCommit(t, store, b).TreeHash

	_, res, err := rr.Rewrite(Describe{Commit: a, Description: "renamed"}, "describe a")
	require.NoError(t, err)
	b2 := mustCommit(t, store, res.Replaced[b][0])
	require.Equal(t, bTree, b2.TreeHash)

	_, res, err = rr.Rewrite(SetParents{Commit: b, Parents: []object.Hash{a}}, "rebase b in place")
	require.NoError(t, err)
	require.Equal(t, bTree, mustCommit(t, store, res.Created).TreeHash)
}

func TestSetParentsMovesChanges(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"base": "base\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"base": "base\n", "b": "b\n"})
	c := commitFiles(t, mut, []object.Hash{a}, "c", map[string]string{"base": "base\n", "c": "c\n"})
	d := commitFiles(t, mut, []object.Hash{c}, "d", map[string]string{"base": "base\n", "c": "c\n", "d": "d\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	_, res, err := rr.Rewrite(SetParents{Commit: c, Parents: []object.Hash{b}}, "rebase c onto b")
	require.NoError(t, err)
	require.Equal(t, 1, res.Rebased)

	c2 := mustCommit(t, store, res.Created)
	require.Equal(t, []object.Hash{b}, c2.Parents)
	require.Equal(t, "b\n", fileContent(t, store, c2.TreeHash, "b"))
	require.Equal(t, "c\n", fileContent(t, store, c2.TreeHash, "c"))

	d2 := mustCommit(t, store, res.Replaced[d][0])
	require.Equal(t, []object.Hash{res.Created}, d2.Parents)
	for _, name := range []string{"base", "b", "c", "d"} {
		_, ok := treeEntry(t, store, d2.TreeHash, name)
		require.True(t, ok, "missing %s", name)
	}
}

func TestRewriteRejectsCyclesAndRoot(t *testing.T) {
	_, rr := newTestRepo(t)

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)
	opBefore := rr.OperationID()

	_, _, err = rr.Rewrite(SetParents{Commit: a, Parents: []object.Hash{b}}, "cycle")
	require.ErrorIs(t, err, ErrCyclicRewrite)
	_, _, err = rr.Rewrite(SetParents{Commit: a, Parents: []object.Hash{a}}, "self")
	require.ErrorIs(t, err, ErrCyclicRewrite)

	for _, tr := range []Transform{
		Describe{Commit: object.RootCommitID, Description: "x"},
		SetParents{Commit: object.RootCommitID, Parents: []object.Hash{a}},
		Abandon{Commit: object.RootCommitID},
		Duplicate{Commit: object.RootCommitID},
	} {
		_, _, err = rr.Rewrite(tr, "root")
		require.ErrorIs(t, err, ErrRootCommit, "%T", tr)
	}

	// Failed rewrites publish nothing.
	heads, err := rr.Repo().OpHeads.Read()
	require.NoError(t, err)
	require.Equal(t, []object.Hash{opBefore}, heads)
}

func TestAbandonMovesChildrenBookmarksAndWorkingCopy(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "a\n", "g": "g\n"})
	require.NoError(t, mut.CreateBookmark("feature", b))
	wc, err := mut.CheckoutNew(DefaultWorkspace, []object.Hash{b})
	require.NoError(t, err)
	rr, err = tx.Commit("setup")
	require.NoError(t, err)

	rr, res, err := rr.Rewrite(Abandon{Commit: b}, "abandon b")
	require.NoError(t, err)
	require.Equal(t, []object.Hash{b}, res.Abandoned)

	wc2 := rr.View().WorkingCopies[DefaultWorkspace]
	require.Equal(t, res.Replaced[wc][0], wc2)
	wcCommit := mustCommit(t, store, wc2)
	require.Equal(t, []object.Hash{a}, wcCommit.Parents)
	require.Equal(t, mustCommit(t, store, a).TreeHash, wcCommit.TreeHash)

	id, ok := rr.View().LocalBookmark("feature").AsNormal()
	require.True(t, ok)
	require.Equal(t, a, id)

	visible, err := rr.Resolver().IsVisible(b)
	require.NoError(t, err)
	require.False(t, visible)

	// Abandoning the working-copy commit itself starts a fresh one on its
	// parent.
	rr, _, err = rr.Rewrite(Abandon{Commit: wc2}, "abandon working copy")
	require.NoError(t, err)
	wc3 := rr.View().WorkingCopies[DefaultWorkspace]
	require.NotEqual(t, wc2, wc3)
	c := mustCommit(t, store, wc3)
	require.Equal(t, []object.Hash{a}, c.Parents)
	require.NotEqual(t, wcCommit.ChangeID, c.ChangeID)
}

func TestAbandonMergeParentReducesToHeads(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"a": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"a": "a\n", "b": "b\n"})
	x := commitFiles(t, mut, []object.Hash{a}, "x", map[string]string{"a": "a\n", "x": "x\n"})
	m := commitFiles(t, mut, []object.Hash{b, x}, "merge", map[string]string{"a": "a\n", "b": "b\n", "x": "x\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	_, res, err := rr.Rewrite(Abandon{Commit: b}, "abandon b")
	require.NoError(t, err)
	m2 := mustCommit(t, store, res.Replaced[m][0])
	require.Equal(t, []object.Hash{x}, m2.Parents)
	_, ok := treeEntry(t, store, m2.TreeHash, "b")
	require.False(t, ok)
	require.Equal(t, "x\n", fileContent(t, store, m2.TreeHash, "x"))
}

func TestDivergentRewriteConflictsBookmark(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n"})
	c := commitFiles(t, mut, []object.Hash{b}, "c", map[string]string{"f": "c\n"})
	require.NoError(t, mut.CreateBookmark("feature", b))
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	tx = rr.StartTransaction()
	mut = tx.Mut()
	b1Builder, err := mut.RewriteCommit(b)
	require.NoError(t, err)
	b1, err := b1Builder.SetDescription("one").Write()
	require.NoError(t, err)
	b2Builder, err := mut.RewriteCommit(b)
	require.NoError(t, err)
	b2, err := b2Builder.SetDescription("two").Write()
	require.NoError(t, err)
	rebased, err := mut.RebaseDescendants()
	require.NoError(t, err)
	require.Zero(t, rebased)
	rr, err = tx.Commit("diverge")
	require.NoError(t, err)

	// The child stays on the divergent commit.
	require.Equal(t, []object.Hash{b}, mustCommit(t, store, c).Parents)
	visible, err := rr.Resolver().IsVisible(c)
	require.NoError(t, err)
	require.True(t, visible)

	target := rr.View().LocalBookmark("feature")
	require.True(t, target.HasConflict())
	require.ElementsMatch(t, []object.Hash{b1, b2}, target.AddedIDs())

	divergent, err := rr.Resolver().DivergentChanges()
	require.NoError(t, err)
	changeID := mustCommit(t, store, b).ChangeID
	require.Contains(t, divergent, changeID)
	require.Subset(t, divergent[changeID], []object.Hash{b1, b2})
}

func TestDuplicate(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "a\n", "g": "g\n"})
	x := commitFiles(t, mut, nil, "x", map[string]string{"x": "x\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	rr, res, err := rr.Rewrite(Duplicate{Commit: b}, "duplicate b")
	require.NoError(t, err)
	dup := mustCommit(t, store, res.Created)
	orig := mustCommit(t, store, b)
	require.Equal(t, orig.TreeHash, dup.TreeHash)
	require.Equal(t, orig.Parents, dup.Parents)
	require.Equal(t, orig.Description, dup.Description)
	require.NotEqual(t, orig.ChangeID, dup.ChangeID)
	visible, err := rr.Resolver().IsVisible(b)
	require.NoError(t, err)
	require.True(t, visible)

	_, res, err = rr.Rewrite(Duplicate{Commit: b, Parents: []object.Hash{x}}, "duplicate b onto x")
	require.NoError(t, err)
	moved := mustCommit(t, store, res.Created)
	require.Equal(t, []object.Hash{x}, moved.Parents)
	require.Equal(t, "g\n", fileContent(t, store, moved.TreeHash, "g"))
	require.Equal(t, "x\n", fileContent(t, store, moved.TreeHash, "x"))
	_, ok := treeEntry(t, store, moved.TreeHash, "f")
	require.False(t, ok)
}

func TestMergeCommitTrees(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "1\n2\n3\n4\n5\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "one\n2\n3\n4\n5\n"})
	c := commitFiles(t, mut, []object.Hash{a}, "c", map[string]string{"f": "1\n2\n3\n4\nfive\n", "new": "n\n"})

	tree, err := mut.MergeCommitTrees([]object.Hash{b, c})
	require.NoError(t, err)
	require.Equal(t, "one\n2\n3\n4\nfive\n", fileContent(t, store, tree, "f"))
	require.Equal(t, "n\n", fileContent(t, store, tree, "new"))

	tree, err = mut.MergeCommitTrees(nil)
	require.NoError(t, err)
	require.Equal(t, object.EmptyTreeHash(), tree)

	tree, err = mut.MergeCommitTrees([]object.Hash{b})
	require.NoError(t, err)
	require.Equal(t, mustCommit(t, store, b).TreeHash, tree)
}

func TestMergeTreesConflictKinds(t *testing.T) {
	r, _ := newTestRepo(t)
	store := r.Store

	base := writeFiles(t, store, map[string]string{"f": "base\n", "gone": "x\n"})
	left := writeFiles(t, store, map[string]string{"f": "left\n"})
	right := writeFiles(t, store, map[string]string{"f": "right\n", "gone": "changed\n"})

	merged, err := MergeTrees(store, base, left, right)
	require.NoError(t, err)
	adds, removes := conflictSides(t, store, merged, "f")
	require.Equal(t, []string{"left\n", "right\n"}, adds)
	require.Equal(t, []string{"base\n"}, removes)

	// Deleted on one side, modified on the other.
	e, ok := treeEntry(t, store, merged, "gone")
	require.True(t, ok)
	require.Equal(t, object.TreeModeConflict, e.Mode)

	same, err := MergeTrees(store, base, left, left)
	require.NoError(t, err)
	require.Equal(t, left, same)
}
