package repo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/jig/pkg/object"
)

func TestConcurrentOperationsReconcile(t *testing.T) {
	r, rr := newTestRepo(t)

	tx1 := rr.StartTransaction()
	a := commitFiles(t, tx1.Mut(), nil, "a", map[string]string{"a": "a\n"})
	require.NoError(t, tx1.Mut().CreateBookmark("left", a))

	tx2 := rr.StartTransaction()
	b := commitFiles(t, tx2.Mut(), nil, "b", map[string]string{"b": "b\n"})
	require.NoError(t, tx2.Mut().CreateBookmark("right", b))

	op1, err := tx1.Commit("left")
	require.NoError(t, err)
	op2, err := tx2.Commit("right")
	require.NoError(t, err)

	heads, err := r.OpHeads.Read()
	require.NoError(t, err)
	require.Len(t, heads, 2)

	merged, err := r.Load()
	require.NoError(t, err)
	require.ElementsMatch(t, []object.Hash{op1.OperationID(), op2.OperationID()}, merged.Operation().Parents)
	require.Equal(t, "reconcile divergent operations", merged.Operation().Metadata.Description)

	v := merged.View()
	require.True(t, v.LocalBookmark("left").Equal(op1.View().LocalBookmark("left")))
	require.True(t, v.LocalBookmark("right").Equal(op2.View().LocalBookmark("right")))
	resolver := merged.Resolver()
	for _, id := range []object.Hash{a, b} {
		visible, err := resolver.IsVisible(id)
		require.NoError(t, err)
		require.True(t, visible)
	}

	heads, err = r.OpHeads.Read()
	require.NoError(t, err)
	require.Equal(t, []object.Hash{merged.OperationID()}, heads)

	// Loading again does not merge a second time.
	again, err := r.Load()
	require.NoError(t, err)
	require.Equal(t, merged.OperationID(), again.OperationID())
}

func TestConcurrentRewriteRebasesOtherSidesWork(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	a := commitFiles(t, tx.Mut(), nil, "a", map[string]string{"f": "a\n"})
	rr, err := tx.Commit("commit a")
	require.NoError(t, err)

	// One process rewrites a while another adds a child to the old a.
	tx1 := rr.StartTransaction()
	res, err := Rewrite(tx1.Mut(), Describe{Commit: a, Description: "described"})
	require.NoError(t, err)
	a2 := res.Created

	tx2 := rr.StartTransaction()
	child := commitFiles(t, tx2.Mut(), []object.Hash{a}, "child", map[string]string{"f": "a\n", "g": "g\n"})

	_, err = tx1.Commit("describe a")
	require.NoError(t, err)
	_, err = tx2.Commit("add child")
	require.NoError(t, err)

	merged, err := r.Load()
	require.NoError(t, err)
	ids := changeCommits(t, merged, mustCommit(t, store, child).ChangeID)
	require.Len(t, ids, 1)
	c := mustCommit(t, store, ids[0])
	require.Equal(t, []object.Hash{a2}, c.Parents)
	require.Equal(t, "g\n", fileContent(t, store, c.TreeHash, "g"))

	visible, err := merged.Resolver().IsVisible(a)
	require.NoError(t, err)
	require.False(t, visible)
}

func TestConcurrentBookmarkMovesConflict(t *testing.T) {
	r, rr := newTestRepo(t)

	tx := rr.StartTransaction()
	base := commitFiles(t, tx.Mut(), nil, "base", map[string]string{"f": "base\n"})
	require.NoError(t, tx.Mut().CreateBookmark("main", base))
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	tx1 := rr.StartTransaction()
	x := commitFiles(t, tx1.Mut(), []object.Hash{base}, "x", map[string]string{"f": "x\n"})
	require.NoError(t, tx1.Mut().SetBookmark("main", x, false))
	tx2 := rr.StartTransaction()
	y := commitFiles(t, tx2.Mut(), []object.Hash{base}, "y", map[string]string{"f": "y\n"})
	require.NoError(t, tx2.Mut().SetBookmark("main", y, false))
	_, err = tx1.Commit("move to x")
	require.NoError(t, err)
	_, err = tx2.Commit("move to y")
	require.NoError(t, err)

	merged, err := r.Load()
	require.NoError(t, err)
	target := merged.View().LocalBookmark("main")
	require.True(t, target.HasConflict())
	require.ElementsMatch(t, []object.Hash{x, y}, target.AddedIDs())
	require.Equal(t, []object.Hash{base}, target.RemovedIDs())

	res, err := merged.Resolver().ResolveBookmark("main")
	require.NoError(t, err)
	require.True(t, res.Conflicted)
	_, ok := res.Single()
	require.False(t, ok)
}

func TestConcurrentRewritesOnDisjointSubtrees(t *testing.T) {
	r, rr := newTestRepo(t)
	store := r.Store

	tx := rr.StartTransaction()
	mut := tx.Mut()
	base := commitFiles(t, mut, nil, "base", map[string]string{"f": "base\n"})
	p := commitFiles(t, mut, []object.Hash{base}, "p", map[string]string{"f": "base\n", "p": "p\n"})
	pc := commitFiles(t, mut, []object.Hash{p}, "p child", map[string]string{"f": "base\n", "p": "p\n", "pc": "pc\n"})
	q := commitFiles(t, mut, []object.Hash{base}, "q", map[string]string{"f": "base\n", "q": "q\n"})
	qc := commitFiles(t, mut, []object.Hash{q}, "q child", map[string]string{"f": "base\n", "q": "q\n", "qc": "qc\n"})
	require.NoError(t, mut.CreateBookmark("left", pc))
	require.NoError(t, mut.CreateBookmark("right", qc))
	rr, err := tx.Commit("setup")
	require.NoError(t, err)

	tx1 := rr.StartTransaction()
	res1, err := Rewrite(tx1.Mut(), Describe{Commit: p, Description: "p described"})
	require.NoError(t, err)
	tx2 := rr.StartTransaction()
	res2, err := Rewrite(tx2.Mut(), Describe{Commit: q, Description: "q described"})
	require.NoError(t, err)
	_, err = tx1.Commit("describe p")
	require.NoError(t, err)
	_, err = tx2.Commit("describe q")
	require.NoError(t, err)

	merged, err := r.Load()
	require.NoError(t, err)
	v := merged.View()
	for _, tc := range []struct {
		bookmark string
		parent   object.Hash
		file     string
	}{
		{"left", res1.Created, "pc"},
		{"right", res2.Created, "qc"},
	} {
		target := v.LocalBookmark(tc.bookmark)
		require.False(t, target.HasConflict(), tc.bookmark)
		id, ok := target.AsNormal()
		require.True(t, ok)
		c := mustCommit(t, store, id)
		require.Equal(t, []object.Hash{tc.parent}, c.Parents)
		require.Equal(t, tc.file+"\n", fileContent(t, store, c.TreeHash, tc.file))
		require.Equal(t, "base\n", fileContent(t, store, c.TreeHash, "f"))
	}

	divergent, err := merged.Resolver().DivergentChanges()
	require.NoError(t, err)
	require.Empty(t, divergent)
	for _, old := range []object.Hash{p, q, pc, qc} {
		visible, err := merged.Resolver().IsVisible(old)
		require.NoError(t, err)
		require.False(t, visible)
	}
}
