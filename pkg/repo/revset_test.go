package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/view"
)

func TestResolverGraphQueries(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n"})
	c := commitFiles(t, mut, []object.Hash{a}, "c", map[string]string{"f": "c\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)
	resolver := rr.Resolver()

	heads := resolver.VisibleHeads()
	require.Contains(t, heads, b)
	require.Contains(t, heads, c)
	require.NotContains(t, heads, a)

	parents, err := resolver.Parents(b)
	require.NoError(t, err)
	require.Equal(t, []object.Hash{a}, parents)

	ancestors, err := resolver.Ancestors([]object.Hash{b})
	require.NoError(t, err)
	require.Equal(t, []object.Hash{b, a, object.RootCommitID}, ancestors)

	descendants, err := resolver.Descendants([]object.Hash{a})
	require.NoError(t, err)
	require.Len(t, descendants, 3)
	require.Equal(t, a, descendants[0])
	require.ElementsMatch(t, []object.Hash{b, c}, descendants[1:])

	for _, id := range []object.Hash{a, b, c, object.RootCommitID} {
		visible, err := resolver.IsVisible(id)
		require.NoError(t, err)
		require.True(t, visible)
	}
}

func TestResolveSymbols(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n"})
	require.NoError(t, mut.CreateBookmark("main", b))
	mut.View().SetTag("v1", view.Normal(a))
	mut.View().SetRemoteBookmark(view.RemoteRefSymbol{Name: "main", Remote: "origin"},
		view.RemoteRef{Target: view.Normal(a), State: view.RemoteRefTracking})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)
	resolver := rr.Resolver()

	res, err := resolver.ResolveBookmark("main")
	require.NoError(t, err)
	require.Equal(t, Resolution{IDs: []object.Hash{b}}, res)
	res, err = resolver.ResolveTag("v1")
	require.NoError(t, err)
	require.Equal(t, []object.Hash{a}, res.IDs)
	res, err = resolver.ResolveRemoteBookmark("main", "origin")
	require.NoError(t, err)
	require.Equal(t, []object.Hash{a}, res.IDs)

	_, err = resolver.ResolveBookmark("nope")
	require.ErrorIs(t, err, ErrNoSuchSymbol)
	_, err = resolver.ResolveTag("nope")
	require.ErrorIs(t, err, ErrNoSuchSymbol)
	_, err = resolver.ResolveRemoteBookmark("main", "upstream")
	require.ErrorIs(t, err, ErrNoSuchSymbol)

	aCommit, err := rr.Store().ReadCommit(a)
	require.NoError(t, err)
	cases := []struct {
		symbol string
		want   object.Hash
	}{
		{"@", rr.View().WorkingCopies[DefaultWorkspace]},
		{"root()", object.RootCommitID},
		{"main", b},
		{"v1", a},
		{"main@origin", a},
		{string(aCommit.ChangeID), a},
		{string(b), b},
	}
	for _, tc := range cases {
		t.Run(tc.symbol, func(t *testing.T) {
			got, err := resolver.Resolve(tc.symbol, DefaultWorkspace)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err = resolver.Resolve("@", "elsewhere")
	require.ErrorIs(t, err, ErrNoSuchSymbol)
	_, err = resolver.Resolve("zzzz", DefaultWorkspace)
	require.ErrorIs(t, err, ErrNoSuchSymbol)
}

func TestResolvePrefixesReportAmbiguity(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	parent := object.RootCommitID
	for i := 0; i < 20; i++ {
		parent = commitFiles(t, mut, []object.Hash{parent}, fmt.Sprintf("c%d", i), map[string]string{"f": fmt.Sprintf("%d\n", i)})
	}
	rr, err := tx.Commit("setup")
	require.NoError(t, err)
	resolver := rr.Resolver()

	ids, err := resolver.Ancestors(resolver.VisibleHeads())
	require.NoError(t, err)
	commitsByFirst := make(map[byte]int)
	changesByFirst := make(map[byte]int)
	for _, id := range ids {
		commitsByFirst[id[0]]++
		c, err := rr.Store().ReadCommit(id)
		require.NoError(t, err)
		changesByFirst[c.ChangeID[0]]++
	}

	// More than sixteen ids over sixteen hex digits: some first digit repeats.
	var commitPrefix, changePrefix string
	for ch, n := range commitsByFirst {
		if n > 1 {
			commitPrefix = string(ch)
		}
	}
	for ch, n := range changesByFirst {
		if n > 1 {
			changePrefix = string(ch)
		}
	}
	require.NotEmpty(t, commitPrefix)
	require.NotEmpty(t, changePrefix)

	_, err = resolver.ResolveCommitPrefix(commitPrefix)
	require.ErrorIs(t, err, ErrAmbiguousReference)
	var amb *AmbiguousError
	require.True(t, errors.As(err, &amb))
	require.Len(t, amb.Candidates, commitsByFirst[commitPrefix[0]])

	_, err = resolver.ResolveChangeID(changePrefix)
	require.ErrorIs(t, err, ErrAmbiguousReference)

	id, err := resolver.ResolveCommitPrefix(string(parent))
	require.NoError(t, err)
	require.Equal(t, parent, id)

	_, err = resolver.ResolveCommitPrefix("")
	require.ErrorIs(t, err, ErrNoSuchSymbol)
	_, err = resolver.ResolveChangeID("")
	require.ErrorIs(t, err, ErrNoSuchSymbol)
}

func TestResolveHiddenCommit(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	a := commitFiles(t, tx.Mut(), nil, "a", map[string]string{"f": "a\n"})
	rr, err := tx.Commit("setup")
	require.NoError(t, err)
	rr, _, err = rr.Rewrite(Describe{Commit: a, Description: "a2"}, "describe")
	require.NoError(t, err)
	resolver := rr.Resolver()

	visible, err := resolver.IsVisible(a)
	require.NoError(t, err)
	require.False(t, visible)

	// A hidden commit is reachable by its full id only.
	id, err := resolver.ResolveCommitPrefix(string(a))
	require.NoError(t, err)
	require.Equal(t, a, id)
	_, err = resolver.ResolveCommitPrefix(string(a[:63]))
	require.ErrorIs(t, err, ErrNoSuchSymbol)
}

func TestResolveDivergentChange(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b1, err := mut.RewriteCommit(a)
	require.NoError(t, err)
	a1, err := b1.SetDescription("one").Write()
	require.NoError(t, err)
	b2, err := mut.RewriteCommit(a)
	require.NoError(t, err)
	a2, err := b2.SetDescription("two").Write()
	require.NoError(t, err)
	rr, err = tx.Commit("diverge")
	require.NoError(t, err)
	resolver := rr.Resolver()

	c, err := rr.Store().ReadCommit(a1)
	require.NoError(t, err)
	res, err := resolver.ResolveChangeID(string(c.ChangeID))
	require.NoError(t, err)
	require.True(t, res.Conflicted)
	require.ElementsMatch(t, []object.Hash{a1, a2}, res.IDs)

	divergent, err := resolver.DivergentChanges()
	require.NoError(t, err)
	require.Len(t, divergent, 1)

	_, err = resolver.Resolve(string(c.ChangeID), DefaultWorkspace)
	require.ErrorIs(t, err, ErrAmbiguousReference)
}

func TestResolvePrefixNamingChangeAndOtherCommit(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	x := commitFiles(t, mut, nil, "x", map[string]string{"f": "x\n"})
	b, err := mut.NewCommit([]object.Hash{x}, writeFiles(t, mut.Store(), map[string]string{"f": "y\n"}))
	require.NoError(t, err)
	// y's change id is spelled like the start of x's commit id.
	b.Commit().ChangeID = object.ChangeID(x[:32])
	y, err := b.SetDescription("y").Write()
	require.NoError(t, err)
	rr, err = tx.Commit("setup")
	require.NoError(t, err)
	resolver := rr.Resolver()

	res, err := resolver.ResolveChangeID(string(x[:12]))
	require.NoError(t, err)
	require.Equal(t, []object.Hash{y}, res.IDs)

	_, err = resolver.Resolve(string(x[:12]), DefaultWorkspace)
	require.ErrorIs(t, err, ErrAmbiguousReference)
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	require.ElementsMatch(t, []string{string(y), string(x)}, amb.Candidates)

	got, err := resolver.Resolve(string(x), DefaultWorkspace)
	require.NoError(t, err)
	require.Equal(t, x, got)
}
