package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/remote"
	"github.com/odvcencio/jig/pkg/view"
)

func newDirRemote(t *testing.T) *remote.DirRemote {
	t.Helper()
	d, err := remote.NewDirRemote(filepath.Join(t.TempDir(), "origin"))
	require.NoError(t, err)
	return d
}

func remoteBookmark(t *testing.T, d *remote.DirRemote, name string) object.Hash {
	t.Helper()
	m, err := d.ListBookmarks(context.Background())
	require.NoError(t, err)
	return m[name]
}

// publishBase creates commit x in a new repo, points main at it and pushes
// main to origin.
func publishBase(t *testing.T, origin remote.Transport) (*ReadonlyRepo, object.Hash) {
	t.Helper()
	ctx := context.Background()
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	x := commitFiles(t, tx.Mut(), nil, "x", map[string]string{"f": "x\n"})
	require.NoError(t, tx.Mut().CreateBookmark("main", x))
	plan, err := tx.Mut().ExportLocal(ctx, origin, "main", "origin")
	require.NoError(t, err)
	require.Equal(t, PushUpdate, plan.Action)
	rr, err = tx.Commit("push main")
	require.NoError(t, err)

	rec := rr.View().RemoteBookmark(view.RemoteRefSymbol{Name: "main", Remote: "origin"})
	require.True(t, rec.IsTracking())
	require.True(t, rec.Target.Equal(view.Normal(x)))
	return rr, x
}

// cloneAndAdvance fetches origin into a fresh auto-tracking repo, commits on
// top of main and pushes it.
func cloneAndAdvance(t *testing.T, origin remote.Transport, base object.Hash) object.Hash {
	t.Helper()
	ctx := context.Background()
	r2, rr2 := newTestRepo(t)
	r2.Settings.Bookmarks.AutoTrack = true

	tx := rr2.StartTransaction()
	res, err := tx.Mut().Fetch(ctx, origin, "origin")
	require.NoError(t, err)
	require.Equal(t, []string{"main"}, res.Updated)
	require.Positive(t, res.Objects)
	local, ok := tx.Mut().View().LocalBookmark("main").AsNormal()
	require.True(t, ok)
	require.Equal(t, base, local)

	z := commitFiles(t, tx.Mut(), []object.Hash{base}, "z", map[string]string{"f": "z\n"})
	require.NoError(t, tx.Mut().SetBookmark("main", z, false))
	_, err = tx.Mut().ExportLocal(ctx, origin, "main", "origin")
	require.NoError(t, err)
	_, err = tx.Commit("advance main")
	require.NoError(t, err)
	return z
}

func TestFetchMergesConcurrentMovesIntoConflict(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	rr, x := publishBase(t, origin)
	z := cloneAndAdvance(t, origin, x)
	require.Equal(t, z, remoteBookmark(t, origin, "main"))

	tx := rr.StartTransaction()
	mut := tx.Mut()
	y := commitFiles(t, mut, []object.Hash{x}, "y", map[string]string{"f": "y\n"})
	require.NoError(t, mut.SetBookmark("main", y, false))

	res, err := mut.Fetch(ctx, origin, "origin")
	require.NoError(t, err)
	require.Equal(t, []string{"main"}, res.Updated)

	local := mut.View().LocalBookmark("main")
	require.True(t, local.HasConflict())
	require.ElementsMatch(t, []object.Hash{y, z}, local.AddedIDs())
	require.Equal(t, []object.Hash{x}, local.RemovedIDs())

	rec := mut.View().RemoteBookmark(view.RemoteRefSymbol{Name: "main", Remote: "origin"})
	require.True(t, rec.Target.Equal(view.Normal(z)))
	visible, err := mut.Resolver().IsVisible(z)
	require.NoError(t, err)
	require.True(t, visible)

	require.Equal(t, PushLocalConflicted, mut.ClassifyPush("main", "origin").Action)
	_, err = mut.ExportLocal(ctx, origin, "main", "origin")
	require.ErrorIs(t, err, ErrConflictedBookmark)
	require.Equal(t, z, remoteBookmark(t, origin, "main"))

	// Fetching again changes nothing.
	res, err = mut.Fetch(ctx, origin, "origin")
	require.NoError(t, err)
	require.Empty(t, res.Updated)
}

func TestFetchFastForwardsTrackedBookmark(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	rr, x := publishBase(t, origin)
	z := cloneAndAdvance(t, origin, x)

	tx := rr.StartTransaction()
	_, err := tx.Mut().Fetch(ctx, origin, "origin")
	require.NoError(t, err)
	id, ok := tx.Mut().View().LocalBookmark("main").AsNormal()
	require.True(t, ok)
	require.Equal(t, z, id)
	require.Equal(t, PushAlreadyMatches, tx.Mut().ClassifyPush("main", "origin").Action)
}

func TestFetchUntrackedBookmarkLeavesLocal(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	_, x := publishBase(t, origin)

	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	_, err := mut.Fetch(ctx, origin, "origin")
	require.NoError(t, err)
	require.True(t, mut.View().LocalBookmark("main").IsAbsent())
	rec := mut.View().RemoteBookmark(view.RemoteRefSymbol{Name: "main", Remote: "origin"})
	require.False(t, rec.IsTracking())
	require.True(t, rec.Target.Equal(view.Normal(x)))

	require.NoError(t, mut.TrackBookmark("main", "origin"))
	id, ok := mut.View().LocalBookmark("main").AsNormal()
	require.True(t, ok)
	require.Equal(t, x, id)

	require.NoError(t, mut.UntrackBookmark("main", "origin"))
	require.False(t, mut.View().RemoteBookmark(view.RemoteRefSymbol{Name: "main", Remote: "origin"}).IsTracking())
	require.True(t, mut.View().LocalBookmark("main").IsPresent())

	require.ErrorIs(t, mut.TrackBookmark("missing", "origin"), ErrNoSuchSymbol)
}

func TestFetchDeletedRemoteBookmark(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	rr, _ := publishBase(t, origin)

	// Another clone deletes main on the remote.
	r2, rr2 := newTestRepo(t)
	r2.Settings.Bookmarks.AutoTrack = true
	tx := rr2.StartTransaction()
	_, err := tx.Mut().Fetch(ctx, origin, "origin")
	require.NoError(t, err)
	require.NoError(t, tx.Mut().DeleteBookmark("main"))
	plan, err := tx.Mut().ExportLocal(ctx, origin, "main", "origin")
	require.NoError(t, err)
	require.Equal(t, PushUpdate, plan.Action)
	require.Empty(t, plan.New)
	require.Empty(t, remoteBookmark(t, origin, "main"))

	tx = rr.StartTransaction()
	mut := tx.Mut()
	res, err := mut.Fetch(ctx, origin, "origin")
	require.NoError(t, err)
	require.Equal(t, []string{"main"}, res.Updated)
	require.True(t, mut.View().LocalBookmark("main").IsAbsent())
	_, known := mut.View().RemoteBookmarks[view.RemoteRefSymbol{Name: "main", Remote: "origin"}]
	require.False(t, known)
}

func TestExportLocalLeaseViolation(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	rr, x := publishBase(t, origin)
	z := cloneAndAdvance(t, origin, x)

	tx := rr.StartTransaction()
	mut := tx.Mut()
	y := commitFiles(t, mut, []object.Hash{x}, "y", map[string]string{"f": "y\n"})
	require.NoError(t, mut.SetBookmark("main", y, false))

	plan := mut.ClassifyPush("main", "origin")
	require.Equal(t, PushPlan{Action: PushUpdate, Old: x, New: y}, plan)

	_, err := mut.ExportLocal(ctx, origin, "main", "origin")
	require.ErrorIs(t, err, ErrLeaseViolation)
	var lease *LeaseError
	require.True(t, errors.As(err, &lease))
	require.True(t, lease.Expected.Equal(view.Normal(x)))
	require.True(t, lease.Actual.Equal(view.Normal(z)))

	require.Equal(t, z, remoteBookmark(t, origin, "main"))
	rec := mut.View().RemoteBookmark(view.RemoteRefSymbol{Name: "main", Remote: "origin"})
	require.True(t, rec.Target.Equal(view.Normal(x)))
}

func TestExportLocalChecksLeaseWhenAlreadyMatching(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	rr, x := publishBase(t, origin)
	z := cloneAndAdvance(t, origin, x)

	tx := rr.StartTransaction()
	mut := tx.Mut()
	require.Equal(t, PushAlreadyMatches, mut.ClassifyPush("main", "origin").Action)

	_, err := mut.ExportLocal(ctx, origin, "main", "origin")
	require.ErrorIs(t, err, ErrLeaseViolation)
	var lease *LeaseError
	require.ErrorAs(t, err, &lease)
	require.True(t, lease.Expected.Equal(view.Normal(x)))
	require.True(t, lease.Actual.Equal(view.Normal(z)))
	require.Equal(t, z, remoteBookmark(t, origin, "main"))
}

func TestExportLocalAlreadyMatchingMarksTracked(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	rr, x := publishBase(t, origin)
	sym := view.RemoteRefSymbol{Name: "main", Remote: "origin"}

	tx := rr.StartTransaction()
	mut := tx.Mut()
	require.NoError(t, mut.UntrackBookmark("main", "origin"))
	require.False(t, mut.View().RemoteBookmark(sym).IsTracking())

	plan, err := mut.ExportLocal(ctx, origin, "main", "origin")
	require.NoError(t, err)
	require.Equal(t, PushAlreadyMatches, plan.Action)
	rec := mut.View().RemoteBookmark(sym)
	require.True(t, rec.IsTracking())
	require.True(t, rec.Target.Equal(view.Normal(x)))
	require.Equal(t, x, remoteBookmark(t, origin, "main"))
}

// racingRemote moves the bookmark on the remote between the lease check and
// the update.
type racingRemote struct {
	*remote.DirRemote
	t      *testing.T
	moveTo object.Hash
	moved  bool
}

func (r *racingRemote) UpdateBookmarks(ctx context.Context, updates []remote.BookmarkUpdate) error {
	if !r.moved {
		r.moved = true
		current := remoteBookmark(r.t, r.DirRemote, updates[0].Name)
		err := r.DirRemote.UpdateBookmarks(ctx, []remote.BookmarkUpdate{{Name: updates[0].Name, Old: current, New: r.moveTo}})
		require.NoError(r.t, err)
	}
	return r.DirRemote.UpdateBookmarks(ctx, updates)
}

func TestExportLocalReportsRaceAsLeaseError(t *testing.T) {
	ctx := context.Background()
	origin := newDirRemote(t)
	rr, x := publishBase(t, origin)

	tx := rr.StartTransaction()
	mut := tx.Mut()
	y := commitFiles(t, mut, []object.Hash{x}, "y", map[string]string{"f": "y\n"})
	other := commitFiles(t, mut, []object.Hash{x}, "other", map[string]string{"f": "other\n"})
	require.NoError(t, mut.SetBookmark("main", y, false))
	objs, err := remote.CollectObjectsForPush(mut.Store(), []object.Hash{other}, nil)
	require.NoError(t, err)
	require.NoError(t, origin.PushObjects(ctx, objs))

	racing := &racingRemote{DirRemote: origin, t: t, moveTo: other}
	_, err = mut.ExportLocal(ctx, racing, "main", "origin")
	require.ErrorIs(t, err, ErrLeaseViolation)
	require.ErrorIs(t, err, remote.ErrRefCASMismatch)
	require.Equal(t, other, remoteBookmark(t, origin, "main"))
}

func TestLocalBookmarkOperations(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n"})
	c := commitFiles(t, mut, []object.Hash{a}, "c", map[string]string{"f": "c\n"})

	require.NoError(t, mut.CreateBookmark("main", a))
	require.Error(t, mut.CreateBookmark("main", b))
	require.Error(t, mut.CreateBookmark("", b))

	require.NoError(t, mut.SetBookmark("main", b, false))
	require.ErrorIs(t, mut.SetBookmark("main", a, false), ErrNotFastForward)
	require.ErrorIs(t, mut.SetBookmark("main", c, false), ErrNotFastForward)
	require.NoError(t, mut.SetBookmark("main", c, true))
	id, _ := mut.View().LocalBookmark("main").AsNormal()
	require.Equal(t, c, id)

	require.NoError(t, mut.SetBookmark("fresh", b, false))
	require.NoError(t, mut.DeleteBookmark("fresh"))
	require.ErrorIs(t, mut.DeleteBookmark("fresh"), ErrNoSuchSymbol)
}

func TestClassifyPush(t *testing.T) {
	_, rr := newTestRepo(t)
	tx := rr.StartTransaction()
	mut := tx.Mut()
	a := commitFiles(t, mut, nil, "a", map[string]string{"f": "a\n"})
	b := commitFiles(t, mut, []object.Hash{a}, "b", map[string]string{"f": "b\n"})
	sym := view.RemoteRefSymbol{Name: "main", Remote: "origin"}

	require.Equal(t, PushAlreadyMatches, mut.ClassifyPush("main", "origin").Action)

	require.NoError(t, mut.CreateBookmark("main", a))
	require.Equal(t, PushPlan{Action: PushUpdate, New: a}, mut.ClassifyPush("main", "origin"))

	mut.View().SetRemoteBookmark(sym, view.RemoteRef{Target: view.Normal(a), State: view.RemoteRefTracking})
	require.Equal(t, PushAlreadyMatches, mut.ClassifyPush("main", "origin").Action)

	require.NoError(t, mut.SetBookmark("main", b, false))
	require.Equal(t, PushPlan{Action: PushUpdate, Old: a, New: b}, mut.ClassifyPush("main", "origin"))

	require.NoError(t, mut.DeleteBookmark("main"))
	require.Equal(t, PushPlan{Action: PushUpdate, Old: a}, mut.ClassifyPush("main", "origin"))

	conflicted, err := view.MergeRefTargets(mut.Index(), view.Normal(b), view.Normal(a), view.Normal(object.RootCommitID))
	require.NoError(t, err)
	require.True(t, conflicted.HasConflict())
	mut.View().SetRemoteBookmark(sym, view.RemoteRef{Target: conflicted, State: view.RemoteRefTracking})
	mut.View().SetLocalBookmark("main", view.Normal(b))
	require.Equal(t, PushRemoteConflicted, mut.ClassifyPush("main", "origin").Action)
}
