package repo

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/jig/pkg/conflicts"
	"github.com/odvcencio/jig/pkg/object"
)

func newTestRepo(t *testing.T) (*Repo, *ReadonlyRepo) {
	t.Helper()
	settings := DefaultSettings()
	settings.User = UserSettings{Name: "Test User", Email: "test@example.com"}
	settings.Operation = OperationSettings{Hostname: "host", Username: "tester"}
	r, err := Init(t.TempDir(), Options{Settings: settings})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	rr, err := r.Load()
	require.NoError(t, err)
	return r, rr
}

// writeFiles stores a flat tree of regular files.
func writeFiles(t *testing.T, store *object.Store, files map[string]string) object.Hash {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	tree := &object.TreeObj{}
	for _, name := range names {
		h, err := store.WriteBlob(&object.Blob{Data: []byte(files[name])})
		require.NoError(t, err)
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: object.TreeModeFile, Hash: h})
	}
	h, err := store.WriteTree(tree)
	require.NoError(t, err)
	return h
}

func commitFiles(t *testing.T, mut *MutableRepo, parents []object.Hash, description string, files map[string]string) object.Hash {
	t.Helper()
	b, err := mut.NewCommit(parents, writeFiles(t, mut.Store(), files))
	require.NoError(t, err)
	id, err := b.SetDescription(description).Write()
	require.NoError(t, err)
	return id
}

func mustCommit(t *testing.T, store *object.Store, id object.Hash) *object.CommitObj {
	t.Helper()
	c, err := store.ReadCommit(id)
	require.NoError(t, err)
	return c
}

func treeEntry(t *testing.T, store *object.Store, tree object.Hash, name string) (object.TreeEntry, bool) {
	t.Helper()
	tr, err := store.ReadTree(tree)
	require.NoError(t, err)
	return tr.Entry(name)
}

func fileContent(t *testing.T, store *object.Store, tree object.Hash, name string) string {
	t.Helper()
	e, ok := treeEntry(t, store, tree, name)
	require.True(t, ok, "missing %s", name)
	require.Equal(t, object.TreeModeFile, e.Mode, "%s is not a plain file", name)
	b, err := store.ReadBlob(e.Hash)
	require.NoError(t, err)
	return string(b.Data)
}

// conflictSides returns the contents of the sides and bases of a
// conflicted entry.
func conflictSides(t *testing.T, store *object.Store, tree object.Hash, name string) (adds, removes []string) {
	t.Helper()
	e, ok := treeEntry(t, store, tree, name)
	require.True(t, ok, "missing %s", name)
	require.Equal(t, object.TreeModeConflict, e.Mode, "%s is not conflicted", name)
	c, err := store.ReadConflict(e.Hash)
	require.NoError(t, err)
	content, ok, err := conflicts.ReadContent(store, conflicts.FromObject(c))
	require.NoError(t, err)
	require.True(t, ok)
	return content.Adds(), content.Removes()
}

// changeCommits finds the visible commits of a change.
func changeCommits(t *testing.T, rr *ReadonlyRepo, changeID object.ChangeID) []object.Hash {
	t.Helper()
	res, err := rr.Resolver().ResolveChangeID(string(changeID))
	require.NoError(t, err)
	return res.IDs
}
