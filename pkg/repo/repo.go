// Package repo is the repository engine: operations and views, the rewrite
// engine with automatic descendant rebase, the bookmark tracker and the
// symbol resolution used by revset evaluation.
package repo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/odvcencio/jig/pkg/dag"
	"github.com/odvcencio/jig/pkg/logging"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/oplog"
	"github.com/odvcencio/jig/pkg/sqlstore"
)

// DirName is the name of the repository metadata directory.
const DirName = ".jig"

// DefaultWorkspace is the workspace created by Init.
const DefaultWorkspace = "default"

// Repo is an opened repository: its stores, settings and the op heads
// record. It holds no view; load one with Load.
type Repo struct {
	RootDir  string // working directory root
	Dir      string // .jig/ directory
	Settings *Settings
	Store    *object.Store
	OpStore  *oplog.Store
	OpHeads  *oplog.Heads
	Logger   *slog.Logger

	// Signer, when set, signs every commit written through this repo.
	Signer object.Signer

	index *dag.Index
}

// Options configures Init and Open. Zero values select defaults.
type Options struct {
	Settings *Settings
	Logger   *slog.Logger
	Signer   object.Signer
}

// Init creates a repository at path with a .jig/ directory, an empty
// default workspace and an initial operation. It fails if .jig/ exists.
func Init(path string, opts Options) (*Repo, error) {
	dir := filepath.Join(path, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("init: mkdir %s: %w", dir, err)
	}

	settings := opts.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	if settings.Storage.Backend == "" {
		settings.Storage.Backend = BackendFile
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := settings.Save(filepath.Join(dir, "config.toml")); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	r, err := newRepo(path, dir, settings, opts)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := r.OpHeads.Init(oplog.RootOperationID); err != nil {
		r.Close()
		return nil, fmt.Errorf("init: %w", err)
	}

	root, err := r.LoadAt(oplog.RootOperationID)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("init: %w", err)
	}
	tx := root.StartTransaction()
	if _, err := tx.Mut().CheckoutNew(DefaultWorkspace, []object.Hash{object.RootCommitID}); err != nil {
		r.Close()
		return nil, fmt.Errorf("init: %w", err)
	}
	if _, err := tx.Commit("initialize repository"); err != nil {
		r.Close()
		return nil, fmt.Errorf("init: %w", err)
	}
	return r, nil
}

// Open searches upward from path for a .jig/ directory and opens the
// repository found there.
func Open(path string, opts Options) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		dir := filepath.Join(cur, DirName)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			settings := opts.Settings
			if settings == nil {
				settings, err = LoadSettings(filepath.Join(dir, "config.toml"))
				if err != nil {
					return nil, fmt.Errorf("open: %w", err)
				}
			}
			r, err := newRepo(cur, dir, settings, opts)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			return r, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a jig repository (or any parent up to /)")
		}
		cur = parent
	}
}

func newRepo(root, dir string, settings *Settings, opts Options) (*Repo, error) {
	var objects, ops object.Backend
	switch settings.Storage.Backend {
	case "", BackendFile:
		objects = object.NewFileBackend(dir)
		ops = object.NewFileBackend(filepath.Join(dir, "op_store"))
	case BackendSQLite:
		ob, err := sqlstore.Open(filepath.Join(dir, "objects.db"))
		if err != nil {
			return nil, err
		}
		opb, err := sqlstore.Open(filepath.Join(dir, "op_store.db"))
		if err != nil {
			ob.Close()
			return nil, err
		}
		objects, ops = ob, opb
	default:
		return nil, fmt.Errorf("unknown storage backend %q", settings.Storage.Backend)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	store := object.NewStoreWithBackend(objects)
	return &Repo{
		RootDir:  root,
		Dir:      dir,
		Settings: settings,
		Store:    store,
		OpStore:  oplog.NewStore(ops),
		OpHeads:  oplog.NewHeads(filepath.Join(dir, "op_heads")),
		Logger:   logger,
		Signer:   opts.Signer,
		index:    dag.ForCommits(store),
	}, nil
}

// Close releases the stores.
func (r *Repo) Close() error {
	err := r.Store.Close()
	if opErr := r.OpStore.Close(); err == nil {
		err = opErr
	}
	return err
}

// ConfigPath returns the path of the repository configuration file.
func (r *Repo) ConfigPath() string {
	return filepath.Join(r.Dir, "config.toml")
}

// WorkspaceStateDir returns the directory holding a workspace's
// working-copy state.
func (r *Repo) WorkspaceStateDir(workspace string) string {
	return filepath.Join(r.Dir, "working_copy", workspace)
}

// Index returns the commit-graph index shared by every view of the repo.
func (r *Repo) Index() *dag.Index { return r.index }
