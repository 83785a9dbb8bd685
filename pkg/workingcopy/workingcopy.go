// Package workingcopy maps a commit tree onto a directory and back.
// Update writes a tree into the directory, rendering conflicted files with
// conflict markers; Snapshot records the directory as a tree, parsing the
// markers back into conflicts. New files are tracked and deleted files
// untracked automatically.
package workingcopy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/jig/pkg/conflicts"
	"github.com/odvcencio/jig/pkg/lockfile"
	"github.com/odvcencio/jig/pkg/logging"
	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
)

// ErrStale is returned by Update when the directory no longer matches the
// tree of the last snapshot or update and checking out would lose changes.
var ErrStale = errors.New("working copy has unsnapshotted changes")

// fileState records what a path held at the last snapshot or update.
type fileState struct {
	Value       object.TreeValue `json:"value"`
	Fingerprint fingerprint      `json:"fingerprint"`
}

type state struct {
	// Commit is the working-copy commit the directory was last synced with.
	Commit object.Hash           `json:"commit,omitempty"`
	Tree   object.Hash           `json:"tree"`
	Files  map[string]*fileState `json:"files"`
}

// WorkingCopy is one workspace directory and its state file.
type WorkingCopy struct {
	root      string
	statePath string
	store     *object.Store
	logger    *slog.Logger
	state     *state
}

// Open loads the working copy rooted at root whose state lives in
// stateDir. A missing state file means nothing is checked out yet.
func Open(root, stateDir string, store *object.Store, logger *slog.Logger) (*WorkingCopy, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	wc := &WorkingCopy{
		root:      root,
		statePath: filepath.Join(stateDir, "state"),
		store:     store,
		logger:    logger,
		state:     &state{Tree: object.EmptyTreeHash(), Files: make(map[string]*fileState)},
	}
	data, err := os.ReadFile(wc.statePath)
	if os.IsNotExist(err) {
		return wc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("working copy state: %w", err)
	}
	if err := json.Unmarshal(data, wc.state); err != nil {
		return nil, fmt.Errorf("working copy state: %w", err)
	}
	if wc.state.Files == nil {
		wc.state.Files = make(map[string]*fileState)
	}
	return wc, nil
}

// Root returns the workspace directory.
func (wc *WorkingCopy) Root() string { return wc.root }

// Tree returns the tree recorded by the last snapshot or update.
func (wc *WorkingCopy) Tree() object.Hash { return wc.state.Tree }

// Commit returns the working-copy commit recorded by SetCommit, empty if
// none was recorded yet.
func (wc *WorkingCopy) Commit() object.Hash { return wc.state.Commit }

// SetCommit records id as the commit the directory now corresponds to.
func (wc *WorkingCopy) SetCommit(id object.Hash) error {
	if wc.state.Commit == id {
		return nil
	}
	wc.state.Commit = id
	return wc.save()
}

func (wc *WorkingCopy) save() error {
	data, err := json.MarshalIndent(wc.state, "", "  ")
	if err != nil {
		return fmt.Errorf("working copy state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(wc.statePath), 0o755); err != nil {
		return fmt.Errorf("working copy state: %w", err)
	}
	return lockfile.Update(wc.statePath, func([]byte) ([]byte, error) { return data, nil })
}

// Snapshot records the directory as a tree and returns its id. Files whose
// fingerprint is unchanged are not read.
func (wc *WorkingCopy) Snapshot() (object.Hash, error) {
	ig, err := LoadIgnorer(wc.root)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	files := make(map[string]object.TreeValue)
	next := make(map[string]*fileState)
	changed := 0

	err = filepath.WalkDir(wc.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if abs == wc.root {
			return nil
		}
		rel, err := filepath.Rel(wc.root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ig.Ignored(rel, d.IsDir()) {
			if _, tracked := wc.state.Files[rel]; !tracked || d.IsDir() {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fp := fingerprintOf(info)
		prev := wc.state.Files[rel]
		if prev != nil && prev.Fingerprint == fp {
			files[rel] = prev.Value
			next[rel] = prev
			return nil
		}
		v, err := wc.snapshotFile(rel, abs, fp.Mode, prev)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", rel, err)
		}
		changed++
		files[rel] = v
		next[rel] = &fileState{Value: v, Fingerprint: fp}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}

	tree, err := BuildTree(wc.store, files)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	removed := 0
	for p := range wc.state.Files {
		if _, ok := next[p]; !ok {
			removed++
		}
	}
	if tree == wc.state.Tree && changed == 0 && removed == 0 {
		return tree, nil
	}
	wc.state = &state{Commit: wc.state.Commit, Tree: tree, Files: next}
	if err := wc.save(); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	wc.logger.Debug("snapshotted working copy", "tree", tree.Short(12), "changed", changed, "removed", removed)
	return tree, nil
}

// snapshotFile stores the content of one file. A file that was
// materialized from a conflict is parsed back: with markers left it stays a
// conflict, with all markers gone it is the resolution.
func (wc *WorkingCopy) snapshotFile(rel, abs, mode string, prev *fileState) (object.TreeValue, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return object.TreeValue{}, err
	}
	if prev != nil && prev.Value.IsConflict() {
		if v, ok, err := wc.reparseConflict(prev.Value.Hash, data); err != nil || ok {
			return v, err
		}
	}
	h, err := wc.store.WriteBlob(&object.Blob{Data: data})
	if err != nil {
		return object.TreeValue{}, err
	}
	return object.TreeValue{Mode: mode, Hash: h}, nil
}

func (wc *WorkingCopy) reparseConflict(id object.Hash, data []byte) (object.TreeValue, bool, error) {
	c, err := wc.store.ReadConflict(id)
	if err != nil {
		return object.TreeValue{}, false, err
	}
	orig := conflicts.FromObject(c)
	content, ok, err := conflicts.ReadContent(wc.store, orig)
	if err != nil || !ok {
		return object.TreeValue{}, false, err
	}
	updated := conflicts.UpdateFromContent(content, data)
	if updated.Equal(content) {
		return object.TreeValue{Mode: object.TreeModeConflict, Hash: id}, true, nil
	}
	if updated.IsResolved() {
		return object.TreeValue{}, false, nil
	}
	values, err := conflicts.WriteContent(wc.store, orig, updated)
	if err != nil {
		return object.TreeValue{}, false, err
	}
	if v, ok := values.Resolve().AsResolved(); ok {
		return v, true, nil
	}
	h, err := wc.store.WriteConflict(conflicts.ToObject(values))
	if err != nil {
		return object.TreeValue{}, false, err
	}
	return object.TreeValue{Mode: object.TreeModeConflict, Hash: h}, true, nil
}

// UpdateStats summarizes a checkout.
type UpdateStats struct {
	Added, Updated, Removed, Conflicted int
}

// Update makes the directory hold tree. Files whose content already
// matches are left alone. It fails with ErrStale when a tracked file was
// modified since the last snapshot; callers snapshot first.
func (wc *WorkingCopy) Update(tree object.Hash) (UpdateStats, error) {
	var stats UpdateStats
	target, err := FlattenTree(wc.store, tree)
	if err != nil {
		return stats, fmt.Errorf("update: %w", err)
	}
	if err := wc.checkFresh(); err != nil {
		return stats, fmt.Errorf("update: %w", err)
	}

	paths := make([]string, 0, len(wc.state.Files))
	for p := range wc.state.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	next := make(map[string]*fileState, len(target))
	for _, p := range paths {
		if _, keep := target[p]; keep {
			continue
		}
		abs := filepath.Join(wc.root, filepath.FromSlash(p))
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return stats, fmt.Errorf("update: remove %s: %w", p, err)
		}
		wc.removeEmptyParents(filepath.Dir(abs))
		stats.Removed++
	}

	paths = paths[:0]
	for p := range target {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		v := target[p]
		if prev := wc.state.Files[p]; prev != nil && prev.Value == v {
			next[p] = prev
			continue
		}
		st, err := wc.writeFile(p, v)
		if err != nil {
			return stats, fmt.Errorf("update: %w", err)
		}
		next[p] = st
		switch {
		case v.IsConflict():
			stats.Conflicted++
		case wc.state.Files[p] != nil:
			stats.Updated++
		default:
			stats.Added++
		}
	}

	wc.state = &state{Commit: wc.state.Commit, Tree: tree, Files: next}
	if err := wc.save(); err != nil {
		return stats, fmt.Errorf("update: %w", err)
	}
	wc.logger.Debug("updated working copy", "tree", tree.Short(12),
		"added", stats.Added, "updated", stats.Updated, "removed", stats.Removed, "conflicted", stats.Conflicted)
	return stats, nil
}

// checkFresh fails when a tracked file differs from its recorded
// fingerprint.
func (wc *WorkingCopy) checkFresh() error {
	for p, prev := range wc.state.Files {
		info, err := os.Lstat(filepath.Join(wc.root, filepath.FromSlash(p)))
		if os.IsNotExist(err) {
			return fmt.Errorf("%s was deleted: %w", p, ErrStale)
		}
		if err != nil {
			return err
		}
		if fingerprintOf(info) != prev.Fingerprint {
			return fmt.Errorf("%s was modified: %w", p, ErrStale)
		}
	}
	return nil
}

// Reset records tree as checked out without touching any file. The next
// snapshot compares the directory against it from scratch.
func (wc *WorkingCopy) Reset(tree object.Hash) error {
	wc.state = &state{Commit: wc.state.Commit, Tree: tree, Files: make(map[string]*fileState)}
	return wc.save()
}

func (wc *WorkingCopy) writeFile(p string, v object.TreeValue) (*fileState, error) {
	abs := filepath.Join(wc.root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for %s: %w", p, err)
	}
	data, mode, err := wc.render(v)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", p, err)
	}
	// Remove first so a mode change takes effect.
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("replace %s: %w", p, err)
	}
	if err := os.WriteFile(abs, data, filePerm(mode)); err != nil {
		return nil, fmt.Errorf("write %s: %w", p, err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, err
	}
	return &fileState{Value: v, Fingerprint: fingerprintOf(info)}, nil
}

// render returns the bytes and file mode used to show v on disk.
func (wc *WorkingCopy) render(v object.TreeValue) ([]byte, string, error) {
	if !v.IsConflict() {
		b, err := wc.store.ReadBlob(v.Hash)
		if err != nil {
			return nil, "", err
		}
		return b.Data, v.Mode, nil
	}
	c, err := wc.store.ReadConflict(v.Hash)
	if err != nil {
		return nil, "", err
	}
	m := conflicts.FromObject(c)
	content, ok, err := conflicts.ReadContent(wc.store, m)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return []byte(conflicts.Describe(m)), object.TreeModeFile, nil
	}
	mode := object.TreeModeFile
	if modes, ok := merge.Map(m, func(t object.TreeValue) string {
		if t.IsAbsent() {
			return ""
		}
		return t.Mode
	}).Resolve().AsResolved(); ok && modes == object.TreeModeExecutable {
		mode = object.TreeModeExecutable
	}
	return conflicts.Materialize(content), mode, nil
}

func (wc *WorkingCopy) removeEmptyParents(dir string) {
	for dir != wc.root && strings.HasPrefix(dir, wc.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
