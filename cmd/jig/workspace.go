package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/jig/pkg/diff"
	"github.com/odvcencio/jig/pkg/logging"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/repo"
	"github.com/odvcencio/jig/pkg/workingcopy"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// workspace is an open repository plus the default workspace directory.
// Opening it snapshots the directory; finish checks out whatever the
// command left as the working-copy commit.
type workspace struct {
	repo      *repo.Repo
	rr        *repo.ReadonlyRepo
	wc        *workingcopy.WorkingCopy
	name      string
	logCloser io.Closer
}

func openRepo(cmd *cobra.Command) (*repo.Repo, io.Closer, error) {
	r, err := repo.Open(".", repo.Options{})
	if err != nil {
		return nil, nil, err
	}
	s := r.Settings
	logger, closer, err := logging.New(logging.Config{
		Level:  s.Log.Level,
		Format: s.Log.Format,
		File:   s.Log.File,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	r.Logger = logger
	if s.Signing.Sign {
		signer, keyPath, err := newSSHCommitSigner(s.Signing.Key)
		if err != nil {
			closer.Close()
			r.Close()
			return nil, nil, err
		}
		logger.Debug("signing commits", "key", keyPath)
		r.Signer = signer
	}
	return r, closer, nil
}

func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	r, closer, err := openRepo(cmd)
	if err != nil {
		return nil, err
	}
	ws := &workspace{repo: r, name: repo.DefaultWorkspace, logCloser: closer}
	ws.rr, err = r.Load()
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.wc, err = workingcopy.Open(r.RootDir, r.WorkspaceStateDir(ws.name), r.Store, r.Logger)
	if err != nil {
		ws.Close()
		return nil, err
	}
	if err := ws.snapshot(); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

func (ws *workspace) Close() error {
	err := ws.repo.Close()
	if ws.logCloser != nil {
		if cerr := ws.logCloser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// errStaleWorkspace means the working-copy commit was moved by another
// command while this directory held unsnapshotted edits.
var errStaleWorkspace = errors.New("working copy is stale")

// snapshot amends the working-copy commit with the directory contents when
// they differ from its tree. When another command moved the working-copy
// commit since the directory was last synced, a clean directory is checked
// out to the new commit instead, and edits are only amended when the new
// commit belongs to the change they were made on.
func (ws *workspace) snapshot() error {
	prevTree := ws.wc.Tree()
	tree, err := ws.wc.Snapshot()
	if err != nil {
		return err
	}
	id, ok := ws.rr.View().WorkingCopies[ws.name]
	if !ok {
		return nil
	}
	c, err := ws.rr.Store().ReadCommit(id)
	if err != nil {
		return err
	}
	if synced := ws.wc.Commit(); synced != "" && synced != id {
		if tree == prevTree {
			if c.TreeHash != tree {
				if _, err := ws.wc.Update(c.TreeHash); err != nil {
					return err
				}
				ws.repo.Logger.Info("working-copy commit moved; checked out", "from", synced.Short(12), "to", id.Short(12))
			}
			return ws.wc.SetCommit(id)
		}
		// Edits may only follow a rewrite of the change they were made on.
		prev, err := ws.rr.Store().ReadCommit(synced)
		if err != nil || prev.ChangeID != c.ChangeID {
			return fmt.Errorf("%w: directory was synced with %s but the working-copy commit is now %s, and it has edits",
				errStaleWorkspace, synced.Short(12), id.Short(12))
		}
	}
	if c.TreeHash == tree {
		return ws.wc.SetCommit(id)
	}
	tx := ws.rr.StartTransaction()
	tx.MarkSnapshot()
	tx.SetTag("args", "snapshot")
	if _, err := repo.Rewrite(tx.Mut(), repo.SetTree{Commit: id, Tree: tree}); err != nil {
		return fmt.Errorf("snapshot working copy: %w", err)
	}
	next, err := tx.Commit("snapshot working copy")
	if err != nil {
		return err
	}
	ws.rr = next
	return ws.wc.SetCommit(next.View().WorkingCopies[ws.name])
}

// commit publishes tx with the command line recorded as the args tag and
// checks out the resulting working-copy commit.
func (ws *workspace) commit(cmd *cobra.Command, tx *repo.Transaction, description string) error {
	tx.SetTag("args", commandLine(cmd))
	next, err := tx.Commit(description)
	if err != nil {
		return err
	}
	return ws.finish(cmd, next)
}

func (ws *workspace) finish(cmd *cobra.Command, next *repo.ReadonlyRepo) error {
	ws.rr = next
	id, ok := next.View().WorkingCopies[ws.name]
	if !ok {
		return nil
	}
	c, err := next.Store().ReadCommit(id)
	if err != nil {
		return err
	}
	if c.TreeHash == ws.wc.Tree() {
		return ws.wc.SetCommit(id)
	}
	stats, err := ws.wc.Update(c.TreeHash)
	if err != nil {
		if errors.Is(err, workingcopy.ErrStale) {
			return fmt.Errorf("%w; run any command to snapshot it first", err)
		}
		return err
	}
	if err := ws.wc.SetCommit(id); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Working copy now at: %s\n", ws.oneline(id, c))
	if stats.Added+stats.Updated+stats.Removed > 0 {
		fmt.Fprintf(out, "Added %d files, modified %d files, removed %d files\n", stats.Added, stats.Updated, stats.Removed)
	}
	if stats.Conflicted > 0 {
		fmt.Fprintf(out, "There are unresolved conflicts in %d files\n", stats.Conflicted)
	}
	return nil
}

func (ws *workspace) workingCopyID() (object.Hash, error) {
	id, ok := ws.rr.View().WorkingCopies[ws.name]
	if !ok {
		return "", fmt.Errorf("workspace %q has no working-copy commit", ws.name)
	}
	return id, nil
}

func (ws *workspace) resolve(symbol string) (object.Hash, error) {
	return ws.rr.Resolver().Resolve(symbol, ws.name)
}

func (ws *workspace) resolveAll(symbols []string) ([]object.Hash, error) {
	ids := make([]object.Hash, 0, len(symbols))
	for _, s := range symbols {
		id, err := ws.resolve(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parentTree returns the merged tree of c's parents, the tree c's own
// changes are shown against.
func (ws *workspace) parentTree(c *object.CommitObj) (object.Hash, error) {
	if len(c.Parents) == 0 {
		return object.EmptyTreeHash(), nil
	}
	return ws.rr.StartTransaction().Mut().MergeCommitTrees(c.Parents)
}

func (ws *workspace) changes(c *object.CommitObj) (*diff.TreeDiff, error) {
	base, err := ws.parentTree(c)
	if err != nil {
		return nil, err
	}
	return diff.Trees(ws.rr.Store(), base, c.TreeHash)
}

// oneline renders a commit as "<change> <commit> <bookmarks> <description>".
func (ws *workspace) oneline(id object.Hash, c *object.CommitObj) string {
	parts := []string{c.ChangeID.Short(12), id.Short(12)}
	if names := ws.bookmarksAt(id); len(names) > 0 {
		parts = append(parts, strings.Join(names, " "))
	}
	parts = append(parts, describeOrPlaceholder(c))
	return strings.Join(parts, " ")
}

func (ws *workspace) bookmarksAt(id object.Hash) []string {
	v := ws.rr.View()
	var names []string
	for _, name := range v.BookmarkNames() {
		t := v.LocalBookmark(name)
		for _, added := range t.AddedIDs() {
			if added == id {
				if t.HasConflict() {
					name += "??"
				}
				names = append(names, name)
				break
			}
		}
	}
	for _, sym := range v.RemoteSymbols() {
		ref := v.RemoteBookmark(sym)
		if h, ok := ref.Target.AsNormal(); ok && h == id && !ref.Target.Equal(v.LocalBookmark(sym.Name)) {
			names = append(names, sym.String())
		}
	}
	return names
}

func describeOrPlaceholder(c *object.CommitObj) string {
	if c.IsRoot() {
		return "(root)"
	}
	first, _, _ := strings.Cut(strings.TrimSpace(c.Description), "\n")
	if first == "" {
		return "(no description set)"
	}
	return first
}

func commandLine(cmd *cobra.Command) string {
	parts := strings.Fields(cmd.CommandPath())
	if len(parts) > 0 {
		parts = parts[1:]
	}
	args := cmd.Flags().Args()
	cmd.Flags().Visit(func(f *pflag.Flag) {
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return strings.Join(append(parts, args...), " ")
}
