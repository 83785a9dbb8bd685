package main

import (
	"fmt"
	"strings"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/repo"
	"github.com/odvcencio/jig/pkg/view"
	"github.com/spf13/cobra"
)

func newBookmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bookmark",
		Aliases: []string{"b"},
		Short:   "Manage bookmarks",
	}
	cmd.AddCommand(newBookmarkListCmd())
	cmd.AddCommand(newBookmarkCreateCmd())
	cmd.AddCommand(newBookmarkSetCmd())
	cmd.AddCommand(newBookmarkDeleteCmd())
	cmd.AddCommand(newBookmarkTrackCmd(true))
	cmd.AddCommand(newBookmarkTrackCmd(false))
	return cmd
}

func newBookmarkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local and remote bookmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			v := ws.rr.View()
			out := cmd.OutOrStdout()
			symbols := v.RemoteSymbols()
			for _, name := range v.BookmarkNames() {
				local := v.LocalBookmark(name)
				if local.IsPresent() {
					fmt.Fprintf(out, "%s: %s\n", name, ws.describeTarget(local))
				} else {
					fmt.Fprintf(out, "%s (deleted)\n", name)
				}
				for _, sym := range symbols {
					if sym.Name != name {
						continue
					}
					ref := v.RemoteBookmark(sym)
					state := ""
					if !ref.IsTracking() {
						state = " (untracked)"
					}
					switch {
					case ref.Target.Equal(local) && ref.IsTracking():
						fmt.Fprintf(out, "  @%s%s\n", sym.Remote, state)
					case ref.Target.IsAbsent():
						fmt.Fprintf(out, "  @%s (deleted)%s\n", sym.Remote, state)
					default:
						fmt.Fprintf(out, "  @%s: %s%s\n", sym.Remote, ws.describeTarget(ref.Target), state)
					}
				}
			}
			return nil
		},
	}
}

func (ws *workspace) describeTarget(t view.RefTarget) string {
	if id, ok := t.AsNormal(); ok {
		c, err := ws.rr.Store().ReadCommit(id)
		if err != nil {
			return id.Short(12)
		}
		return ws.onelineBare(id, c)
	}
	adds := make([]string, 0, len(t.AddedIDs()))
	for _, id := range t.AddedIDs() {
		adds = append(adds, id.Short(12))
	}
	removes := make([]string, 0, len(t.RemovedIDs()))
	for _, id := range t.RemovedIDs() {
		removes = append(removes, id.Short(12))
	}
	return fmt.Sprintf("(conflicted) + %s - %s", strings.Join(adds, " + "), strings.Join(removes, " - "))
}

func (ws *workspace) onelineBare(id object.Hash, c *object.CommitObj) string {
	return c.ChangeID.Short(12) + " " + id.Short(12) + " " + describeOrPlaceholder(c)
}

func newBookmarkCreateCmd() *cobra.Command {
	var revision string

	cmd := &cobra.Command{
		Use:   "create <names...>",
		Short: "Create bookmarks pointing at a revision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookmarkChange(cmd, "create bookmark "+strings.Join(args, ", "), func(ws *workspace, mut *repo.MutableRepo) error {
				id, err := ws.resolve(revision)
				if err != nil {
					return err
				}
				for _, name := range args {
					if err := mut.CreateBookmark(name, id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&revision, "revision", "r", "@", "commit to point at")
	return cmd
}

func newBookmarkSetCmd() *cobra.Command {
	var revision string
	var allowBackwards bool

	cmd := &cobra.Command{
		Use:   "set <names...>",
		Short: "Move bookmarks to a revision, resolving conflicts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookmarkChange(cmd, "point bookmark "+strings.Join(args, ", "), func(ws *workspace, mut *repo.MutableRepo) error {
				id, err := ws.resolve(revision)
				if err != nil {
					return err
				}
				for _, name := range args {
					if err := mut.SetBookmark(name, id, allowBackwards); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&revision, "revision", "r", "@", "commit to point at")
	cmd.Flags().BoolVarP(&allowBackwards, "allow-backwards", "B", false, "allow moving sideways or backwards")
	return cmd
}

func newBookmarkDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <names...>",
		Short: "Delete local bookmarks; the deletion is pushed with jig push",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookmarkChange(cmd, "delete bookmark "+strings.Join(args, ", "), func(ws *workspace, mut *repo.MutableRepo) error {
				for _, name := range args {
					if err := mut.DeleteBookmark(name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newBookmarkTrackCmd(track bool) *cobra.Command {
	use, short := "track", "Start tracking remote bookmarks"
	if !track {
		use, short = "untrack", "Stop tracking remote bookmarks"
	}
	return &cobra.Command{
		Use:   use + " <name@remote...>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookmarkChange(cmd, use+" remote bookmark "+strings.Join(args, ", "), func(ws *workspace, mut *repo.MutableRepo) error {
				for _, arg := range args {
					name, remoteName, ok := strings.Cut(arg, "@")
					if !ok || name == "" || remoteName == "" {
						return fmt.Errorf("%s: expected name@remote, got %q", use, arg)
					}
					var err error
					if track {
						err = mut.TrackBookmark(name, remoteName)
					} else {
						err = mut.UntrackBookmark(name, remoteName)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func runBookmarkChange(cmd *cobra.Command, description string, apply func(*workspace, *repo.MutableRepo) error) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	tx := ws.rr.StartTransaction()
	if err := apply(ws, tx.Mut()); err != nil {
		return err
	}
	return ws.commit(cmd, tx, description)
}
