package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/jig/pkg/remote"
	"github.com/odvcencio/jig/pkg/repo"
	"github.com/odvcencio/jig/pkg/view"
	"github.com/spf13/cobra"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage repository remotes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closer, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()
			defer r.Close()

			names := make([]string, 0, len(r.Settings.Remotes))
			for name := range r.Settings.Remotes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, r.Settings.Remotes[name].URL)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a named remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closer, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()
			defer r.Close()

			if _, ok := r.Settings.Remotes[args[0]]; ok {
				return fmt.Errorf("remote %q already exists", args[0])
			}
			if strings.HasPrefix(args[1], "http://") || strings.HasPrefix(args[1], "https://") {
				if _, err := remote.ParseEndpoint(args[1]); err != nil {
					return fmt.Errorf("invalid remote URL %q: %w", args[1], err)
				}
			}
			if err := r.Settings.SetRemote(args[0], args[1]); err != nil {
				return err
			}
			if err := r.Settings.Save(r.ConfigPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added remote %q -> %s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}

func openTransport(ws *workspace, remoteName string) (remote.Transport, error) {
	url, err := ws.repo.Settings.RemoteURL(remoteName)
	if err != nil {
		return nil, err
	}
	return remote.Open(url, remote.ClientOptions{Logger: ws.repo.Logger})
}

func newFetchCmd() *cobra.Command {
	var remoteName string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download bookmarks and commits from a remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			t, err := openTransport(ws, remoteName)
			if err != nil {
				return err
			}
			tx := ws.rr.StartTransaction()
			res, err := tx.Mut().Fetch(contextOf(cmd), t, remoteName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Updated) == 0 {
				fmt.Fprintln(out, "Nothing changed.")
				return nil
			}
			if err := ws.commit(cmd, tx, "fetch from remote "+remoteName); err != nil {
				return err
			}
			v := ws.rr.View()
			for _, name := range res.Updated {
				fmt.Fprintf(out, "bookmark: %s@%s\n", name, remoteName)
				if v.LocalBookmark(name).HasConflict() {
					fmt.Fprintf(out, "  %s is now conflicted\n", name)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&remoteName, "remote", "origin", "remote to fetch from")
	return cmd
}

func newPushCmd() *cobra.Command {
	var remoteName string
	var bookmarks []string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push bookmarks to a remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			t, err := openTransport(ws, remoteName)
			if err != nil {
				return err
			}
			names := bookmarks
			if len(names) == 0 {
				names = trackedBookmarks(ws, remoteName)
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bookmarks to push.")
				return nil
			}

			tx := ws.rr.StartTransaction()
			mut := tx.Mut()
			pushed := 0
			out := cmd.OutOrStdout()
			for _, name := range names {
				plan, err := mut.ExportLocal(contextOf(cmd), t, name, remoteName)
				if err != nil {
					var lease *repo.LeaseError
					if errors.As(err, &lease) {
						err = fmt.Errorf("%w; fetch and try again", err)
					}
					// Record what already reached the remote.
					if pushed > 0 {
						if cerr := ws.commit(cmd, tx, "push to remote "+remoteName); cerr != nil {
							return errors.Join(err, cerr)
						}
					}
					return err
				}
				switch plan.Action {
				case repo.PushAlreadyMatches:
					continue
				case repo.PushUpdate:
					pushed++
					switch {
					case plan.New == "":
						fmt.Fprintf(out, "Delete bookmark %s\n", name)
					case plan.Old == "":
						fmt.Fprintf(out, "Add bookmark %s to %s\n", name, plan.New.Short(12))
					default:
						fmt.Fprintf(out, "Move bookmark %s from %s to %s\n", name, plan.Old.Short(12), plan.New.Short(12))
					}
				}
			}
			if pushed == 0 {
				fmt.Fprintln(out, "Nothing changed.")
				return nil
			}
			return ws.commit(cmd, tx, "push to remote "+remoteName)
		},
	}
	cmd.Flags().StringVar(&remoteName, "remote", "origin", "remote to push to")
	cmd.Flags().StringArrayVarP(&bookmarks, "bookmark", "b", nil, "bookmark to push (default: every tracked bookmark and new local bookmark)")
	return cmd
}

// trackedBookmarks lists local bookmarks that track remoteName or have never
// been pushed there, plus tracked bookmarks deleted locally.
func trackedBookmarks(ws *workspace, remoteName string) []string {
	v := ws.rr.View()
	var names []string
	for _, name := range v.BookmarkNames() {
		local := v.LocalBookmark(name)
		ref, known := v.RemoteBookmarks[view.RemoteRefSymbol{Name: name, Remote: remoteName}]
		switch {
		case known && ref.IsTracking():
			names = append(names, name)
		case !known && local.IsPresent():
			names = append(names, name)
		}
	}
	return names
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
