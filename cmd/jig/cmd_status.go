package main

import (
	"fmt"
	"time"

	"github.com/odvcencio/jig/pkg/diff"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Show the working-copy commit and its changes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			id, err := ws.workingCopyID()
			if err != nil {
				return err
			}
			c, err := ws.rr.Store().ReadCommit(id)
			if err != nil {
				return err
			}
			d, err := ws.changes(c)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(d.Changes) == 0 {
				fmt.Fprintln(out, "The working copy has no changes.")
			} else {
				fmt.Fprintln(out, "Working copy changes:")
				fmt.Fprint(out, diff.FormatSummary(d))
			}
			fmt.Fprintf(out, "Working copy : %s\n", ws.oneline(id, c))
			for _, p := range c.Parents {
				pc, err := ws.rr.Store().ReadCommit(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Parent commit: %s\n", ws.oneline(p, pc))
			}

			if paths := d.Conflicts(); len(paths) > 0 {
				fmt.Fprintln(out, "There are unresolved conflicts at these paths:")
				for _, p := range paths {
					fmt.Fprintf(out, "  %s\n", p)
				}
			}
			v := ws.rr.View()
			for _, name := range v.BookmarkNames() {
				if v.LocalBookmark(name).HasConflict() {
					fmt.Fprintf(out, "Bookmark %s is conflicted; use `jig bookmark set` to resolve it\n", name)
				}
			}
			divergent, err := ws.rr.Resolver().DivergentChanges()
			if err != nil {
				return err
			}
			if ids, ok := divergent[c.ChangeID]; ok {
				fmt.Fprintf(out, "Change %s is divergent (%d visible commits)\n", c.ChangeID.Short(12), len(ids))
			}
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "show [revision]",
		Short: "Show a commit and its changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			symbol := "@"
			if len(args) == 1 {
				symbol = args[0]
			}
			id, err := ws.resolve(symbol)
			if err != nil {
				return err
			}
			c, err := ws.rr.Store().ReadCommit(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Commit ID: %s\n", id)
			fmt.Fprintf(out, "Change ID: %s\n", c.ChangeID)
			if names := ws.bookmarksAt(id); len(names) > 0 {
				fmt.Fprintf(out, "Bookmarks: %v\n", names)
			}
			fmt.Fprintf(out, "Author   : %s <%s> (%s)\n", c.Author.Name, c.Author.Email, c.Author.When.Format(time.RFC3339))
			fmt.Fprintf(out, "Committer: %s <%s> (%s)\n", c.Committer.Name, c.Committer.Email, c.Committer.When.Format(time.RFC3339))
			if c.Signature != "" {
				if pub, err := verifySSHCommitSignature(c.Signature, object.CommitSigningPayload(c)); err != nil {
					fmt.Fprintf(out, "Signature: bad (%v)\n", err)
				} else {
					fmt.Fprintf(out, "Signature: good %s\n", ssh.FingerprintSHA256(pub))
				}
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "    %s\n\n", describeOrPlaceholder(c))

			d, err := ws.changes(c)
			if err != nil {
				return err
			}
			if summary {
				fmt.Fprint(out, diff.FormatSummary(d))
				return nil
			}
			text, err := diff.FormatLineDiff(ws.rr.Store(), d)
			if err != nil {
				return err
			}
			fmt.Fprint(out, text)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "list changed paths only")
	return cmd
}
