package main

import (
	"fmt"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var revisions []string
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show visible commits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			resolver := ws.rr.Resolver()
			heads := resolver.VisibleHeads()
			if len(revisions) > 0 {
				heads, err = ws.resolveAll(revisions)
				if err != nil {
					return err
				}
			}
			ids, err := resolver.Ancestors(heads)
			if err != nil {
				return err
			}
			divergent, err := resolver.DivergentChanges()
			if err != nil {
				return err
			}
			wcID := ws.rr.View().WorkingCopies[ws.name]

			out := cmd.OutOrStdout()
			for i, id := range ids {
				if limit > 0 && i >= limit {
					break
				}
				c, err := ws.rr.Store().ReadCommit(id)
				if err != nil {
					return err
				}
				marker := "○"
				switch {
				case id == wcID:
					marker = "@"
				case id == object.RootCommitID:
					marker = "◆"
				}
				line := ws.oneline(id, c)
				if _, ok := divergent[c.ChangeID]; ok {
					line += " (divergent)"
				}
				if c.IsRoot() {
					fmt.Fprintf(out, "%s %s\n", marker, line)
					continue
				}
				fmt.Fprintf(out, "%s %s %s %s\n", marker, line, c.Author.Email, c.Committer.When.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&revisions, "revisions", "r", nil, "show ancestors of these revisions")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of commits to show")
	return cmd
}
