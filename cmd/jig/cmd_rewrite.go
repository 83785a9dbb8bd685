package main

import (
	"fmt"

	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/repo"
	"github.com/spf13/cobra"
)

func newNewCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "new [revisions...]",
		Short: "Create an empty commit on the given parents and edit it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			if len(args) == 0 {
				args = []string{"@"}
			}
			parents, err := ws.resolveAll(args)
			if err != nil {
				return err
			}
			tx := ws.rr.StartTransaction()
			mut := tx.Mut()
			tree, err := mut.MergeCommitTrees(parents)
			if err != nil {
				return err
			}
			b, err := mut.NewCommit(parents, tree)
			if err != nil {
				return err
			}
			id, err := b.SetDescription(message).Write()
			if err != nil {
				return err
			}
			if err := mut.SetWorkingCopy(ws.name, id); err != nil {
				return err
			}
			return ws.commit(cmd, tx, "new empty commit")
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "description of the new commit")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "describe [revision]",
		Short: "Set the description of a commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("message") {
				return fmt.Errorf("describe: --message is required")
			}
			return runRewrite(cmd, args, "describe commit", func(ws *workspace, id object.Hash) (repo.Transform, error) {
				return repo.Describe{Commit: id, Description: message}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "new description")
	return cmd
}

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <revision>",
		Short: "Make a commit the working-copy commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			id, err := ws.resolve(args[0])
			if err != nil {
				return err
			}
			tx := ws.rr.StartTransaction()
			if err := tx.Mut().Edit(ws.name, id); err != nil {
				return err
			}
			return ws.commit(cmd, tx, "edit commit "+id.Short(12))
		},
	}
}

func newAbandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon [revision]",
		Short: "Abandon a commit, moving its children onto its parents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, args, "abandon commit", func(ws *workspace, id object.Hash) (repo.Transform, error) {
				return repo.Abandon{Commit: id}, nil
			})
		},
	}
}

func newRebaseCmd() *cobra.Command {
	var revision string
	var destinations []string

	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Move a commit and its descendants onto new parents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(destinations) == 0 {
				return fmt.Errorf("rebase: at least one --destination is required")
			}
			return runRewrite(cmd, []string{revision}, "rebase commit", func(ws *workspace, id object.Hash) (repo.Transform, error) {
				parents, err := ws.resolveAll(destinations)
				if err != nil {
					return nil, err
				}
				return repo.SetParents{Commit: id, Parents: parents}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&revision, "revision", "r", "@", "commit to rebase")
	cmd.Flags().StringArrayVarP(&destinations, "destination", "d", nil, "new parent (repeat for a merge)")
	return cmd
}

func newDuplicateCmd() *cobra.Command {
	var destinations []string

	cmd := &cobra.Command{
		Use:   "duplicate [revision]",
		Short: "Copy a commit under a new change id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, args, "duplicate commit", func(ws *workspace, id object.Hash) (repo.Transform, error) {
				parents, err := ws.resolveAll(destinations)
				if err != nil {
					return nil, err
				}
				return repo.Duplicate{Commit: id, Parents: parents}, nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&destinations, "destination", "d", nil, "parent of the copy (defaults to the original's parents)")
	return cmd
}

// runRewrite resolves the target revision (default @), applies the
// transform built for it in one operation and reports the outcome.
func runRewrite(cmd *cobra.Command, args []string, description string, build func(*workspace, object.Hash) (repo.Transform, error)) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	symbol := "@"
	if len(args) == 1 && args[0] != "" {
		symbol = args[0]
	}
	id, err := ws.resolve(symbol)
	if err != nil {
		return err
	}
	t, err := build(ws, id)
	if err != nil {
		return err
	}
	tx := ws.rr.StartTransaction()
	res, err := repo.Rewrite(tx.Mut(), t)
	if err != nil {
		return err
	}
	if err := ws.commit(cmd, tx, description+" "+id.Short(12)); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Created != "" {
		c, err := ws.rr.Store().ReadCommit(res.Created)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s\n", ws.oneline(res.Created, c))
	}
	for _, a := range res.Abandoned {
		fmt.Fprintf(out, "Abandoned commit %s\n", a.Short(12))
	}
	if res.Rebased > 0 {
		fmt.Fprintf(out, "Rebased %d descendant commits\n", res.Rebased)
	}
	return nil
}
