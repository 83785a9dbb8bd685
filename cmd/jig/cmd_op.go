package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newOpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op",
		Short: "Inspect and rewind the operation log",
	}
	cmd.AddCommand(newOpLogCmd())
	cmd.AddCommand(newOpUndoCmd())
	cmd.AddCommand(newOpRestoreCmd())
	return cmd
}

func newOpLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the operation log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			ids, err := ws.repo.OpStore.Log(ws.rr.OperationID(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, id := range ids {
				op, err := ws.repo.OpStore.ReadOperation(id)
				if err != nil {
					return err
				}
				marker := "○"
				if i == 0 {
					marker = "@"
				}
				if op.IsRoot() {
					fmt.Fprintf(out, "%s %s root()\n", marker, id.Short(12))
					continue
				}
				md := op.Metadata
				fmt.Fprintf(out, "%s %s %s@%s %s\n", marker, id.Short(12), md.Username, md.Hostname, md.End.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "  %s\n", md.Description)
				if len(md.Tags) > 0 {
					keys := make([]string, 0, len(md.Tags))
					for k := range md.Tags {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					pairs := make([]string, 0, len(keys))
					for _, k := range keys {
						pairs = append(pairs, k+": "+md.Tags[k])
					}
					fmt.Fprintf(out, "  %s\n", strings.Join(pairs, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of operations to show")
	return cmd
}

func newOpUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo [operation]",
		Short: "Revert the effect of an operation, keeping later ones",
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
			opID, err := ws.rr.ResolveOperation(symbol)
			if err != nil {
				return err
			}
			next, err := ws.rr.Undo(opID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Undid operation %s\n", opID.Short(12))
			return ws.finish(cmd, next)
		},
	}
}

func newOpRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <operation>",
		Short: "Return the repository to the state after an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			opID, err := ws.rr.ResolveOperation(args[0])
			if err != nil {
				return err
			}
			next, err := ws.rr.Restore(opID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored to operation %s\n", opID.Short(12))
			return ws.finish(cmd, next)
		},
	}
}
