package main

import (
	"fmt"
	"path/filepath"

	"github.com/odvcencio/jig/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			settings := repo.DefaultSettings()
			settings.Storage.Backend = backend
			r, err := repo.Init(abs, repo.Options{Settings: settings})
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized repo in %s\n", r.RootDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", repo.BackendFile, "storage backend (file or sqlite)")
	return cmd
}
