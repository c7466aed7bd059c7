package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newInitCmd creates the "loom init" subcommand.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the loom home and a default config",
		Long:  "Creates ~/.loom (or LOOM_HOME) and writes a default loom.toml there.\nFails if the config already exists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(paths.LoomHome, 0o755); err != nil {
				return fmt.Errorf("create loom home: %w", err)
			}
			if err := WriteDefault(paths.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", paths.ConfigPath)
			return nil
		},
	}
}
