package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newDashCmd creates the "loom dash" subcommand.
func newDashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Launch interactive dashboard",
		Long:  "Opens the loom dashboard TUI for watching the current run's phases,\nitems, and journal events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Execute loom-dash binary
			dashCmd := exec.CommandContext(cmd.Context(), "loom-dash")
			dashCmd.Stdin = os.Stdin
			dashCmd.Stdout = os.Stdout
			dashCmd.Stderr = os.Stderr

			if err := dashCmd.Run(); err != nil {
				return fmt.Errorf("run loom-dash: %w", err)
			}

			return nil
		},
	}
}
