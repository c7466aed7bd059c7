package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/buildinfo"
)

// newRootCmd creates the root loom command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loom",
		Short:         "Loom agent run orchestrator",
		Long:          "loom drives coding-agent sessions through a tracked execution plan.\nIt schedules work items into phases, runs one agent session per item,\nand reports progress back to the tracking service.",
		Version:       fmt.Sprintf("loom %s", buildinfo.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newPlanCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newDashCmd(),
	)

	return cmd
}
