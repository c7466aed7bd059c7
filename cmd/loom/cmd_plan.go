package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/pkg/plan"
)

// newPlanCmd creates the "loom plan" subcommand.
func newPlanCmd() *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "plan [epic-id]",
		Short: "Preview an epic's phase sequence",
		Long:  "Fetches the execution plan, derives phases the same way loom run does,\nand prints the sequence with any dependency warnings. Nothing is executed\nand no status changes.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			epicID := ""
			if len(args) > 0 {
				epicID = args[0]
			}

			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			cfg, err := LoadConfig(paths.ConfigPath)
			if err != nil {
				return err
			}

			tc, epicID, err := resolveTracker(cfg, epicID, planFile)
			if err != nil {
				return err
			}
			execPlan, err := tc.GetExecutionPlan(cmd.Context(), epicID)
			if err != nil {
				return fmt.Errorf("fetch execution plan: %w", err)
			}

			printPhasePreview(cmd.OutOrStdout(), plan.FromPlanItems(execPlan.FlatItems()))
			return nil
		},
	}

	cmd.Flags().StringVar(&planFile, "plan-file", "", "preview a local YAML plan instead of a tracked epic")
	return cmd
}
