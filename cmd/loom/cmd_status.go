package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"loom/pkg/journal"
)

// newStatusCmd creates the "loom status" subcommand.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [epic-id]",
		Short: "Show epic progress and the latest run",
		Long:  "Shows tracking-service progress for the epic when given, plus a summary\nof the most recent run from the local journal.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				cfg, err := LoadConfig(paths.ConfigPath)
				if err != nil {
					return err
				}
				tc, epicID, err := resolveTracker(cfg, args[0], "")
				if err != nil {
					return err
				}
				sum, err := tc.GetProgressSummary(cmd.Context(), epicID)
				if err != nil {
					return fmt.Errorf("fetch progress: %w", err)
				}
				fmt.Fprintf(out, "epic %s: %d/%d completed (%.0f%%), %d in progress, %d blocked\n",
					sum.EpicID, sum.Completed, sum.TotalItems, sum.Percent, sum.InProgress, sum.Blocked)
			}

			store, err := journal.OpenReadOnly(paths.JournalDBPath)
			if err != nil {
				fmt.Fprintln(out, "no runs recorded yet")
				return nil //nolint:nilerr // a missing journal just means nothing has run
			}
			defer store.Close()

			runID, err := store.LatestRunID(cmd.Context())
			if err != nil {
				return err
			}
			if runID == "" {
				fmt.Fprintln(out, "no runs recorded yet")
				return nil
			}

			events, err := store.Events(cmd.Context(), journal.Query{RunID: runID, Limit: 20})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "latest run %s:\n", runID)
			for _, ev := range events {
				printJournalEvent(out, ev)
			}
			return nil
		},
	}
	return cmd
}

// printJournalEvent renders one journal line.
func printJournalEvent(out io.Writer, ev journal.Event) {
	when := ev.CreatedAt.Format("15:04:05")
	if ev.ItemID != "" {
		fmt.Fprintf(out, "  %s %-16s %s %s\n", when, ev.Type, ev.ItemID, ev.Detail)
		return
	}
	fmt.Fprintf(out, "  %s %-16s %s\n", when, ev.Type, ev.Detail)
}
