package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/pkg/journal"
)

// newLogsCmd creates the "loom logs" subcommand.
func newLogsCmd() *cobra.Command {
	var (
		itemID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "logs [run-id]",
		Short: "Show run journal events",
		Long:  "Prints journal events for a run (the latest by default), optionally\nfiltered to one work item.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			store, err := journal.OpenReadOnly(paths.JournalDBPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			runID := ""
			if len(args) > 0 {
				runID = args[0]
			} else {
				runID, err = store.LatestRunID(cmd.Context())
				if err != nil {
					return err
				}
				if runID == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "journal is empty")
					return nil
				}
			}

			events, err := store.Events(cmd.Context(), journal.Query{
				RunID:  runID,
				ItemID: itemID,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no events for run %s\n", runID)
				return nil
			}
			for _, ev := range events {
				printJournalEvent(cmd.OutOrStdout(), ev)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "filter to one work item")
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the last N events")
	return cmd
}
