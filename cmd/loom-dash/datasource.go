package main

import (
	"context"
	"sort"
	"time"

	"loom/pkg/journal"
)

// ItemRow is the dashboard's folded view of one work item within a run.
type ItemRow struct {
	ID     string    `json:"id"`
	Phase  int       `json:"phase"`
	State  string    `json:"state"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// RunSnapshot is everything the dashboard shows about the latest run.
type RunSnapshot struct {
	RunID   string          `json:"runId"`
	Items   []ItemRow       `json:"items"`
	Events  []journal.Event `json:"-"`
	Done    bool            `json:"done"`
	Halted  bool            `json:"halted"`
	Summary string          `json:"summary"`
}

// fetchSnapshot reads the latest run from the journal and folds its events
// into per-item rows. An empty journal yields an empty snapshot, not an
// error.
func fetchSnapshot(path string) (*RunSnapshot, error) {
	store, err := journal.OpenReadOnly(path)
	if err != nil {
		// No journal yet: nothing has run.
		return &RunSnapshot{}, nil //nolint:nilerr // absence is an empty dashboard
	}
	defer store.Close()

	ctx := context.Background()
	runID, err := store.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return &RunSnapshot{}, nil
	}

	events, err := store.Events(ctx, journal.Query{RunID: runID})
	if err != nil {
		return nil, err
	}
	return foldEvents(runID, events), nil
}

// foldEvents reduces a run's event stream to the latest state per item.
func foldEvents(runID string, events []journal.Event) *RunSnapshot {
	snapshot := &RunSnapshot{RunID: runID, Events: events}
	rows := make(map[string]*ItemRow)

	for _, ev := range events {
		switch ev.Type {
		case "item_start":
			rows[ev.ItemID] = &ItemRow{ID: ev.ItemID, Phase: ev.Phase, State: "running", Detail: ev.Detail, At: ev.CreatedAt}
		case "item_complete", "reconcile_fixed":
			setRowState(rows, ev, "completed")
		case "item_unreported":
			setRowState(rows, ev, "completed (unreported)")
		case "item_blocked", "item_failed":
			setRowState(rows, ev, "failed")
		case "run_halted":
			snapshot.Halted = true
		case "run_done":
			snapshot.Done = true
			snapshot.Summary = ev.Detail
		}
	}

	for _, row := range rows {
		snapshot.Items = append(snapshot.Items, *row)
	}
	sort.Slice(snapshot.Items, func(i, j int) bool {
		if snapshot.Items[i].Phase != snapshot.Items[j].Phase {
			return snapshot.Items[i].Phase < snapshot.Items[j].Phase
		}
		return snapshot.Items[i].ID < snapshot.Items[j].ID
	})
	return snapshot
}

// setRowState updates an item row in place, creating it if the start event
// was missed (journal opened mid-run).
func setRowState(rows map[string]*ItemRow, ev journal.Event, state string) {
	row, ok := rows[ev.ItemID]
	if !ok {
		row = &ItemRow{ID: ev.ItemID, Phase: ev.Phase}
		rows[ev.ItemID] = row
	}
	row.State = state
	row.Detail = ev.Detail
	row.At = ev.CreatedAt
}
