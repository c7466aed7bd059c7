// Package plan turns a flat, dependency-annotated work-item list into an
// ordered sequence of phases and drives their execution: sessions are run
// per item, progress is reported to the tracking service, and a barrier
// guarantees phase N+1 never starts before phase N has fully settled.
package plan

import (
	"fmt"
	"sort"

	"loom/pkg/tracker"
)

// WorkItem is the scheduler's read-mostly snapshot of one feature or task.
// The tracking service remains authoritative for its status.
type WorkItem struct {
	ID             string
	Type           tracker.ItemType
	Title          string
	Prompt         string
	Model          string // per-item model override, empty for the run default
	ExecutionOrder int
	CanParallelize bool
	ParallelGroup  string
	Dependencies   []string
}

// Phase is a derived grouping of work items sharing an execution order.
// Phases are produced fresh per scheduling pass and never persisted.
type Phase struct {
	Order            int
	CanRunInParallel bool
	Items            []WorkItem
}

// BuildPhases groups items into an ordered phase sequence: ascending
// ExecutionOrder; items sharing a non-empty ParallelGroup at the same order
// (with CanParallelize set) form one parallel phase anchored at the group's
// first item; every other item forms its own sequential phase. Ties are
// broken by input order.
func BuildPhases(items []WorkItem) []Phase {
	sorted := make([]WorkItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutionOrder < sorted[j].ExecutionOrder
	})

	var phases []Phase
	groupIdx := make(map[string]int)
	for _, it := range sorted {
		if it.ParallelGroup != "" && it.CanParallelize {
			key := fmt.Sprintf("%d/%s", it.ExecutionOrder, it.ParallelGroup)
			if idx, ok := groupIdx[key]; ok {
				phases[idx].Items = append(phases[idx].Items, it)
				continue
			}
			groupIdx[key] = len(phases)
			phases = append(phases, Phase{Order: it.ExecutionOrder, Items: []WorkItem{it}})
			continue
		}
		phases = append(phases, Phase{Order: it.ExecutionOrder, Items: []WorkItem{it}})
	}

	// A group of one runs sequentially.
	for i := range phases {
		phases[i].CanRunInParallel = len(phases[i].Items) > 1
	}
	return phases
}

// ValidateDependencies checks that every declared dependency exists and is
// scheduled at an earlier execution order than its dependent. Violations are
// reported as warnings, not errors: the phase sequence is driven by
// ExecutionOrder and is never reordered to satisfy a dependency list.
func ValidateDependencies(items []WorkItem) []string {
	orders := make(map[string]int, len(items))
	for _, it := range items {
		orders[it.ID] = it.ExecutionOrder
	}

	var warnings []string
	for _, it := range items {
		for _, dep := range it.Dependencies {
			depOrder, ok := orders[dep]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("item %s depends on unknown item %s", it.ID, dep))
				continue
			}
			if depOrder >= it.ExecutionOrder {
				warnings = append(warnings,
					fmt.Sprintf("item %s (order %d) depends on %s (order %d), which is not scheduled earlier",
						it.ID, it.ExecutionOrder, dep, depOrder))
			}
		}
	}
	return warnings
}

// FromPlanItems converts tracking-service plan items into scheduler work
// items.
func FromPlanItems(items []tracker.PlanItem) []WorkItem {
	out := make([]WorkItem, 0, len(items))
	for _, it := range items {
		out = append(out, WorkItem{
			ID:             it.ID,
			Type:           it.Type,
			Title:          it.Title,
			Prompt:         it.Prompt,
			Model:          it.Model,
			ExecutionOrder: it.ExecutionOrder,
			CanParallelize: it.CanParallelize,
			ParallelGroup:  it.ParallelGroup,
			Dependencies:   it.Dependencies,
		})
	}
	return out
}
