// Package tracker is the client boundary for the external work-tracking
// service, the system of record for epics, features, and tasks. The core
// consumes this boundary; it never implements the service's persistence or
// validation. Two implementations exist: an HTTP client for the real
// service and a YAML-file-backed client for offline and dry runs.
package tracker

import (
	"context"
	"time"
)

// ItemType identifies a level of the work hierarchy.
type ItemType string

// Work item types.
const (
	TypeEpic    ItemType = "epic"
	TypeFeature ItemType = "feature"
	TypeTask    ItemType = "task"
)

// Item statuses as reported by the tracking service.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
)

// Item is a created work item.
type Item struct {
	ID     string   `json:"id"`
	Type   ItemType `json:"type"`
	Title  string   `json:"title"`
	Status string   `json:"status"`
}

// PlanItem is one schedulable entry of an execution plan.
type PlanItem struct {
	ID             string   `json:"id"`
	Type           ItemType `json:"type"`
	Title          string   `json:"title"`
	ExecutionOrder int      `json:"executionOrder"`
	CanParallelize bool     `json:"canParallelize"`
	ParallelGroup  string   `json:"parallelGroup,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
	Status         string   `json:"status"`
	Prompt         string   `json:"prompt,omitempty"`
	Model          string   `json:"model,omitempty"`
}

// PlanPhase is the service's phase grouping of plan items.
type PlanPhase struct {
	Order            int        `json:"order"`
	CanRunInParallel bool       `json:"canRunInParallel"`
	Items            []PlanItem `json:"items"`
}

// ExecutionPlan is the service's plan for an epic.
type ExecutionPlan struct {
	EpicID     string      `json:"epicId"`
	Phases     []PlanPhase `json:"phases"`
	TotalItems int         `json:"totalItems"`
}

// FlatItems returns every plan item across phases in phase order.
func (p *ExecutionPlan) FlatItems() []PlanItem {
	items := make([]PlanItem, 0, p.TotalItems)
	for _, phase := range p.Phases {
		items = append(items, phase.Items...)
	}
	return items
}

// ProgressSummary reports epic-level completion.
type ProgressSummary struct {
	EpicID     string  `json:"epicId"`
	TotalItems int     `json:"totalItems"`
	Completed  int     `json:"completed"`
	InProgress int     `json:"inProgress"`
	Blocked    int     `json:"blocked"`
	Percent    float64 `json:"percentComplete"`
}

// WorkSession is a tracking-service work session bracket around a run.
type WorkSession struct {
	ID        string    `json:"id"`
	EpicID    string    `json:"epicId"`
	StartedAt time.Time `json:"startedAt"`
}

// SessionNotes closes a work session.
type SessionNotes struct {
	Summary   string   `json:"summary"`
	NextSteps []string `json:"nextSteps,omitempty"`
	Blockers  []string `json:"blockers,omitempty"`
	Decisions []string `json:"decisions,omitempty"`
}

// Team is a tracking-service team.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemSpec creates a work item. ParentID is the epic for features and the
// feature for tasks; scheduling fields apply to features and tasks only.
type ItemSpec struct {
	ParentID       string   `json:"parentId,omitempty"`
	TeamID         string   `json:"teamId,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	ExecutionOrder int      `json:"executionOrder,omitempty"`
	CanParallelize bool     `json:"canParallelize,omitempty"`
	ParallelGroup  string   `json:"parallelGroup,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
}

// Client is the tracking-service operation surface consumed by the core.
// All operations are safe to retry except StartSession, which the service
// rejects on duplicates.
type Client interface {
	CreateEpic(ctx context.Context, spec ItemSpec) (*Item, error)
	CreateFeature(ctx context.Context, spec ItemSpec) (*Item, error)
	CreateTask(ctx context.Context, spec ItemSpec) (*Item, error)

	GetExecutionPlan(ctx context.Context, epicID string) (*ExecutionPlan, error)
	GetProgressSummary(ctx context.Context, epicID string) (*ProgressSummary, error)
	ItemStatus(ctx context.Context, typ ItemType, id string) (string, error)

	StartWork(ctx context.Context, typ ItemType, id string) error
	CompleteWork(ctx context.Context, typ ItemType, id, summary string) error
	ReportBlocker(ctx context.Context, typ ItemType, id, reason string) error

	StartSession(ctx context.Context, epicID string) (*WorkSession, error)
	EndSession(ctx context.Context, epicID string, notes SessionNotes) error

	ListTeams(ctx context.Context) ([]Team, error)
}
