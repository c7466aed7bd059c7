package tracker

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Interface compliance.
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*FileTracker)(nil)
)

// FileTracker is a Client backed by a local YAML plan document. It exists
// for offline runs, dry runs, and tests: item definitions are read-only,
// status changes are tracked in memory only.
type FileTracker struct {
	epicID string
	items  []PlanItem

	mu       sync.Mutex
	statuses map[string]string
	blockers map[string]string
	session  *WorkSession
}

// planDoc is the on-disk YAML shape.
type planDoc struct {
	Epic struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
	} `yaml:"epic"`
	Items []planDocItem `yaml:"items"`
}

type planDocItem struct {
	ID             string   `yaml:"id"`
	Type           string   `yaml:"type"`
	Title          string   `yaml:"title"`
	Prompt         string   `yaml:"prompt"`
	ExecutionOrder int      `yaml:"execution_order"`
	CanParallelize bool     `yaml:"can_parallelize"`
	ParallelGroup  string   `yaml:"parallel_group"`
	Dependencies   []string `yaml:"dependencies"`
	Model          string   `yaml:"model"`
}

// LoadFile reads a YAML plan document from path.
func LoadFile(path string) (*FileTracker, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator's CLI flag
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return ParsePlanDoc(data)
}

// ParsePlanDoc builds a FileTracker from YAML plan document bytes.
func ParsePlanDoc(data []byte) (*FileTracker, error) {
	var doc planDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	if doc.Epic.ID == "" {
		return nil, fmt.Errorf("parse plan file: epic.id is required")
	}

	ft := &FileTracker{
		epicID:   doc.Epic.ID,
		statuses: make(map[string]string, len(doc.Items)),
		blockers: make(map[string]string),
	}
	for i, it := range doc.Items {
		if it.ID == "" {
			return nil, fmt.Errorf("parse plan file: items[%d] missing id", i)
		}
		if it.ExecutionOrder <= 0 {
			return nil, fmt.Errorf("parse plan file: item %s: execution_order must be positive", it.ID)
		}
		typ := ItemType(it.Type)
		if typ == "" {
			typ = TypeTask
		}
		ft.items = append(ft.items, PlanItem{
			ID:             it.ID,
			Type:           typ,
			Title:          it.Title,
			Prompt:         it.Prompt,
			ExecutionOrder: it.ExecutionOrder,
			CanParallelize: it.CanParallelize,
			ParallelGroup:  it.ParallelGroup,
			Dependencies:   it.Dependencies,
			Model:          it.Model,
			Status:         StatusPending,
		})
		ft.statuses[it.ID] = StatusPending
	}
	return ft, nil
}

// EpicID returns the plan document's epic identifier.
func (f *FileTracker) EpicID() string { return f.epicID }

// CreateEpic is unsupported: the file tracker's items are read-only.
func (f *FileTracker) CreateEpic(_ context.Context, _ ItemSpec) (*Item, error) {
	return nil, fmt.Errorf("file tracker is read-only")
}

// CreateFeature is unsupported: the file tracker's items are read-only.
func (f *FileTracker) CreateFeature(_ context.Context, _ ItemSpec) (*Item, error) {
	return nil, fmt.Errorf("file tracker is read-only")
}

// CreateTask is unsupported: the file tracker's items are read-only.
func (f *FileTracker) CreateTask(_ context.Context, _ ItemSpec) (*Item, error) {
	return nil, fmt.Errorf("file tracker is read-only")
}

// GetExecutionPlan groups the document's items by execution order into the
// service's wire shape. The scheduler re-derives its own phases from the
// flat item list; this grouping is presentational.
func (f *FileTracker) GetExecutionPlan(_ context.Context, epicID string) (*ExecutionPlan, error) {
	if epicID != f.epicID {
		return nil, &APIError{Op: "get execution plan", Status: 404, Body: fmt.Sprintf("unknown epic %s", epicID)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	byOrder := make(map[int][]PlanItem)
	orders := make([]int, 0)
	for _, it := range f.items {
		it.Status = f.statuses[it.ID]
		if _, seen := byOrder[it.ExecutionOrder]; !seen {
			orders = append(orders, it.ExecutionOrder)
		}
		byOrder[it.ExecutionOrder] = append(byOrder[it.ExecutionOrder], it)
	}
	sort.Ints(orders)

	plan := &ExecutionPlan{EpicID: f.epicID, TotalItems: len(f.items)}
	for _, order := range orders {
		items := byOrder[order]
		plan.Phases = append(plan.Phases, PlanPhase{
			Order:            order,
			CanRunInParallel: sharesParallelGroup(items),
			Items:            items,
		})
	}
	return plan, nil
}

// sharesParallelGroup reports whether every item carries the same non-empty
// parallel group and allows parallelization.
func sharesParallelGroup(items []PlanItem) bool {
	if len(items) < 2 {
		return false
	}
	group := items[0].ParallelGroup
	for _, it := range items {
		if !it.CanParallelize || it.ParallelGroup == "" || it.ParallelGroup != group {
			return false
		}
	}
	return true
}

// GetProgressSummary computes progress from the in-memory statuses.
func (f *FileTracker) GetProgressSummary(_ context.Context, epicID string) (*ProgressSummary, error) {
	if epicID != f.epicID {
		return nil, &APIError{Op: "get progress summary", Status: 404, Body: fmt.Sprintf("unknown epic %s", epicID)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sum := &ProgressSummary{EpicID: f.epicID, TotalItems: len(f.items)}
	for _, status := range f.statuses {
		switch status {
		case StatusCompleted:
			sum.Completed++
		case StatusInProgress:
			sum.InProgress++
		case StatusBlocked:
			sum.Blocked++
		}
	}
	if sum.TotalItems > 0 {
		sum.Percent = float64(sum.Completed) / float64(sum.TotalItems) * 100
	}
	return sum, nil
}

// ItemStatus returns the in-memory status for an item.
func (f *FileTracker) ItemStatus(_ context.Context, _ ItemType, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[id]
	if !ok {
		return "", &APIError{Op: "get item", Status: 404, Body: fmt.Sprintf("unknown item %s", id)}
	}
	return status, nil
}

func (f *FileTracker) setStatus(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[id]; !ok {
		return &APIError{Op: "update item", Status: 404, Body: fmt.Sprintf("unknown item %s", id)}
	}
	f.statuses[id] = status
	return nil
}

// StartWork marks an item in progress.
func (f *FileTracker) StartWork(_ context.Context, _ ItemType, id string) error {
	return f.setStatus(id, StatusInProgress)
}

// CompleteWork marks an item completed.
func (f *FileTracker) CompleteWork(_ context.Context, _ ItemType, id, _ string) error {
	return f.setStatus(id, StatusCompleted)
}

// ReportBlocker marks an item blocked and records the reason.
func (f *FileTracker) ReportBlocker(_ context.Context, _ ItemType, id, reason string) error {
	if err := f.setStatus(id, StatusBlocked); err != nil {
		return err
	}
	f.mu.Lock()
	f.blockers[id] = reason
	f.mu.Unlock()
	return nil
}

// Blocker returns the recorded blocker reason for an item, if any.
func (f *FileTracker) Blocker(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason, ok := f.blockers[id]
	return reason, ok
}

// StartSession opens an in-memory work session. A second start while one is
// open is rejected, mirroring the real service's uniqueness rule.
func (f *FileTracker) StartSession(_ context.Context, epicID string) (*WorkSession, error) {
	if epicID != f.epicID {
		return nil, &APIError{Op: "start session", Status: 404, Body: fmt.Sprintf("unknown epic %s", epicID)}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil {
		return nil, &APIError{Op: "start session", Status: 422, Body: "session already open"}
	}
	f.session = &WorkSession{ID: uuid.NewString(), EpicID: epicID, StartedAt: time.Now()}
	return f.session, nil
}

// EndSession closes the open work session.
func (f *FileTracker) EndSession(_ context.Context, epicID string, _ SessionNotes) error {
	if epicID != f.epicID {
		return &APIError{Op: "end session", Status: 404, Body: fmt.Sprintf("unknown epic %s", epicID)}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = nil
	return nil
}

// ListTeams returns a single placeholder team for the local plan.
func (f *FileTracker) ListTeams(_ context.Context) ([]Team, error) {
	return []Team{{ID: "local", Name: "local plan"}}, nil
}
