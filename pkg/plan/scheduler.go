package plan

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"loom/pkg/tracker"
)

// Tracker is the narrow tracking-service surface the scheduler needs.
// Both tracker.HTTPClient and tracker.FileTracker satisfy it.
type Tracker interface {
	StartWork(ctx context.Context, typ tracker.ItemType, id string) error
	CompleteWork(ctx context.Context, typ tracker.ItemType, id, summary string) error
	ReportBlocker(ctx context.Context, typ tracker.ItemType, id, reason string) error
	ItemStatus(ctx context.Context, typ tracker.ItemType, id string) (string, error)
}

// AgentRunner executes one work item's prompt to completion and returns a
// summary of what was done.
type AgentRunner interface {
	Run(ctx context.Context, item WorkItem) (summary string, err error)
}

// RunLog receives run telemetry. Logging is best-effort; implementations
// must not fail the run.
type RunLog interface {
	Log(ctx context.Context, event, itemID string, phase int, detail string)
}

// Outcome is the terminal state of one item within a run.
type Outcome string

// Item outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped" // never attempted (run halted earlier)
)

// ItemResult records how one item fared.
type ItemResult struct {
	Item    WorkItem
	Outcome Outcome
	Summary string
	Err     string

	// completeUnreported marks an item whose work succeeded but whose
	// CompleteWork update failed; the reconcile sweep corrects it.
	completeUnreported bool
}

// PhaseResult records one phase's settlement.
type PhaseResult struct {
	Order    int
	Parallel bool
	Results  []ItemResult
}

// Report is the final account of a run.
type Report struct {
	RunID      string
	TotalItems int
	Completed  int
	Failed     int
	Skipped    int
	Phases     []PhaseResult
	Warnings   []string
	Halted     bool
	HaltedAt   int // execution order of the phase that halted the run
}

// Percent returns overall completion against the run's item total.
func (r *Report) Percent() float64 {
	if r.TotalItems == 0 {
		return 0
	}
	return float64(r.Completed) / float64(r.TotalItems) * 100
}

// Config holds scheduler knobs.
type Config struct {
	// ContinueOnFailure keeps the run going past a phase in which every
	// item failed. Partial failure inside a phase never halts the run.
	ContinueOnFailure bool

	// RunID labels the run in the report and telemetry. Empty generates one.
	RunID string
}

// Scheduler sequences a work plan into phases and drives their execution.
// One Scheduler handles one run at a time; it keeps no state across runs.
type Scheduler struct {
	tracker Tracker
	runner  AgentRunner
	cfg     Config
	log     RunLog
}

// New creates a scheduler over the given tracker and runner.
func New(tr Tracker, runner AgentRunner, cfg Config) *Scheduler {
	return &Scheduler{tracker: tr, runner: runner, cfg: cfg}
}

// SetRunLog attaches an optional telemetry sink.
func (s *Scheduler) SetRunLog(l RunLog) { s.log = l }

func (s *Scheduler) logf(ctx context.Context, event, itemID string, phase int, format string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Log(ctx, event, itemID, phase, fmt.Sprintf(format, args...))
}

// Run executes the plan: phases run in order, each phase settles fully
// before the next starts, and every item's progress is reported to the
// tracking service. The returned report is valid even when err is non-nil.
func (s *Scheduler) Run(ctx context.Context, items []WorkItem) (*Report, error) {
	runID := s.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &Report{
		RunID:      runID,
		TotalItems: len(items),
		Warnings:   ValidateDependencies(items),
	}
	phases := BuildPhases(items)
	s.logf(ctx, "run_start", "", 0, "%d items in %d phases", len(items), len(phases))

	halted := -1
	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			s.markSkipped(report, phases[i:])
			return report, fmt.Errorf("run canceled before phase %d: %w", phase.Order, err)
		}

		s.logf(ctx, "phase_start", "", phase.Order, "%d items, parallel=%t", len(phase.Items), phase.CanRunInParallel)
		pr := s.runPhase(ctx, phase)
		report.Phases = append(report.Phases, pr)

		successes := 0
		for _, res := range pr.Results {
			switch res.Outcome {
			case OutcomeCompleted:
				successes++
				report.Completed++
			case OutcomeFailed:
				report.Failed++
			}
		}
		s.logf(ctx, "phase_done", "", phase.Order, "%d/%d succeeded", successes, len(phase.Items))

		if successes == 0 && len(phase.Items) > 0 && !s.cfg.ContinueOnFailure {
			report.Halted = true
			report.HaltedAt = phase.Order
			halted = i
			s.logf(ctx, "run_halted", "", phase.Order, "phase had no successful items")
			break
		}
	}

	if halted >= 0 && halted+1 < len(phases) {
		s.markSkipped(report, phases[halted+1:])
	}

	s.reconcile(ctx, report)
	s.logf(ctx, "run_done", "", 0, "completed=%d failed=%d skipped=%d", report.Completed, report.Failed, report.Skipped)
	return report, nil
}

// markSkipped records never-attempted phases. Skipped items are left
// untouched in the tracking service: marking unattempted work done (or
// blocked) is forbidden.
func (s *Scheduler) markSkipped(report *Report, phases []Phase) {
	for _, phase := range phases {
		pr := PhaseResult{Order: phase.Order, Parallel: phase.CanRunInParallel}
		for _, it := range phase.Items {
			pr.Results = append(pr.Results, ItemResult{Item: it, Outcome: OutcomeSkipped})
			report.Skipped++
		}
		report.Phases = append(report.Phases, pr)
	}
}

// runPhase settles one phase. Sequential phases run items one at a time;
// parallel phases start every item and wait on the barrier until all have
// settled. A failing item never aborts its siblings.
func (s *Scheduler) runPhase(ctx context.Context, phase Phase) PhaseResult {
	pr := PhaseResult{Order: phase.Order, Parallel: phase.CanRunInParallel}

	if !phase.CanRunInParallel {
		for _, it := range phase.Items {
			pr.Results = append(pr.Results, s.runItem(ctx, phase.Order, it))
		}
		return pr
	}

	results := make([]ItemResult, len(phase.Items))
	var wg sync.WaitGroup
	for i, it := range phase.Items {
		wg.Add(1)
		go func(i int, it WorkItem) {
			defer wg.Done()
			results[i] = s.runItem(ctx, phase.Order, it)
		}(i, it)
	}
	wg.Wait()

	pr.Results = results
	return pr
}

// runItem drives one item: mark started, run the agent, then mark completed
// or report a blocker. Tracker update failures after successful work are
// deferred to the reconcile sweep rather than failing the item.
func (s *Scheduler) runItem(ctx context.Context, phaseOrder int, it WorkItem) ItemResult {
	res := ItemResult{Item: it}

	s.logf(ctx, "item_start", it.ID, phaseOrder, "%s", it.Title)
	if err := s.tracker.StartWork(ctx, it.Type, it.ID); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Sprintf("start work: %v", err)
		s.logf(ctx, "item_failed", it.ID, phaseOrder, "%s", res.Err)
		return res
	}

	summary, err := s.runner.Run(ctx, it)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err.Error()
		if rbErr := s.tracker.ReportBlocker(ctx, it.Type, it.ID, err.Error()); rbErr != nil {
			res.Err = fmt.Sprintf("%s (blocker report also failed: %v)", res.Err, rbErr)
		}
		s.logf(ctx, "item_blocked", it.ID, phaseOrder, "%s", res.Err)
		return res
	}

	res.Outcome = OutcomeCompleted
	res.Summary = summary
	if err := s.tracker.CompleteWork(ctx, it.Type, it.ID, summary); err != nil {
		res.completeUnreported = true
		s.logf(ctx, "item_unreported", it.ID, phaseOrder, "complete update failed: %v", err)
	} else {
		s.logf(ctx, "item_complete", it.ID, phaseOrder, "%s", summary)
	}
	return res
}

// reconcile sweeps every completed item's current tracking-service status
// and corrects ones the service still shows unfinished (a completion update
// that failed mid-run). Items never attempted are left untouched.
func (s *Scheduler) reconcile(ctx context.Context, report *Report) {
	for pi := range report.Phases {
		for ri := range report.Phases[pi].Results {
			res := &report.Phases[pi].Results[ri]
			if res.Outcome != OutcomeCompleted {
				continue
			}
			status, err := s.tracker.ItemStatus(ctx, res.Item.Type, res.Item.ID)
			if err != nil {
				s.logf(ctx, "reconcile_check_failed", res.Item.ID, report.Phases[pi].Order, "%v", err)
				continue
			}
			if status == tracker.StatusCompleted {
				res.completeUnreported = false
				continue
			}
			if err := s.tracker.CompleteWork(ctx, res.Item.Type, res.Item.ID, res.Summary); err != nil {
				s.logf(ctx, "reconcile_failed", res.Item.ID, report.Phases[pi].Order, "%v", err)
				continue
			}
			res.completeUnreported = false
			s.logf(ctx, "reconcile_fixed", res.Item.ID, report.Phases[pi].Order, "status was %s", status)
		}
	}
}
