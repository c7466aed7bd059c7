package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"loom/pkg/journal"
	"loom/pkg/plan"
	"loom/pkg/retry"
	"loom/pkg/session"
	"loom/pkg/tracker"
)

// runFlags holds parsed flags for the run command.
type runFlags struct {
	planFile          string
	model             string
	itemTimeout       time.Duration
	continueOnFailure bool
	noRetry           bool
	noJournal         bool
	dryRun            bool
	verbose           bool
}

// newRunCmd creates the "loom run" subcommand.
func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [epic-id]",
		Short: "Execute an epic's work plan with agent sessions",
		Long: `Fetches the epic's execution plan from the tracking service, derives
sequential and parallel phases, and runs one agent session per work item.
Progress is reported back to the tracking service as items start, complete,
or hit blockers; a run journal is kept locally for loom status and the
dashboard.

With --plan-file, items come from a local YAML plan document instead of the
tracking service and status updates stay in memory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			epicID := ""
			if len(args) > 0 {
				epicID = args[0]
			}
			return runRun(cmd, epicID, &flags)
		},
	}

	cmd.Flags().StringVar(&flags.planFile, "plan-file", "", "run a local YAML plan instead of a tracked epic")
	cmd.Flags().StringVar(&flags.model, "model", "", "agent model override")
	cmd.Flags().DurationVar(&flags.itemTimeout, "item-timeout", 0, "per-item run cap (default from config)")
	cmd.Flags().BoolVar(&flags.continueOnFailure, "continue-on-failure", false, "keep going past a fully failed phase")
	cmd.Flags().BoolVar(&flags.noRetry, "no-retry", false, "disable per-item retries")
	cmd.Flags().BoolVar(&flags.noJournal, "no-journal", false, "skip the local run journal")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "show the phase plan without running")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "stream agent text and tool calls")

	return cmd
}

// runRun orchestrates one full epic run.
func runRun(cmd *cobra.Command, epicID string, flags *runFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	paths, err := ResolvePaths()
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(paths.ConfigPath)
	if err != nil {
		return err
	}
	if flags.model != "" {
		cfg.Agent.Model = flags.model
	}
	if flags.continueOnFailure {
		cfg.Run.ContinueOnFailure = true
	}
	if flags.itemTimeout > 0 {
		cfg.Run.ItemTimeoutSec = int(flags.itemTimeout / time.Second)
	}
	if flags.noRetry {
		cfg.Run.Retries = 0
	}

	tc, epicID, err := resolveTracker(cfg, epicID, flags.planFile)
	if err != nil {
		return err
	}

	execPlan, err := tc.GetExecutionPlan(ctx, epicID)
	if err != nil {
		return fmt.Errorf("fetch execution plan: %w", err)
	}
	items := plan.FromPlanItems(execPlan.FlatItems())
	if len(items) == 0 {
		return fmt.Errorf("epic %s has no work items", epicID)
	}

	printer := newProgressPrinter(cmd.ErrOrStderr(), flags.verbose)
	if flags.dryRun {
		printPhasePreview(cmd.OutOrStdout(), items)
		return nil
	}

	ws, err := tc.StartSession(ctx, epicID)
	if err != nil {
		return fmt.Errorf("start work session: %w", err)
	}
	printer.Step("Session %s opened for epic %s (%d items)", ws.ID, epicID, len(items))

	runID := uuid.NewString()
	var runLog plan.RunLog
	if !flags.noJournal {
		store, jErr := openJournal(paths)
		if jErr != nil {
			printer.Step("Warning: journal unavailable: %v", jErr)
		} else {
			defer store.Close()
			runLog = store.ForRun(runID)
		}
	}

	report, runErr := executeRun(ctx, cfg, tc, items, runID, runLog, printer)

	notes := sessionNotes(report)
	if err := tc.EndSession(context.WithoutCancel(ctx), epicID, notes); err != nil {
		printer.Step("Warning: end session: %v", err)
	}

	printReport(cmd.OutOrStdout(), report)
	if runErr != nil {
		return runErr
	}
	if report.Halted {
		return fmt.Errorf("run halted at phase %d", report.HaltedAt)
	}
	if report.Failed > 0 {
		return fmt.Errorf("run finished with %d failed items", report.Failed)
	}
	return nil
}

// executeRun wires the session manager, runner, and scheduler and drives the
// plan. Split out so tests can call it with a fake tracker and runner config.
func executeRun(ctx context.Context, cfg Config, tc tracker.Client, items []plan.WorkItem, runID string, runLog plan.RunLog, printer *progressPrinter) (*plan.Report, error) {
	mgr := session.NewManager(cfg.AgentOptions())
	defer mgr.DestroyAll()

	runner := &plan.SessionRunner{
		Sessions:    mgr,
		ItemTimeout: cfg.ItemTimeout(),
		Notify:      printer.SessionEvent,
	}
	if cfg.Run.Retries > 0 {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = cfg.Run.Retries
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			printer.Step("Retry %d in %s: %v", attempt, delay.Round(time.Millisecond), err)
		}
		runner.Retry = &policy
	}

	sched := plan.New(tc, runner, plan.Config{
		ContinueOnFailure: cfg.Run.ContinueOnFailure,
		RunID:             runID,
	})
	if runLog != nil {
		sched.SetRunLog(runLog)
	}
	return sched.Run(ctx, items)
}

// resolveTracker picks the tracking backend: a local plan file when given,
// otherwise the configured HTTP service. It returns the effective epic id.
func resolveTracker(cfg Config, epicID, planFile string) (tracker.Client, string, error) {
	if planFile != "" {
		ft, err := tracker.LoadFile(planFile)
		if err != nil {
			return nil, "", err
		}
		if epicID == "" {
			epicID = ft.EpicID()
		}
		return ft, epicID, nil
	}

	if cfg.Tracker.BaseURL == "" {
		return nil, "", fmt.Errorf("no tracker configured: set tracker.base_url in loom.toml, LOOM_TRACKER_URL, or use --plan-file")
	}
	if epicID == "" {
		return nil, "", fmt.Errorf("epic id required when running against the tracking service")
	}
	return tracker.NewHTTPClient(cfg.Tracker.BaseURL, cfg.Tracker.Token), epicID, nil
}

// openJournal ensures the loom home exists and opens the run journal.
func openJournal(paths *Paths) (*journal.Store, error) {
	if err := os.MkdirAll(paths.LoomHome, 0o755); err != nil {
		return nil, fmt.Errorf("create loom home: %w", err)
	}
	return journal.Open(paths.JournalDBPath)
}

// sessionNotes summarizes a run for the closing session notes.
func sessionNotes(report *plan.Report) tracker.SessionNotes {
	if report == nil {
		return tracker.SessionNotes{Summary: "Run aborted before any work started"}
	}
	notes := tracker.SessionNotes{
		Summary: fmt.Sprintf("Run %s: %d/%d items completed (%.0f%%), %d failed, %d skipped",
			report.RunID, report.Completed, report.TotalItems, report.Percent(), report.Failed, report.Skipped),
	}
	for _, phase := range report.Phases {
		for _, res := range phase.Results {
			if res.Outcome == plan.OutcomeFailed {
				notes.Blockers = append(notes.Blockers, fmt.Sprintf("%s: %s", res.Item.ID, res.Err))
			}
		}
	}
	if report.Halted {
		notes.NextSteps = append(notes.NextSteps,
			fmt.Sprintf("Resolve blockers and re-run: halted at phase %d", report.HaltedAt))
	}
	return notes
}
