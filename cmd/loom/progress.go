package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"loom/pkg/plan"
	"loom/pkg/session"
)

// progressPrinter writes run progress lines. On a terminal the lines get a
// little color; piped output stays plain. Safe for concurrent use: parallel
// phases emit session events from multiple goroutines.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool

	stepStyle lipgloss.Style
	toolStyle lipgloss.Style
	warnStyle lipgloss.Style
}

func newProgressPrinter(w io.Writer, verbose bool) *progressPrinter {
	p := &progressPrinter{w: w, verbose: verbose}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		p.stepStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
		p.toolStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		p.warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	}
	return p
}

// Step prints a run-level status line.
func (p *progressPrinter) Step(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.stepStyle.Render(fmt.Sprintf(format, args...)))
}

// SessionEvent renders one session event for a work item. Terminal events
// always print; text and tool traffic only with --verbose.
func (p *progressPrinter) SessionEvent(item plan.WorkItem, ev session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case session.EventComplete:
		line := fmt.Sprintf("[%s] done", item.ID)
		if ev.Result != nil {
			line = fmt.Sprintf("[%s] done ($%.4f, %d turns)", item.ID, ev.Result.CostUSD, ev.Result.NumTurns)
		}
		fmt.Fprintln(p.w, p.stepStyle.Render(line))
	case session.EventError:
		fmt.Fprintln(p.w, p.warnStyle.Render(fmt.Sprintf("[%s] failed: %v", item.ID, ev.Err)))
	case session.EventWarning:
		fmt.Fprintln(p.w, p.warnStyle.Render(fmt.Sprintf("[%s] %s", item.ID, ev.Text)))
	case session.EventToolCall:
		if p.verbose {
			fmt.Fprintln(p.w, p.toolStyle.Render(fmt.Sprintf("[%s] tool %s", item.ID, ev.ToolName)))
		}
	case session.EventText:
		if p.verbose && ev.Text != "" {
			fmt.Fprintf(p.w, "[%s] %s\n", item.ID, ev.Text)
		}
	case session.EventDiagnostic:
		if p.verbose && ev.Text != "" {
			fmt.Fprintln(p.w, p.toolStyle.Render(fmt.Sprintf("[%s] stderr: %s", item.ID, ev.Text)))
		}
	}
}

// printPhasePreview renders the derived phase sequence without running it.
func printPhasePreview(w io.Writer, items []plan.WorkItem) {
	phases := plan.BuildPhases(items)
	fmt.Fprintf(w, "%d items in %d phases\n", len(items), len(phases))
	for i, phase := range phases {
		mode := "sequential"
		if phase.CanRunInParallel {
			mode = fmt.Sprintf("parallel ×%d", len(phase.Items))
		}
		fmt.Fprintf(w, "phase %d (order %d, %s):\n", i+1, phase.Order, mode)
		for _, it := range phase.Items {
			fmt.Fprintf(w, "  %-10s %-8s %s\n", it.ID, it.Type, it.Title)
		}
	}
	for _, warning := range plan.ValidateDependencies(items) {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// printReport renders the final run report.
func printReport(w io.Writer, report *plan.Report) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "\nrun %s: %d/%d completed (%.0f%%), %d failed, %d skipped\n",
		report.RunID, report.Completed, report.TotalItems, report.Percent(), report.Failed, report.Skipped)
	for _, phase := range report.Phases {
		for _, res := range phase.Results {
			switch res.Outcome {
			case plan.OutcomeFailed:
				fmt.Fprintf(w, "  failed  %s: %s\n", res.Item.ID, res.Err)
			case plan.OutcomeSkipped:
				fmt.Fprintf(w, "  skipped %s\n", res.Item.ID)
			}
		}
	}
	if report.Halted {
		fmt.Fprintf(w, "halted at phase %d\n", report.HaltedAt)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
