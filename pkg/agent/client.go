package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// NotificationKind classifies a streaming notification.
type NotificationKind string

// Notification kinds emitted while an invocation is in flight.
const (
	NoteText       NotificationKind = "text"       // assistant text block
	NoteToolCall   NotificationKind = "tool_call"  // assistant tool_use block
	NoteDiagnostic NotificationKind = "diagnostic" // stderr line or system event
	NoteWarning    NotificationKind = "warning"    // dropped malformed stream line
)

// Notification is one incremental update delivered to a subscriber as the
// subprocess streams, in the order the subprocess emitted it.
type Notification struct {
	Kind      NotificationKind
	Text      string
	ToolName  string
	ToolInput json.RawMessage
}

// Notifier receives notifications. It is called from the client's stream
// reading goroutine; implementations must not block for long.
type Notifier func(Notification)

// Client runs prompt-to-completion cycles against the agent CLI. It is
// stateless across calls and safe for concurrent use; each Execute owns its
// subprocess exclusively. Retrying and queueing are the caller's business.
type Client struct {
	opts Options

	// newCommand is a test seam; production uses exec.CommandContext.
	newCommand func(ctx context.Context, binary string, args []string) *exec.Cmd
}

// NewClient creates a client with the given default options.
func NewClient(opts Options) *Client {
	return &Client{
		opts: opts,
		newCommand: func(ctx context.Context, binary string, args []string) *exec.Cmd {
			return exec.CommandContext(ctx, binary, args...)
		},
	}
}

// Execute spawns one agent subprocess for the request and blocks until it
// settles. Two independent timers supervise the run: the overall deadline
// starts at spawn and never moves; the inactivity watchdog resets on every
// parsed stream event. Whichever expires first cancels the run, which sends
// SIGTERM and escalates to SIGKILL after the grace window.
//
// notify may be nil. On success the subprocess emitted a result event with
// subtype success and exited 0.
func (c *Client) Execute(ctx context.Context, req Request, notify Notifier) (*Result, error) {
	o := c.opts.withDefaults()
	inactivity := o.InactivityTimeout
	if req.InactivityTimeout > 0 {
		inactivity = req.InactivityTimeout
	}
	emit := notify
	if emit == nil {
		emit = func(Notification) {}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := c.newCommand(runCtx, o.Binary, BuildArgs(req.Prompt, o))
	cmd.Dir = o.WorkDir
	cmd.Env = mergedEnv(o.Env)
	// Empty stdin prevents the agent from blocking on a TTY read when run
	// from a daemon context.
	cmd.Stdin = strings.NewReader("")
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = o.KillGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout unavailable: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stderr unavailable: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: o.Binary, Err: err}
	}

	// Timeout bookkeeping: first expiry wins and is the one reported. The
	// watchdog resets on activity but can never extend the run past the
	// deadline, because the deadline timer is independent and never reset.
	var timeoutMu sync.Mutex
	var timedOut TimeoutKind
	expire := func(kind TimeoutKind) func() {
		return func() {
			timeoutMu.Lock()
			if timedOut == "" {
				timedOut = kind
			}
			timeoutMu.Unlock()
			cancel()
		}
	}
	deadline := time.AfterFunc(o.Timeout, expire(TimeoutDeadline))
	defer deadline.Stop()
	watchdog := time.AfterFunc(inactivity, expire(TimeoutInactivity))
	defer watchdog.Stop()

	// Capture stderr verbatim: every line becomes a diagnostic notification
	// and the tail is preserved for failure messages.
	tail := &tailBuffer{limit: stderrTailLimit}
	var stderrDone sync.WaitGroup
	stderrDone.Add(1)
	go func() {
		defer stderrDone.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.append(line)
			emit(Notification{Kind: NoteDiagnostic, Text: line})
		}
	}()

	var result *ResultEvent
	parser := NewStreamParser(
		func(ev Event) {
			watchdog.Reset(inactivity)
			switch ev := ev.(type) {
			case AssistantEvent:
				for _, block := range ev.Content {
					switch block.Type {
					case "text":
						if block.Text != "" {
							emit(Notification{Kind: NoteText, Text: block.Text})
						}
					case "tool_use":
						emit(Notification{Kind: NoteToolCall, ToolName: block.Name, ToolInput: block.Input})
					}
				}
			case ResultEvent:
				if result == nil {
					r := ev
					result = &r
				}
			case SystemEvent:
				if ev.Message != "" {
					emit(Notification{Kind: NoteDiagnostic, Text: fmt.Sprintf("[%s] %s", ev.Subtype, ev.Message)})
				}
			}
		},
		func(w Warning) {
			emit(Notification{Kind: NoteWarning, Text: w.Line})
		},
	)

	buf := make([]byte, 32*1024)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			parser.Write(buf[:n])
		}
		if readErr != nil {
			break
		}
	}
	parser.Flush()

	waitErr := cmd.Wait()
	stderrDone.Wait()
	deadline.Stop()
	watchdog.Stop()

	timeoutMu.Lock()
	cause := timedOut
	timeoutMu.Unlock()

	switch {
	case cause == TimeoutDeadline:
		return nil, &TimeoutError{Kind: TimeoutDeadline, After: o.Timeout, Stderr: tail.String()}
	case cause == TimeoutInactivity:
		return nil, &TimeoutError{Kind: TimeoutInactivity, After: inactivity, Stderr: tail.String()}
	case ctx.Err() != nil:
		return nil, fmt.Errorf("agent invocation canceled: %w", ctx.Err())
	}

	if result == nil {
		return nil, &ExecError{
			ExitCode: exitCode(waitErr),
			Message:  failureMessage("agent exited without a result event", tail.String()),
			Stderr:   tail.String(),
		}
	}

	if !result.Succeeded() || waitErr != nil {
		msg := result.Result
		if !result.Succeeded() && msg == "" {
			msg = failureMessage(fmt.Sprintf("agent result subtype %q", result.Subtype), tail.String())
		}
		if result.Succeeded() {
			// Successful result event but non-zero exit.
			msg = failureMessage(fmt.Sprintf("agent exited abnormally after success result: %v", waitErr), tail.String())
		}
		return nil, &ExecError{ExitCode: exitCode(waitErr), Message: msg, Stderr: tail.String()}
	}

	return &Result{
		Text:       result.Result,
		CostUSD:    result.CostUSD,
		DurationMs: result.DurationMs,
		NumTurns:   result.NumTurns,
		SessionID:  result.SessionID,
	}, nil
}

// stderrTailLimit bounds how much captured stderr is kept for failure
// messages. Diagnostic notifications still carry every line.
const stderrTailLimit = 8 * 1024

// tailBuffer keeps the last limit bytes of appended lines.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// failureMessage appends the stderr tail to a base message when available.
func failureMessage(base, stderrTail string) string {
	if stderrTail == "" {
		return base
	}
	return fmt.Sprintf("%s; stderr: %s", base, stderrTail)
}

// exitCode extracts the process exit code from a Wait error, or 0.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// mergedEnv layers overrides on top of the inherited environment. A nil or
// empty override map inherits the parent environment unchanged.
func mergedEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
