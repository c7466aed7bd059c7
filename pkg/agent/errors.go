package agent

import (
	"fmt"
	"time"

	"loom/pkg/retry"
)

// SpawnError means the subprocess could not be started at all (binary
// missing, exec failure). Retry policies treat it as transient by default.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn agent %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Code implements retry.Coder.
func (e *SpawnError) Code() string { return retry.CodeAgentSpawn }

// TimeoutKind distinguishes the two supervision timers.
type TimeoutKind string

// Timeout kinds.
const (
	TimeoutDeadline   TimeoutKind = "deadline"
	TimeoutInactivity TimeoutKind = "inactivity"
)

// TimeoutError means a supervision timer expired and the subprocess was
// terminated (SIGTERM, then SIGKILL after the grace window).
type TimeoutError struct {
	Kind   TimeoutKind
	After  time.Duration
	Stderr string
}

func (e *TimeoutError) Error() string {
	switch e.Kind {
	case TimeoutInactivity:
		return fmt.Sprintf("agent inactive for %s, killed", e.After)
	default:
		return fmt.Sprintf("agent timed out after %s, killed", e.After)
	}
}

// Code implements retry.Coder.
func (e *TimeoutError) Code() string { return retry.CodeAgentTimeout }

// ExecError means the subprocess ran but failed: a result event with an
// error subtype, a non-zero exit, or an exit without any result event.
// Message preserves the agent's own error text, or the captured stderr when
// the agent said nothing.
type ExecError struct {
	ExitCode int
	Message  string
	Stderr   string
}

func (e *ExecError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("agent failed (exit %d): %s", e.ExitCode, e.Message)
	}
	return fmt.Sprintf("agent failed: %s", e.Message)
}

// Code implements retry.Coder.
func (e *ExecError) Code() string { return retry.CodeAgentError }
