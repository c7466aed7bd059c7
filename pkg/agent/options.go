// Package agent implements the process session client for the coding-agent
// CLI. One Execute call spawns one subprocess, feeds it a prompt via CLI
// arguments, parses its stdout as newline-delimited JSON stream events, and
// supervises the process under an overall deadline and an inactivity
// watchdog with SIGTERM→SIGKILL escalation.
package agent

import "time"

// Default supervision knobs.
const (
	// DefaultBinary is the agent executable, resolved via PATH.
	DefaultBinary = "claude"

	// DefaultTimeout is the overall deadline for one invocation.
	DefaultTimeout = 300 * time.Second

	// DefaultInactivityTimeout bounds the gap between stream events.
	DefaultInactivityTimeout = 60 * time.Second

	// DefaultKillGrace is how long a SIGTERM'd process gets before SIGKILL.
	DefaultKillGrace = 5 * time.Second
)

// Options configures a Client. The zero value is usable: every field has a
// default applied at execution time.
type Options struct {
	Binary             string            // agent executable path (default "claude")
	Model              string            // model identifier passed as --model
	WorkDir            string            // subprocess working directory
	Env                map[string]string // environment overrides layered on os.Environ
	SystemPrompt       string            // --system-prompt override
	AppendSystemPrompt string            // --append-system-prompt
	SkipPermissions    bool              // --dangerously-skip-permissions
	MaxTurns           int               // --max-turns cap, 0 = unset
	AllowedTools       []string          // --allowedTools allow-list
	MCPConfigPath      string            // --mcp-config file path
	ExtraArgs          []string          // raw arguments appended verbatim

	Timeout           time.Duration // overall deadline (default 300s)
	InactivityTimeout time.Duration // watchdog reset on each event (default 60s)
	KillGrace         time.Duration // SIGTERM→SIGKILL grace window (default 5s)
}

func (o Options) withDefaults() Options {
	out := o
	if out.Binary == "" {
		out.Binary = DefaultBinary
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.InactivityTimeout <= 0 {
		out.InactivityTimeout = DefaultInactivityTimeout
	}
	if out.KillGrace <= 0 {
		out.KillGrace = DefaultKillGrace
	}
	return out
}

// Request is one prompt-to-completion invocation. InactivityTimeout, when
// positive, overrides the client-level watchdog for this call only.
type Request struct {
	Prompt            string
	InactivityTimeout time.Duration
}

// Result is the successful outcome of one invocation.
type Result struct {
	Text       string
	CostUSD    float64
	DurationMs int64
	NumTurns   int
	SessionID  string
}
