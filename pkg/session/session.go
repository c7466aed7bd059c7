// Package session layers a stateful, observable, single-call-at-a-time unit
// of work over the agent client. A Session accepts one prompt at a time,
// forwards stream notifications to subscribers, and settles into completed
// or failed. The Manager owns the registry of live sessions.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"loom/pkg/agent"
)

// Status is the session lifecycle state.
type Status string

// Session statuses. The only reachable transitions are
// idle → working → {completed, failed}, working → idle (cancel), and
// any → completed (destroy).
const (
	StatusIdle      Status = "idle"
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// EventKind classifies a session event.
type EventKind string

// Session event kinds. Stream kinds (text, tool_call, diagnostic, warning)
// are forwarded verbatim from the client in arrival order; complete and
// error are terminal per message.
const (
	EventText       EventKind = "text"
	EventToolCall   EventKind = "tool_call"
	EventDiagnostic EventKind = "diagnostic"
	EventWarning    EventKind = "warning"
	EventComplete   EventKind = "complete"
	EventError      EventKind = "error"
)

// Event is one observable occurrence on a session.
type Event struct {
	Kind      EventKind
	MessageID string
	Text      string
	ToolName  string
	ToolInput json.RawMessage
	Result    *agent.Result // set on complete
	Err       error         // set on error
}

// Listener receives session events. Listeners are invoked sequentially from
// the session's invocation goroutine, preserving event order.
type Listener func(Event)

// Runner abstracts the agent client for testability.
type Runner interface {
	Execute(ctx context.Context, req agent.Request, notify agent.Notifier) (*agent.Result, error)
}

// Session owns at most one in-flight invocation. All methods are safe for
// concurrent use.
type Session struct {
	id     string
	runner Runner

	mu         sync.Mutex
	status     Status
	generation int // bumped on cancel/destroy to suppress stale settlement
	listeners  map[int]Listener
	nextSub    int
	ctx        context.Context //nolint:containedctx // lifecycle context for spawned invocations
	cancelCtx  context.CancelFunc
}

// newSession is called by the Manager; sessions are not created directly.
func newSession(id string, runner Runner) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		runner:    runner,
		status:    StatusIdle,
		listeners: make(map[int]Listener),
		ctx:       ctx,
		cancelCtx: cancel,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe registers a listener and returns an unsubscribe function.
// Listeners receive no events after Destroy.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Send begins an invocation for the prompt and returns a generated message
// id immediately. It fails synchronously when the session is already working
// or has been destroyed. Completion is reported via complete/error events.
func (s *Session) Send(prompt string) (string, error) {
	s.mu.Lock()
	switch s.status {
	case StatusWorking:
		s.mu.Unlock()
		return "", fmt.Errorf("session %s already working", s.id)
	case StatusCompleted:
		s.mu.Unlock()
		return "", fmt.Errorf("session %s in status completed", s.id)
	}
	s.status = StatusWorking
	gen := s.generation
	msgID := uuid.NewString()
	ctx := s.ctx
	s.mu.Unlock()

	go s.run(ctx, gen, msgID, prompt)
	return msgID, nil
}

// run drives one invocation to settlement on its own goroutine.
func (s *Session) run(ctx context.Context, gen int, msgID, prompt string) {
	res, err := s.runner.Execute(ctx, agent.Request{Prompt: prompt}, func(n agent.Notification) {
		s.forward(gen, msgID, n)
	})

	s.mu.Lock()
	if s.generation != gen {
		// Canceled or destroyed while in flight: the settlement is
		// swallowed, status already reassigned elsewhere.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.status = StatusFailed
	} else {
		s.status = StatusCompleted
	}
	s.mu.Unlock()

	if err != nil {
		s.emit(Event{Kind: EventError, MessageID: msgID, Err: err})
		return
	}
	s.emit(Event{Kind: EventComplete, MessageID: msgID, Text: res.Text, Result: res})
}

// forward re-emits a client notification as a session event, unless the
// invocation has been superseded by cancel/destroy.
func (s *Session) forward(gen int, msgID string, n agent.Notification) {
	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		return
	}

	ev := Event{MessageID: msgID, Text: n.Text, ToolName: n.ToolName, ToolInput: n.ToolInput}
	switch n.Kind {
	case agent.NoteText:
		ev.Kind = EventText
	case agent.NoteToolCall:
		ev.Kind = EventToolCall
	case agent.NoteDiagnostic:
		ev.Kind = EventDiagnostic
	case agent.NoteWarning:
		ev.Kind = EventWarning
	default:
		return
	}
	s.emit(ev)
}

// emit delivers an event to all current listeners in subscription order.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SendAndWait sends the prompt and blocks until the invocation settles or
// timeout elapses. The timeout is caller-side only: it stops the wait but
// does not kill the subprocess, whose settlement is then swallowed by the
// abandoned invocation. A timeout of 0 waits indefinitely.
func (s *Session) SendAndWait(prompt string, timeout time.Duration) (*agent.Result, error) {
	// The terminal event can fire before Send returns the message id (a
	// fast runner settles immediately), so the listener parks an early
	// terminal event until the id is known.
	done := make(chan Event, 1)
	var waitMu sync.Mutex
	var msgID string
	var early *Event
	deliver := func(ev Event) {
		select {
		case done <- ev:
		default:
		}
	}
	unsub := s.Subscribe(func(ev Event) {
		if ev.Kind != EventComplete && ev.Kind != EventError {
			return
		}
		waitMu.Lock()
		defer waitMu.Unlock()
		if msgID == "" {
			evCopy := ev
			early = &evCopy
			return
		}
		if ev.MessageID == msgID {
			deliver(ev)
		}
	})
	defer unsub()

	id, err := s.Send(prompt)
	if err != nil {
		return nil, err
	}
	waitMu.Lock()
	msgID = id
	if early != nil && early.MessageID == id {
		deliver(*early)
	}
	waitMu.Unlock()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case ev := <-done:
		if ev.Kind == EventError {
			return nil, ev.Err
		}
		return ev.Result, nil
	case <-timeoutCh:
		s.Cancel()
		return nil, fmt.Errorf("session %s: timed out waiting for result after %s", s.id, timeout)
	}
}

// Cancel returns the session to idle so it can be reused. The underlying
// subprocess is not killed immediately; any late settlement from the
// abandoned invocation is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusCompleted {
		return
	}
	s.generation++
	s.status = StatusIdle
}

// Destroy terminates the session: status becomes completed, in-flight work
// is abandoned and its subprocess context canceled, and all listeners are
// removed. Destroy is idempotent.
func (s *Session) Destroy() {
	s.mu.Lock()
	s.generation++
	s.status = StatusCompleted
	s.listeners = make(map[int]Listener)
	cancel := s.cancelCtx
	s.mu.Unlock()
	cancel()
}
