package session //nolint:testpackage // internal test needs the runner seam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"loom/pkg/agent"
)

// fakeRunner scripts the agent client. Each Execute call consumes the
// configured behavior; block, when set, holds the call until released.
type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	result  *agent.Result
	err     error
	notes   []agent.Notification
	block   chan struct{} // when non-nil, Execute waits for close or ctx
	delay   time.Duration
	prompts []string
}

func (f *fakeRunner) Execute(ctx context.Context, req agent.Request, notify agent.Notifier) (*agent.Result, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	block := f.block
	notes := f.notes
	res := f.result
	err := f.err
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	for _, n := range notes {
		notify(n)
	}
	return res, err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testManager builds a Manager whose sessions use the given fake runner.
func testManager(runner Runner) *Manager {
	m := NewManager(agent.Options{})
	m.newRunner = func(agent.Options) Runner { return runner }
	return m
}

func waitForStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status = %q, want %q", s.Status(), want)
}

func TestSession_SendLifecycle(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: &agent.Result{Text: "done"}}
	m := testManager(runner)
	s := m.CreateSession(nil)

	if s.Status() != StatusIdle {
		t.Fatalf("new session status = %q, want idle", s.Status())
	}

	var mu sync.Mutex
	var events []Event
	s.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	msgID, err := s.Send("build it")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if msgID == "" {
		t.Fatal("Send() returned empty message id")
	}

	waitForStatus(t, s, StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventComplete || events[0].MessageID != msgID || events[0].Text != "done" {
		t.Errorf("event = %+v, want complete for %s", events[0], msgID)
	}
}

func TestSession_RejectsConcurrentSend(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	runner := &fakeRunner{result: &agent.Result{}, block: block}
	m := testManager(runner)
	s := m.CreateSession(nil)

	if _, err := s.Send("first"); err != nil {
		t.Fatalf("first Send() error: %v", err)
	}
	if _, err := s.Send("second"); err == nil {
		t.Error("second Send() succeeded while working, want rejection")
	}
	close(block)
	waitForStatus(t, s, StatusCompleted)

	if runner.callCount() != 1 {
		t.Errorf("runner calls = %d, want 1", runner.callCount())
	}
}

func TestSession_FailureSetsFailedStatus(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("agent blew up")}
	m := testManager(runner)
	s := m.CreateSession(nil)

	done := make(chan Event, 1)
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventError {
			done <- ev
		}
	})

	if _, err := s.Send("x"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case ev := <-done:
		if ev.Err == nil || ev.Err.Error() != "agent blew up" {
			t.Errorf("error event = %+v, want runner error", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error event")
	}
	waitForStatus(t, s, StatusFailed)
}

func TestSession_StreamEventsForwardedInOrder(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		result: &agent.Result{Text: "fin"},
		notes: []agent.Notification{
			{Kind: agent.NoteText, Text: "step one"},
			{Kind: agent.NoteToolCall, ToolName: "Bash"},
			{Kind: agent.NoteDiagnostic, Text: "stderr stuff"},
		},
	}
	m := testManager(runner)
	s := m.CreateSession(nil)

	var mu sync.Mutex
	var kinds []EventKind
	done := make(chan struct{})
	s.Subscribe(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
		if ev.Kind == EventComplete {
			close(done)
		}
	})

	if _, err := s.Send("x"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{EventText, EventToolCall, EventDiagnostic, EventComplete}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
}

func TestSession_SendAndWait(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: &agent.Result{Text: "answer"}}
	m := testManager(runner)
	s := m.CreateSession(nil)

	res, err := s.SendAndWait("prompt", 2*time.Second)
	if err != nil {
		t.Fatalf("SendAndWait() error: %v", err)
	}
	if res.Text != "answer" {
		t.Errorf("Text = %q, want answer", res.Text)
	}
}

// A runner that settles before Send even returns must not hang SendAndWait.
func TestSession_SendAndWaitImmediateSettlement(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: &agent.Result{Text: "instant"}}
	m := testManager(runner)

	for i := 0; i < 50; i++ {
		s := m.CreateSession(nil)
		res, err := s.SendAndWait("fast", 2*time.Second)
		if err != nil {
			t.Fatalf("iteration %d: SendAndWait() error: %v", i, err)
		}
		if res.Text != "instant" {
			t.Fatalf("iteration %d: Text = %q", i, res.Text)
		}
		m.DestroySession(s.ID())
	}
}

func TestSession_SendAndWaitTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	runner := &fakeRunner{result: &agent.Result{}, block: block}
	m := testManager(runner)
	s := m.CreateSession(nil)

	_, err := s.SendAndWait("slow", 50*time.Millisecond)
	if err == nil {
		t.Fatal("SendAndWait() succeeded, want timeout")
	}
	// Timeout cancels back to idle so the session can be reused.
	waitForStatus(t, s, StatusIdle)
}

func TestSession_CancelSuppressesStaleSettlement(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	runner := &fakeRunner{result: &agent.Result{Text: "stale"}, block: block}
	m := testManager(runner)
	s := m.CreateSession(nil)

	var mu sync.Mutex
	var terminal []Event
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventComplete || ev.Kind == EventError {
			mu.Lock()
			terminal = append(terminal, ev)
			mu.Unlock()
		}
	})

	if _, err := s.Send("x"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	s.Cancel()
	if s.Status() != StatusIdle {
		t.Fatalf("status after Cancel = %q, want idle", s.Status())
	}

	// Let the abandoned invocation settle; its events must be swallowed.
	close(block)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(terminal) != 0 {
		t.Errorf("terminal events after cancel = %+v, want none", terminal)
	}
	if s.Status() != StatusIdle {
		t.Errorf("status = %q, stale settlement overwrote idle", s.Status())
	}
}

func TestSession_ReuseAfterCancel(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	runner := &fakeRunner{result: &agent.Result{Text: "second"}, block: block}
	m := testManager(runner)
	s := m.CreateSession(nil)

	if _, err := s.Send("first"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	s.Cancel()
	close(block)

	runner.mu.Lock()
	runner.block = nil
	runner.mu.Unlock()

	res, err := s.SendAndWait("again", 2*time.Second)
	if err != nil {
		t.Fatalf("SendAndWait() after cancel error: %v", err)
	}
	if res.Text != "second" {
		t.Errorf("Text = %q, want second", res.Text)
	}
}

func TestSession_DestroyIsTerminalAndIdempotent(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: &agent.Result{}}
	m := testManager(runner)
	s := m.CreateSession(nil)

	s.Destroy()
	s.Destroy()

	if s.Status() != StatusCompleted {
		t.Errorf("status = %q, want completed", s.Status())
	}
	if _, err := s.Send("x"); err == nil {
		t.Error("Send() after Destroy succeeded, want rejection")
	}
	wantMsg := fmt.Sprintf("session %s in status completed", s.ID())
	if _, err := s.Send("x"); err == nil || err.Error() != wantMsg {
		t.Errorf("Send() error = %v, want %q", err, wantMsg)
	}
}

func TestSession_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: &agent.Result{}}
	m := testManager(runner)
	s := m.CreateSession(nil)

	var mu sync.Mutex
	count := 0
	unsub := s.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsub()

	if _, err := s.SendAndWait("x", 2*time.Second); err != nil {
		t.Fatalf("SendAndWait() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("unsubscribed listener got %d events", count)
	}
}
