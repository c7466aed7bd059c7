package retry //nolint:testpackage // internal test needs access to unexported helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// codedError is a minimal Coder implementation for tests.
type codedError struct {
	code string
}

func (e *codedError) Error() string { return "coded: " + e.code }
func (e *codedError) Code() string  { return e.code }

// statusError is a minimal StatusCoder implementation for tests.
type statusError struct {
	status int
}

func (e *statusError) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e *statusError) StatusCode() int { return e.status }

// flaggedError is a minimal Flagged implementation for tests.
type flaggedError struct {
	retryable bool
}

func (e *flaggedError) Error() string   { return "flagged" }
func (e *flaggedError) Retryable() bool { return e.retryable }

// fastPolicy keeps test sleeps negligible.
func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:     maxRetries,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2,
		RetryableCodes: DefaultRetryableCodes(),
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want ok after 1", got, calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &codedError{code: CodeAgentTimeout}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls, want 42 after 3", got, calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	wantErr := &codedError{code: CodeAgentError}
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), func(context.Context) (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() error = %v, want last attempt's error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want MaxRetries+1 = 3", calls)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, &codedError{code: CodeValidation}
	})
	if err == nil {
		t.Fatal("Do() succeeded, want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-retryable)", calls)
	}
}

func TestDo_UnclassifiedFailsClosed(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("mystery failure")
	})
	if err == nil {
		t.Fatal("Do() succeeded, want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (unclassified errors are not retried)", calls)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(3)
	policy.InitialDelay = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Do(ctx, policy, func(context.Context) (int, error) {
		return 0, &codedError{code: CodeAgentTimeout}
	})
	if err == nil {
		t.Fatal("Do() succeeded, want abort error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("cancel did not interrupt the backoff sleep (%v)", time.Since(start))
	}
}

func TestDoDetailed_Telemetry(t *testing.T) {
	t.Parallel()

	calls := 0
	out, err := DoDetailed(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &codedError{code: CodeRateLimited}
		}
		return "v", nil
	})
	if err != nil {
		t.Fatalf("DoDetailed() error: %v", err)
	}
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", out.Attempts)
	}
	if out.Value != "v" {
		t.Errorf("Value = %q, want v", out.Value)
	}
	if out.Elapsed <= 0 {
		t.Errorf("Elapsed = %v, want positive", out.Elapsed)
	}
}

func TestDo_OnRetryHook(t *testing.T) {
	t.Parallel()

	var attempts []int
	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
		if delay <= 0 {
			t.Errorf("OnRetry delay = %v, want positive", delay)
		}
		if err == nil {
			t.Error("OnRetry err = nil")
		}
	}

	_, _ = Do(context.Background(), policy, func(context.Context) (int, error) {
		return 0, &codedError{code: CodeAgentError}
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestDelay_ExponentialGrowthAndCeiling(t *testing.T) {
	t.Parallel()

	policy := Policy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{9, 10 * time.Second}, // stays capped
	}
	for _, tc := range cases {
		if got := Delay(policy, tc.attempt); got != tc.want {
			t.Errorf("Delay(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelay_JitterBounds(t *testing.T) {
	t.Parallel()

	policy := Policy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2, Jitter: true}
	for i := 0; i < 200; i++ {
		d := Delay(policy, 3) // base 4s
		lo, hi := 3*time.Second, 5*time.Second
		if d < lo || d > hi {
			t.Fatalf("jittered Delay = %v, want within [%v, %v]", d, lo, hi)
		}
	}
}

func TestRetryable_Classification(t *testing.T) {
	t.Parallel()

	codes := DefaultRetryableCodes()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("wrap: %w", context.DeadlineExceeded), false},
		{"status 429", &statusError{status: 429}, true},
		{"status 503", &statusError{status: 503}, true},
		{"status 404", &statusError{status: 404}, false},
		{"status 401", &statusError{status: 401}, false},
		{"status 422", &statusError{status: 422}, false},
		{"flagged retryable", &flaggedError{retryable: true}, true},
		{"flagged definitive", &flaggedError{retryable: false}, false},
		{"agent timeout code", &codedError{code: CodeAgentTimeout}, true},
		{"agent spawn code", &codedError{code: CodeAgentSpawn}, true},
		{"validation code", &codedError{code: CodeValidation}, false},
		{"unknown code", &codedError{code: "SOMETHING_ELSE"}, false},
		{"plain error", errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err, codes); got != tc.want {
			t.Errorf("%s: Retryable() = %t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestRetryable_NonRetryableSetWinsOverPolicy(t *testing.T) {
	t.Parallel()

	// Even when a policy explicitly opts a code in, the fixed set wins.
	got := Retryable(&codedError{code: CodeAuthFailed}, []string{CodeAuthFailed})
	if got {
		t.Error("Retryable() = true for AUTH_FAILED, fixed non-retryable set must win")
	}
}
