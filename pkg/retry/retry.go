// Package retry implements a generic retry engine: exponential backoff with
// optional jitter, driven by an error-class-aware retryability decision.
// It wraps calls to the agent subprocess client and the tracker API; both of
// those layers stay retry-free themselves.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy configures one retry loop. A Policy is a value object: it is never
// mutated by Do and may be shared across goroutines.
type Policy struct {
	MaxRetries   int           // retries after the first attempt (total attempts = MaxRetries+1)
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // backoff growth factor
	Jitter       bool          // randomize each delay by ±25%

	// RetryableCodes lists error codes (see classify.go) that this policy
	// considers transient. The fixed non-retryable set always wins.
	RetryableCodes []string

	// OnRetry, when set, is invoked before each backoff sleep with the
	// attempt number that just failed (1-based), the computed delay, and
	// the error.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (p Policy) withDefaults() Policy {
	out := p
	if out.InitialDelay <= 0 {
		out.InitialDelay = time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.Multiplier < 1 {
		out.Multiplier = 2
	}
	return out
}

// DefaultPolicy is the general-purpose preset: 3 retries, 1s→30s backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2,
		Jitter:         true,
		RetryableCodes: DefaultRetryableCodes(),
	}
}

// RateLimitPolicy is tuned for HTTP 429 responses: 5 retries, 5s→60s backoff.
func RateLimitPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		InitialDelay:   5 * time.Second,
		MaxDelay:       60 * time.Second,
		Multiplier:     2,
		Jitter:         true,
		RetryableCodes: DefaultRetryableCodes(),
	}
}

// ReadHeavyPolicy is tuned for idempotent reads: 5 retries, 500ms→15s backoff.
func ReadHeavyPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       15 * time.Second,
		Multiplier:     2,
		Jitter:         true,
		RetryableCodes: DefaultRetryableCodes(),
	}
}

// Outcome carries the result of DoDetailed alongside attempt telemetry.
type Outcome[T any] struct {
	Value    T
	Attempts int
	Elapsed  time.Duration
}

// Do runs op up to MaxRetries+1 times. A non-retryable error is returned
// immediately without consuming a retry. Context cancellation interrupts a
// backoff sleep and returns ctx.Err().
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	out, err := DoDetailed(ctx, policy, op)
	return out.Value, err
}

// DoDetailed is Do plus attempt count and total elapsed wall-clock time.
func DoDetailed[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (Outcome[T], error) {
	p := policy.withDefaults()
	start := time.Now()
	out := Outcome[T]{}

	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries+1; attempt++ {
		out.Attempts = attempt

		val, err := op(ctx)
		if err == nil {
			out.Value = val
			out.Elapsed = time.Since(start)
			return out, nil
		}
		lastErr = err

		if !Retryable(err, p.RetryableCodes) || attempt > p.MaxRetries {
			break
		}

		delay := Delay(p, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			out.Elapsed = time.Since(start)
			return out, fmt.Errorf("retry aborted after attempt %d: %w", attempt, err)
		}
	}

	out.Elapsed = time.Since(start)
	return out, lastErr
}

// Delay computes the backoff delay before the retry that follows the given
// failed attempt (1-based): min(InitialDelay * Multiplier^(attempt-1),
// MaxDelay), randomized ±25% when jitter is enabled.
func Delay(policy Policy, attempt int) time.Duration {
	p := policy.withDefaults()
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		// ±25%: scale by a factor in [0.75, 1.25).
		factor := 0.75 + rand.Float64()*0.5 //nolint:gosec // jitter doesn't need crypto rand
		d *= factor
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
