package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// APIError is a definitive response from the tracking service. The service's
// error body is preserved verbatim so operators can see what was rejected.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("tracker %s: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("tracker %s: status %d", e.Op, e.Status)
}

// StatusCode implements retry.StatusCoder: 5xx and 429 are retryable,
// 400/404/422 and auth failures are not.
func (e *APIError) StatusCode() int { return e.Status }

// RequestError is a network-layer failure reaching the service. Whether it
// is retryable is decided here, where the failure mode is visible, and
// carried on the error for the retry engine.
type RequestError struct {
	Op        string
	Err       error
	retryable bool
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Retryable implements retry.Flagged.
func (e *RequestError) Retryable() bool { return e.retryable }

// newRequestError classifies a transport error: timeouts and connection
// failures are transient; context cancellation and everything else is
// definitive.
func newRequestError(op string, err error) *RequestError {
	re := &RequestError{Op: op, Err: err}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return re
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		re.retryable = true
		return re
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		re.retryable = true
		return re
	}
	var oerr *net.OpError
	if errors.As(err, &oerr) {
		re.retryable = true
	}
	return re
}
