package retry

import (
	"context"
	"errors"
	"slices"
)

// Error-class codes shared across the codebase. Producers attach a code to
// an error by implementing Coder; policies opt codes in via RetryableCodes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConfig       = "CONFIG_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeAgentSpawn   = "AGENT_SPAWN"
	CodeAgentTimeout = "AGENT_TIMEOUT"
	CodeAgentError   = "AGENT_ERROR"
)

// nonRetryableCodes always wins over a policy's RetryableCodes: auth
// failures, missing resources, validation and configuration errors are
// definitive no matter what the policy says.
var nonRetryableCodes = []string{ //nolint:gochecknoglobals // fixed classification table
	CodeAuthFailed,
	CodeForbidden,
	CodeNotFound,
	CodeValidation,
	CodeConfig,
}

// StatusCoder is implemented by tracker API errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Flagged is implemented by network-layer errors that decide their own
// retryability (connection/timeout vs. definitive rejection).
type Flagged interface {
	Retryable() bool
}

// Coder is implemented by classified errors carrying one of the Code*
// constants above.
type Coder interface {
	Code() string
}

// Retryable reports whether err is worth retrying under the given retryable
// code set. Classification order: auth never; API errors by status code;
// network errors by their own flag; coded errors by code set membership with
// the fixed non-retryable set winning. Anything unclassified fails closed.
func Retryable(err error, retryableCodes []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return statusRetryable(sc.StatusCode())
	}

	var fl Flagged
	if errors.As(err, &fl) {
		return fl.Retryable()
	}

	var c Coder
	if errors.As(err, &c) {
		code := c.Code()
		if slices.Contains(nonRetryableCodes, code) {
			return false
		}
		return slices.Contains(retryableCodes, code)
	}

	return false
}

// statusRetryable classifies tracker API status codes: 5xx and 429 are
// transient; 400/404/422 are caller or data errors; everything else
// (including 401/403 auth) is definitive.
func statusRetryable(status int) bool {
	switch {
	case status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// DefaultRetryableCodes returns the codes the stock presets treat as
// transient: agent spawn failures, agent timeouts, agent-reported errors,
// and rate limiting.
func DefaultRetryableCodes() []string {
	return []string{CodeAgentSpawn, CodeAgentTimeout, CodeAgentError, CodeRateLimited}
}
