package forward

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a delivery failure. The orchestrator dispatches on
// it: transient failures are retried, unavailable recipients are recorded
// and passed over, rate limits pause the whole session, and fatal failures
// take the session out of service.
type FailureKind int

const (
	// FailureTransient is a temporary condition such as a network timeout.
	FailureTransient FailureKind = iota
	// FailureRateLimited means the platform told the session to back off.
	FailureRateLimited
	// FailureUnavailable means this recipient cannot be reached (blocked the
	// bot, deactivated, chat gone).
	FailureUnavailable
	// FailureFatal means the session credentials were rejected.
	FailureFatal
)

// String returns a stable label used in logs and stored error messages.
func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureUnavailable:
		return "unavailable"
	case FailureFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// SendError is a classified delivery failure. RetryAfter carries the
// platform's back-off hint and is only meaningful for FailureRateLimited.
type SendError struct {
	Kind       FailureKind
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	switch {
	case e.Err == nil:
		return e.Kind.String()
	case e.Kind == FailureRateLimited:
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

// Unwrap exposes the underlying platform error.
func (e *SendError) Unwrap() error {
	return e.Err
}

// RateLimited wraps err as a platform rate limit with the given back-off.
func RateLimited(retryAfter time.Duration, err error) *SendError {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &SendError{Kind: FailureRateLimited, RetryAfter: retryAfter, Err: err}
}

// Unavailable wraps err as an unreachable-recipient failure.
func Unavailable(err error) *SendError {
	return &SendError{Kind: FailureUnavailable, Err: err}
}

// Fatal wraps err as a terminal session failure.
func Fatal(err error) *SendError {
	return &SendError{Kind: FailureFatal, Err: err}
}

// Transient wraps err as a retryable failure.
func Transient(err error) *SendError {
	return &SendError{Kind: FailureTransient, Err: err}
}

// Classify returns the failure kind of err. Errors that don't carry a
// SendError are treated as transient.
func Classify(err error) FailureKind {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind
	}
	return FailureTransient
}

// IsTransient reports whether err should be retried in place.
func IsTransient(err error) bool {
	return Classify(err) == FailureTransient
}

// IsFatal reports whether err invalidates the session.
func IsFatal(err error) bool {
	return Classify(err) == FailureFatal
}

// FloodWait extracts the back-off hint from a rate limit failure.
func FloodWait(err error) (time.Duration, bool) {
	var sendErr *SendError
	if errors.As(err, &sendErr) && sendErr.Kind == FailureRateLimited {
		return sendErr.RetryAfter, true
	}
	return 0, false
}
