package throttle

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/avast/retry-go/v4"
)

// backoffJitter is the random variation applied to retry delays (plus or
// minus 20 percent) so parallel retries don't synchronize.
const backoffJitter = 0.2

// Coordinator composes the global limiter and the per-recipient throttle
// into a single admission gate, and centralizes the backoff policy used for
// retries. The global bucket is always consulted first so per-recipient
// waits never burn global tokens.
type Coordinator struct {
	limiter   *Limiter
	recipient *RecipientThrottle
}

// NewCoordinator creates a Coordinator over the given gates. Both must be
// non-nil.
func NewCoordinator(limiter *Limiter, recipient *RecipientThrottle) *Coordinator {
	return &Coordinator{
		limiter:   limiter,
		recipient: recipient,
	}
}

// Admit blocks until both gates pass: first the global bucket, then the
// per-recipient spacing for recipientID. A zero recipientID skips the
// per-recipient gate.
func (c *Coordinator) Admit(ctx context.Context, recipientID int64) error {
	if err := c.limiter.Admit(ctx); err != nil {
		return err
	}
	if recipientID == 0 {
		return nil
	}
	return c.recipient.AdmitFor(ctx, recipientID)
}

// CanAdmitNow reports whether the global bucket could admit one unit without
// blocking. It does not consume tokens and does not consult per-recipient
// spacing.
func (c *Coordinator) CanAdmitNow() bool {
	return c.limiter.Available() >= 1
}

// Available reports the current whole tokens in the global bucket.
func (c *Coordinator) Available() int {
	return c.limiter.Available()
}

// BackoffDelay computes the sleep before retry number 'attempt' (zero-based):
// base doubled per attempt, capped at ceiling, with random jitter applied.
func (c *Coordinator) BackoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(ceiling) {
		delay = float64(ceiling)
	}

	jitter := 1.0 + backoffJitter*(2*rand.Float64()-1)

	return time.Duration(delay * jitter)
}

// Retry runs op up to maxAttempts times, sleeping BackoffDelay between
// attempts. retryable filters which failures are retried; a nil retryable
// retries every failure. The final attempt's error is returned when all
// attempts fail.
func (c *Coordinator) Retry(ctx context.Context, op func(context.Context) error, retryable func(error) bool, maxAttempts uint, base, ceiling time.Duration) error {
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return c.BackoffDelay(int(n), base, ceiling)
		}),
		retry.LastErrorOnly(true),
	}
	if retryable != nil {
		opts = append(opts, retry.RetryIf(retryable))
	}

	return retry.Do(func() error { return op(ctx) }, opts...)
}

// ClearRecipient forgets the per-recipient spacing state for one recipient.
func (c *Coordinator) ClearRecipient(recipientID int64) {
	c.recipient.Clear(recipientID)
}

// Reset restores the global bucket to full capacity and clears all
// per-recipient spacing state.
func (c *Coordinator) Reset() {
	c.limiter.Reset()
	c.recipient.ClearAll()
}
