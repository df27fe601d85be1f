// Package throttle provides the rate limiting primitives that pace message
// delivery: a global token bucket, a per-recipient spacing throttle, and a
// coordinator that composes them and applies retry backoff.
package throttle

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket that admits at most 'capacity' sends per
// 'interval', refilling continuously. Admissions beyond the available tokens
// block until the bucket refills. An optional randomized delay is applied
// after each admission so deliveries don't fire in lockstep.
type Limiter struct {
	capacity int
	interval time.Duration
	minDelay time.Duration
	maxDelay time.Duration

	mu     sync.Mutex
	bucket *rate.Limiter
}

// NewLimiter creates a Limiter admitting 'capacity' units per 'interval'.
// minDelay/maxDelay bound the randomized post-admission delay; both may be
// zero to disable it. Invalid capacity or interval values fall back to a
// conservative single unit per second.
func NewLimiter(capacity int, interval, minDelay, maxDelay time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return &Limiter{
		capacity: capacity,
		interval: interval,
		minDelay: minDelay,
		maxDelay: maxDelay,
		bucket:   newBucket(capacity, interval),
	}
}

func newBucket(capacity int, interval time.Duration) *rate.Limiter {
	perSecond := float64(capacity) / interval.Seconds()
	return rate.NewLimiter(rate.Limit(perSecond), capacity)
}

// Admit consumes one unit, blocking until a token is available, then sleeps
// the randomized inter-send delay. Returns the context error if ctx is
// cancelled while waiting.
func (l *Limiter) Admit(ctx context.Context) error {
	l.mu.Lock()
	bucket := l.bucket
	l.mu.Unlock()

	if err := bucket.Wait(ctx); err != nil {
		return err
	}

	delay := l.sendDelay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sendDelay picks a uniform random delay in [minDelay, maxDelay].
func (l *Limiter) sendDelay() time.Duration {
	if l.maxDelay <= 0 {
		return 0
	}
	spread := l.maxDelay - l.minDelay
	if spread <= 0 {
		return l.minDelay
	}
	return l.minDelay + time.Duration(rand.Int63n(int64(spread)+1))
}

// Available reports how many whole units could be admitted right now without
// blocking. It does not consume tokens.
func (l *Limiter) Available() int {
	l.mu.Lock()
	bucket := l.bucket
	l.mu.Unlock()

	tokens := int(bucket.Tokens())
	if tokens < 0 {
		return 0
	}
	return tokens
}

// Capacity returns the configured bucket capacity.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Reset swaps in a fresh, full bucket. Used after administrative resets so
// the next batch starts from full capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bucket = newBucket(l.capacity, l.interval)
}
