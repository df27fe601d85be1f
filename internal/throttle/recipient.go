package throttle

import (
	"context"
	"sync"
	"time"
)

// RecipientThrottle enforces a minimum spacing between consecutive sends to
// the same recipient. Different recipients are tracked independently, so a
// wait for one never delays another.
type RecipientThrottle struct {
	delay time.Duration

	mu       sync.Mutex
	lastSent map[int64]time.Time
}

// NewRecipientThrottle creates a throttle with the given minimum spacing.
// A non-positive delay disables spacing entirely.
func NewRecipientThrottle(delay time.Duration) *RecipientThrottle {
	if delay < 0 {
		delay = 0
	}
	return &RecipientThrottle{
		delay:    delay,
		lastSent: make(map[int64]time.Time),
	}
}

// AdmitFor blocks until at least the configured delay has passed since the
// previous admission for recipientID, then records the new last-sent time.
// The first admission for a recipient passes immediately.
func (t *RecipientThrottle) AdmitFor(ctx context.Context, recipientID int64) error {
	if t.delay <= 0 {
		return nil
	}

	for {
		t.mu.Lock()
		now := time.Now()
		wait := time.Duration(0)
		if last, ok := t.lastSent[recipientID]; ok {
			wait = t.delay - now.Sub(last)
		}
		if wait <= 0 {
			t.lastSent[recipientID] = now
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check under the lock; another sender may have refreshed
			// the timestamp while we slept.
		}
	}
}

// Clear forgets the last-sent time for one recipient.
func (t *RecipientThrottle) Clear(recipientID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, recipientID)
}

// ClearAll forgets all recorded last-sent times.
func (t *RecipientThrottle) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[int64]time.Time)
}

// Tracked reports how many recipients currently have a recorded last-sent
// time.
func (t *RecipientThrottle) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSent)
}
