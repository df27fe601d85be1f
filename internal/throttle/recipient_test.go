package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/chanrelay/chanrelay/internal/throttle"
)

func TestRecipientThrottleEnforcesSpacing(t *testing.T) {
	t.Parallel()

	rt := throttle.NewRecipientThrottle(100 * time.Millisecond)
	ctx := context.Background()

	if err := rt.AdmitFor(ctx, 42); err != nil {
		t.Fatalf("first admit returned error: %v", err)
	}

	start := time.Now()
	if err := rt.AdmitFor(ctx, 42); err != nil {
		t.Fatalf("second admit returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected second admit to wait close to the spacing, waited only %v", elapsed)
	}
}

func TestRecipientThrottleIndependentRecipients(t *testing.T) {
	t.Parallel()

	rt := throttle.NewRecipientThrottle(200 * time.Millisecond)
	ctx := context.Background()

	if err := rt.AdmitFor(ctx, 1); err != nil {
		t.Fatalf("admit for recipient 1 returned error: %v", err)
	}

	start := time.Now()
	if err := rt.AdmitFor(ctx, 2); err != nil {
		t.Fatalf("admit for recipient 2 returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected a different recipient to pass immediately, waited %v", elapsed)
	}
}

func TestRecipientThrottleClear(t *testing.T) {
	t.Parallel()

	rt := throttle.NewRecipientThrottle(200 * time.Millisecond)
	ctx := context.Background()

	if err := rt.AdmitFor(ctx, 7); err != nil {
		t.Fatalf("admit returned error: %v", err)
	}
	if got := rt.Tracked(); got != 1 {
		t.Fatalf("expected 1 tracked recipient, got %d", got)
	}

	rt.Clear(7)

	start := time.Now()
	if err := rt.AdmitFor(ctx, 7); err != nil {
		t.Fatalf("admit after clear returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected admit after clear to pass immediately, waited %v", elapsed)
	}
}

func TestRecipientThrottleContextCancellation(t *testing.T) {
	t.Parallel()

	rt := throttle.NewRecipientThrottle(500 * time.Millisecond)

	if err := rt.AdmitFor(context.Background(), 9); err != nil {
		t.Fatalf("first admit returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rt.AdmitFor(ctx, 9)
	if err == nil {
		t.Fatal("expected admit to fail when the context expires during the wait")
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("expected admit to return promptly on cancellation, took %v", elapsed)
	}
}

func TestRecipientThrottleZeroDelay(t *testing.T) {
	t.Parallel()

	rt := throttle.NewRecipientThrottle(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := rt.AdmitFor(ctx, 3); err != nil {
			t.Fatalf("admit %d returned error: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected zero-delay throttle to pass immediately, took %v", elapsed)
	}
}
