package telemetry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Retry pacing for transient provider failures. Waits double from
// backoffInitial up to backoffMax, and every wait is jittered so parallel
// fetches hitting the same throttle do not retry in lockstep.
const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
	jitterFraction    = 0.25

	// retryAttempts bounds how many times a transient provider failure is
	// retried before it surfaces to the engine.
	retryAttempts = 4
)

// backoff tracks the base wait between retries of a single operation.
// Not safe for concurrent use; withRetry keeps one per call.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the jittered wait before the coming attempt and doubles the
// base for the one after, capped at backoffMax.
func (b *backoff) next() time.Duration {
	spread := 1 + jitterFraction*(rand.Float64()*2-1) //nolint:gosec // retry pacing, not crypto
	wait := time.Duration(float64(b.current) * spread)

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return wait
}

func (b *backoff) reset() {
	b.current = backoffInitial
}

// withRetry runs call, retrying transient failures with backoff. Any other
// outcome (success, a non-transient failure, ctx expiry, attempts exhausted)
// is returned as-is so the caller sees the classified error.
func withRetry(ctx context.Context, op string, call func() error) error {
	bo := newBackoff()
	var err error
	for attempt := 1; ; attempt++ {
		err = call()
		if err == nil || !IsTransient(err) || attempt == retryAttempts {
			return err
		}
		wait := bo.next()
		slog.Debug("telemetry: transient failure, will retry",
			"op", op, "attempt", attempt, "retry_in", wait, "err", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}
