package strava

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a failed activity fetch is reattempted and
// how long to wait between attempts. The backoff is a function of the
// one-based attempt index so tests can verify the schedule directly.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// LinearBackoff returns attempt * base, the provider-friendly schedule the
// sync job uses by default: bounded, not exponential.
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// DefaultRetryPolicy retries a fetch three times total with one-second
// linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Second)}
}

// SleepFunc waits for d or until the context is done. The production
// implementation is ContextSleep; tests inject a recorder.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep blocks for d, returning early with the context error if the
// context is cancelled first.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
