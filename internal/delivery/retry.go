package delivery

import (
	"context"
	"math/rand/v2"
	"time"

	"tmdbsync/internal/clock"
)

// RetryPolicy bounds a retried operation.
type RetryPolicy struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries everything.
	Retryable func(error) bool
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. Between attempts it sleeps a uniform jitter in
// [MinDelay, MaxDelay].
func Retry(ctx context.Context, clk clock.Clock, policy RetryPolicy, fn func(context.Context) error) error {
	if clk == nil {
		clk = clock.System()
	}
	attempts := max(policy.Attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := clk.Sleep(ctx, Jitter(policy.MinDelay, policy.MaxDelay)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// Jitter returns a uniformly distributed duration in [lo, hi].
func Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
