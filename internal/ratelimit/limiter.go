// Package ratelimit tracks the request quota of one upstream API and blocks
// callers when it runs out.
//
// A Limiter decrements its counter optimistically on every Acquire. Once the
// counter reaches the low-water mark it asks a Prober for the provider's own
// remaining-request count and adopts that value, so local bookkeeping never
// drifts far from the authoritative one. ReportExhausted suspends every caller
// until the provider's Retry-After plus a safety margin has passed.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tmdbsync/internal/clock"
	"tmdbsync/internal/logging"
)

// Config sizes the quota window.
type Config struct {
	// Limit is the number of requests allowed per window.
	Limit int
	// LowWater triggers a resync probe when remaining quota falls to it.
	LowWater int
	// Window is the length of the rolling quota window.
	Window time.Duration
	// SuspendMargin is added to Retry-After when the quota is reported exhausted.
	SuspendMargin time.Duration
}

// QuotaState is the shared quota bookkeeping. It is only mutated under the
// owning Limiter's lock.
type QuotaState struct {
	Limit          int
	Remaining      int
	ResetAt        time.Time
	SuspendedUntil time.Time
}

// ProbeResult is what the provider reported about the quota.
type ProbeResult struct {
	// Remaining is the authoritative remaining count; valid when Known is true.
	Remaining int
	Known     bool
	// Throttled is set when the probe itself was rejected with 429.
	Throttled  bool
	RetryAfter time.Duration
	// ResetAt is the provider's window reset, if it reports one.
	ResetAt time.Time
}

// Prober asks the upstream for its view of the quota. Implementations must
// not call Acquire on the limiter that owns them.
type Prober interface {
	Probe(ctx context.Context) (ProbeResult, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) (ProbeResult, error)

func (f ProberFunc) Probe(ctx context.Context) (ProbeResult, error) { return f(ctx) }

// Limiter guards one upstream's QuotaState.
type Limiter struct {
	cfg    Config
	clock  clock.Clock
	prober Prober
	logger *slog.Logger

	mu     sync.Mutex
	state  QuotaState
	synced bool // a probe already ran in the current window
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithProber enables resync probing at the low-water mark.
func WithProber(p Prober) Option {
	return func(l *Limiter) { l.prober = p }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logging.NewComponentLogger(logger, "ratelimit") }
}

// New constructs a Limiter with a full quota.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.LowWater < 0 || cfg.LowWater >= cfg.Limit {
		cfg.LowWater = 0
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	l := &Limiter{
		cfg:    cfg,
		clock:  clock.System(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.state = QuotaState{Limit: cfg.Limit, Remaining: cfg.Limit}
	return l
}

// Acquire blocks until one unit of quota is available and consumes it.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	for {
		if err := ctx.Err(); err != nil {
			l.mu.Unlock()
			return err
		}
		now := l.clock.Now()

		if until := l.state.SuspendedUntil; !until.IsZero() {
			if now.Before(until) {
				if err := l.waitLocked(ctx, until.Sub(now)); err != nil {
					return err
				}
				continue
			}
			l.logger.Info("quota suspension lifted", logging.String(logging.FieldEventType, "quota_resumed"))
			l.resetLocked(now)
		}

		if l.state.ResetAt.IsZero() {
			l.state.ResetAt = now.Add(l.cfg.Window)
		} else if !now.Before(l.state.ResetAt) {
			l.resetLocked(now)
		}

		if l.state.Remaining <= l.cfg.LowWater && l.prober != nil && !l.synced {
			if retry := l.resyncLocked(ctx, now); retry {
				continue
			}
		}

		if l.state.Remaining > 0 {
			l.state.Remaining--
			l.mu.Unlock()
			return nil
		}

		if err := l.waitLocked(ctx, l.state.ResetAt.Sub(now)); err != nil {
			return err
		}
	}
}

// resyncLocked probes the provider and adopts its remaining count. It returns
// true when the caller should re-evaluate state (the probe caused a suspension).
func (l *Limiter) resyncLocked(ctx context.Context, now time.Time) bool {
	l.synced = true
	res, err := l.prober.Probe(ctx)
	if err != nil {
		logging.WarnWithContext(l.logger, "quota resync probe failed; using local count", "quota_probe_failed",
			logging.Error(err),
			logging.Int("remaining", l.state.Remaining),
			logging.String(logging.FieldImpact, "requests continue on local bookkeeping"),
			logging.String(logging.FieldErrorHint, "check TMDB connectivity and api key"),
		)
		return false
	}
	if res.Throttled {
		l.suspendLocked(now, res.RetryAfter)
		return true
	}
	if res.Known {
		remaining := min(max(res.Remaining, 0), l.cfg.Limit)
		l.logger.Debug("quota resynced",
			logging.Int("local", l.state.Remaining),
			logging.Int("authoritative", remaining),
		)
		l.state.Remaining = remaining
	}
	if !res.ResetAt.IsZero() && res.ResetAt.After(now) {
		l.state.ResetAt = res.ResetAt
	}
	return false
}

// waitLocked releases the lock for d, then reacquires it. On error the lock is
// left released.
func (l *Limiter) waitLocked(ctx context.Context, d time.Duration) error {
	l.mu.Unlock()
	if err := l.clock.Sleep(ctx, d); err != nil {
		return err
	}
	l.mu.Lock()
	return nil
}

func (l *Limiter) resetLocked(now time.Time) {
	l.state.Remaining = l.cfg.Limit
	l.state.ResetAt = now.Add(l.cfg.Window)
	l.state.SuspendedUntil = time.Time{}
	l.synced = false
}

// ReportExhausted suspends all acquirers for retryAfter plus the safety margin,
// after which the quota is full again.
func (l *Limiter) ReportExhausted(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendLocked(l.clock.Now(), retryAfter)
}

func (l *Limiter) suspendLocked(now time.Time, retryAfter time.Duration) {
	if retryAfter < 0 {
		retryAfter = 0
	}
	until := now.Add(retryAfter + l.cfg.SuspendMargin)
	if until.After(l.state.SuspendedUntil) {
		l.state.SuspendedUntil = until
	}
	l.state.Remaining = 0
	logging.WarnWithContext(l.logger, "upstream quota exhausted; suspending requests", "quota_exhausted",
		logging.Duration("retry_after", retryAfter),
		logging.Duration("suspend_for", until.Sub(now)),
		logging.String(logging.FieldImpact, "all workers pause until the quota window resets"),
		logging.String(logging.FieldErrorHint, "lower batch.workers or rate_limit.window_limit if this repeats"),
	)
}

// Observe folds a remaining-request header seen on an ordinary response into
// the counter. Only lower values are adopted: responses can arrive out of
// order, so a higher value may already be stale.
func (l *Limiter) Observe(remaining int) {
	if remaining < 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if remaining < l.state.Remaining {
		l.state.Remaining = remaining
	}
}

// State returns a snapshot of the quota bookkeeping.
func (l *Limiter) State() QuotaState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
