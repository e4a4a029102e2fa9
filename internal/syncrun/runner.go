package syncrun

import (
	"context"
	"log/slog"

	"tmdbsync/internal/clock"
	"tmdbsync/internal/config"
	"tmdbsync/internal/delivery"
	"tmdbsync/internal/enrich"
	"tmdbsync/internal/fetch"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/notifications"
	"tmdbsync/internal/ratelimit"
	"tmdbsync/internal/services"
)

// FlushAction is a FlushDecider's answer.
type FlushAction int

const (
	FlushAbort FlushAction = iota
	FlushRetry
)

// FlushDecider is consulted when persisting the ledger fails. attempt counts
// from 1. Returning FlushAbort makes Run return the ledger error.
type FlushDecider func(ctx context.Context, err error, attempt int) FlushAction

// AbortOnFlushError never retries a failed flush.
func AbortOnFlushError(context.Context, error, int) FlushAction { return FlushAbort }

// ProgressFunc receives per-stage progress from the worker pools.
type ProgressFunc func(stage string, done, total int)

// Runner executes sync jobs against one configuration.
type Runner struct {
	cfg        *config.Config
	primary    enrich.Primary
	secondary  enrich.Secondary
	limiter    *ratelimit.Limiter
	sinks      []delivery.Sink
	assets     *delivery.AssetCache
	notifier   notifications.Service
	decider    FlushDecider
	progress   ProgressFunc
	doer       fetch.Doer
	clock      clock.Clock
	baseLogger *slog.Logger
	logger     *slog.Logger
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithDoer routes every outbound HTTP request through doer.
func WithDoer(doer fetch.Doer) Option {
	return func(r *Runner) { r.doer = doer }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the base logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.baseLogger = logger }
}

// WithNotifier overrides the ntfy service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithFlushDecider installs the ledger flush failure policy.
func WithFlushDecider(d FlushDecider) Option {
	return func(r *Runner) {
		if d != nil {
			r.decider = d
		}
	}
}

// WithProgress reports worker pool progress.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithSinks replaces the WordPress sinks built from config. Sink names must
// be the destination URLs used as ledger columns.
func WithSinks(sinks ...delivery.Sink) Option {
	return func(r *Runner) { r.sinks = sinks }
}

// New wires a Runner from cfg.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "syncrun", "new", "config required", nil)
	}
	r := &Runner{
		cfg:     cfg,
		clock:   clock.System(),
		decider: AbortOnFlushError,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.baseLogger == nil {
		r.baseLogger = logging.NewNop()
	}
	r.logger = logging.NewComponentLogger(r.baseLogger, "syncrun")
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	if err := r.wire(); err != nil {
		return nil, err
	}
	return r, nil
}

// Limiter exposes the shared TMDB quota state.
func (r *Runner) Limiter() *ratelimit.Limiter { return r.limiter }

// Sinks lists the configured delivery sinks.
func (r *Runner) Sinks() []delivery.Sink { return r.sinks }

func (r *Runner) reportProgress(stage string) func(done, total int) {
	if r.progress == nil {
		return nil
	}
	return func(done, total int) { r.progress(stage, done, total) }
}
