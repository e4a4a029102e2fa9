// Package batch runs a per-item function over a list of items with a fixed
// worker pool and collects every outcome.
//
// Items are independent: a failure or panic in one never cancels the others,
// and Run returns only after every item has been attempted. Errors are sorted
// into skips (services.IsSkip) and failures, each labelled with its
// services.Kind for the run report.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"tmdbsync/internal/logging"
	"tmdbsync/internal/services"
)

const defaultWorkers = 8

// Options configures Run.
type Options struct {
	Workers int
	Logger  *slog.Logger
	// Label names the batch in logs.
	Label string
	// Progress, when set, is called after each item completes.
	Progress func(done, total int)
}

// Outcome describes an item that did not succeed.
type Outcome[I any] struct {
	Index int
	Item  I
	Kind  services.Kind
	Err   error
}

// Report collects the result of a run.
type Report[I, O any] struct {
	// Succeeded is in completion order.
	Succeeded []O
	Skipped   []Outcome[I]
	Failed    []Outcome[I]
}

// Counts summarizes a report.
type Counts struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

func (r *Report[I, O]) Counts() Counts {
	return Counts{
		Total:     len(r.Succeeded) + len(r.Skipped) + len(r.Failed),
		Succeeded: len(r.Succeeded),
		Skipped:   len(r.Skipped),
		Failed:    len(r.Failed),
	}
}

type job[I any] struct {
	index int
	item  I
}

// Run applies fn to every item using opts.Workers goroutines.
func Run[I, O any](ctx context.Context, items []I, fn func(context.Context, I) (O, error), opts Options) *Report[I, O] {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	workers = min(workers, max(len(items), 1))
	logger := logging.NewComponentLogger(opts.Logger, "batch")
	if opts.Label != "" {
		logger = logger.With(logging.String("batch", opts.Label))
	}

	report := &Report[I, O]{}
	var (
		mu   sync.Mutex
		done int
	)
	record := func(j job[I], out O, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			report.Succeeded = append(report.Succeeded, out)
		case services.IsSkip(err):
			report.Skipped = append(report.Skipped, Outcome[I]{Index: j.index, Item: j.item, Kind: services.KindOf(err), Err: err})
		default:
			report.Failed = append(report.Failed, Outcome[I]{Index: j.index, Item: j.item, Kind: services.KindOf(err), Err: err})
		}
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(items))
		}
	}

	jobs := make(chan job[I])
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for j := range jobs {
				out, err := safeCall(ctx, fn, j.item)
				if err != nil {
					logger.Debug("item did not succeed",
						logging.Int("index", j.index),
						logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
						logging.Error(err),
					)
				}
				record(j, out, err)
			}
			return nil
		})
	}
	for i, item := range items {
		jobs <- job[I]{index: i, item: item}
	}
	close(jobs)
	_ = g.Wait()

	c := report.Counts()
	logger.Info("batch complete",
		logging.Int("total", c.Total),
		logging.Int("succeeded", c.Succeeded),
		logging.Int("skipped", c.Skipped),
		logging.Int("failed", c.Failed),
		logging.Int("workers", workers),
	)
	return report
}

// safeCall runs fn, converting a panic into an error and short-circuiting
// once ctx is done.
func safeCall[I, O any](ctx context.Context, fn func(context.Context, I) (O, error), item I) (out O, err error) {
	if err := ctx.Err(); err != nil {
		return out, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, item)
}
