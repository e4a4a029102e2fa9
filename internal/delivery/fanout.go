package delivery

import (
	"context"
	"log/slog"
	"sync"

	"tmdbsync/internal/batch"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

// Sink is one delivery destination. Name doubles as its ledger column.
type Sink interface {
	Name() string
	// Deliver publishes one record. Errors match services.ErrDelivery.
	Deliver(ctx context.Context, record *media.Record) error
}

// Owed reports whether key still has to be delivered to dest.
type Owed func(dest string, key media.ItemKey) bool

// Failure is a record a destination could not accept.
type Failure struct {
	Destination string
	Key         media.ItemKey
	Kind        services.Kind
	Err         error
}

// Result collects what a Fanout delivered.
type Result struct {
	// Delivered maps a destination to the keys it accepted.
	Delivered map[string][]media.ItemKey
	Failures  []Failure
}

// DeliveredCount returns the number of keys delivered to dest.
func (r *Result) DeliveredCount(dest string) int {
	return len(r.Delivered[dest])
}

// Fanout posts records to several sinks at once.
type Fanout struct {
	sinks   []Sink
	workers int
	logger  *slog.Logger
}

// NewFanout returns a fanout over sinks with workers concurrent posts per sink.
func NewFanout(sinks []Sink, workers int, logger *slog.Logger) *Fanout {
	return &Fanout{
		sinks:   sinks,
		workers: workers,
		logger:  logging.NewComponentLogger(logger, "delivery"),
	}
}

// Sinks returns the configured destinations.
func (f *Fanout) Sinks() []Sink { return f.sinks }

// Deliver posts every owed record to every sink. A nil owed delivers
// everything. Sinks run concurrently; one failing destination does not stop
// the others.
func (f *Fanout) Deliver(ctx context.Context, records []*media.Record, owed Owed) *Result {
	result := &Result{Delivered: make(map[string][]media.ItemKey, len(f.sinks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, sink := range f.sinks {
		dest := sink.Name()
		pending := make([]*media.Record, 0, len(records))
		for _, record := range records {
			if owed == nil || owed(dest, record.Key()) {
				pending = append(pending, record)
			}
		}
		if len(pending) == 0 {
			f.logger.Info("nothing owed to destination", logging.Destination(dest))
			continue
		}

		wg.Add(1)
		go func(sink Sink, dest string, pending []*media.Record) {
			defer wg.Done()
			sinkCtx := services.WithDestination(ctx, dest)
			report := batch.Run(sinkCtx, pending, func(ctx context.Context, record *media.Record) (media.ItemKey, error) {
				itemCtx := services.WithItemKey(ctx, record.Key().String())
				if err := sink.Deliver(itemCtx, record); err != nil {
					return media.ItemKey{}, err
				}
				return record.Key(), nil
			}, batch.Options{Workers: f.workers, Logger: f.logger, Label: "deliver " + dest})

			mu.Lock()
			defer mu.Unlock()
			result.Delivered[dest] = append(result.Delivered[dest], report.Succeeded...)
			for _, outcome := range append(report.Failed, report.Skipped...) {
				result.Failures = append(result.Failures, Failure{
					Destination: dest,
					Key:         outcome.Item.Key(),
					Kind:        outcome.Kind,
					Err:         outcome.Err,
				})
			}
			f.logger.Info("destination delivery finished",
				logging.Destination(dest),
				logging.Int("delivered", len(report.Succeeded)),
				logging.Int("failed", len(report.Failed)+len(report.Skipped)))
		}(sink, dest, pending)
	}
	wg.Wait()
	return result
}
