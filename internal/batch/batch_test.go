package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"tmdbsync/internal/batch"
	"tmdbsync/internal/services"
)

func TestRunIsolatesFailures(t *testing.T) {
	for _, workers := range []int{1, 4, 40} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			items := make([]int, 10)
			for i := range items {
				items[i] = i + 1
			}
			report := batch.Run(context.Background(), items, func(_ context.Context, n int) (int, error) {
				if n == 3 {
					return 0, services.Wrap(services.ErrUpstream, "test", "item", "boom", nil)
				}
				return n * 10, nil
			}, batch.Options{Workers: workers})

			c := report.Counts()
			if c.Succeeded != 9 || c.Failed != 1 || c.Skipped != 0 || c.Total != 10 {
				t.Fatalf("unexpected counts %+v", c)
			}
			failed := report.Failed[0]
			if failed.Item != 3 || failed.Index != 2 || failed.Kind != services.KindUpstream {
				t.Fatalf("unexpected failure %+v", failed)
			}
			got := append([]int(nil), report.Succeeded...)
			sort.Ints(got)
			if got[0] != 10 || got[8] != 100 {
				t.Fatalf("unexpected results %v", got)
			}
		})
	}
}

func TestRunSeparatesSkips(t *testing.T) {
	report := batch.Run(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, s string) (string, error) {
		switch s {
		case "a":
			return "", services.Wrap(services.ErrNotFound, "test", "resolve", "missing", nil)
		case "b":
			return "", services.Wrap(services.ErrInsufficientData, "test", "detail", "thin", nil)
		}
		return s, nil
	}, batch.Options{Workers: 2})

	c := report.Counts()
	if c.Skipped != 2 || c.Succeeded != 1 || c.Failed != 0 {
		t.Fatalf("unexpected counts %+v", c)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	report := batch.Run(context.Background(), []int{1, 2}, func(_ context.Context, n int) (int, error) {
		if n == 1 {
			panic("kaboom")
		}
		return n, nil
	}, batch.Options{Workers: 2})

	if len(report.Failed) != 1 || len(report.Succeeded) != 1 {
		t.Fatalf("unexpected report %+v", report.Counts())
	}
	if !strings.Contains(report.Failed[0].Err.Error(), "kaboom") {
		t.Fatalf("panic value lost: %v", report.Failed[0].Err)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	items := make([]int, 12)
	go func() {
		for range items {
			release <- struct{}{}
		}
	}()
	batch.Run(context.Background(), items, func(_ context.Context, _ int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return 0, nil
	}, batch.Options{Workers: 3})

	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent items, saw %d", peak.Load())
	}
}

func TestRunAfterCancellationMarksItemsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	report := batch.Run(ctx, []int{1, 2, 3}, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, nil
	}, batch.Options{Workers: 2})

	if calls.Load() != 0 {
		t.Fatalf("no item should run after cancellation, got %d", calls.Load())
	}
	if len(report.Failed) != 3 || report.Failed[0].Kind != services.KindCanceled {
		t.Fatalf("unexpected report %+v", report.Failed)
	}
	if !errors.Is(report.Failed[0].Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", report.Failed[0].Err)
	}
}

func TestProgressReportsEveryItem(t *testing.T) {
	var last atomic.Int32
	batch.Run(context.Background(), []int{1, 2, 3, 4}, func(_ context.Context, n int) (int, error) {
		return n, nil
	}, batch.Options{Workers: 2, Progress: func(done, total int) {
		if total != 4 {
			t.Errorf("unexpected total %d", total)
		}
		last.Store(int32(done))
	}})
	if last.Load() != 4 {
		t.Fatalf("expected final progress 4, got %d", last.Load())
	}
}
