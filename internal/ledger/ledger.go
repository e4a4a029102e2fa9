package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

// Ledger is the in-memory view of a Store. It is safe for concurrent use.
type Ledger struct {
	store  Store
	kind   media.Kind
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	columns []string
	index   map[string]Entry
	pending map[string]Entry
	// added are destination columns to write even when nothing was delivered
	// to them.
	added []string
}

// New wraps store. Nothing is read until the first lookup.
func New(store Store, kind media.Kind, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		kind:    kind,
		logger:  logging.NewComponentLogger(logger, "ledger"),
		index:   make(map[string]Entry),
		pending: make(map[string]Entry),
	}
}

// Kind returns the media kind the ledger tracks.
func (l *Ledger) Kind() media.Kind { return l.kind }

// FilterUnseen returns the items that are not yet delivered to every one of
// destinations, preserving input order. A destination the ledger has never
// seen counts as not delivered. With no destinations nothing is owed.
func FilterUnseen[T media.Keyed](ctx context.Context, l *Ledger, items []T, destinations []string) ([]T, error) {
	if len(destinations) == 0 || len(items) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return nil, err
	}

	unseen := make([]T, 0, len(items))
	for _, item := range items {
		if !l.coveredLocked(item.Key(), destinations) {
			unseen = append(unseen, item)
		}
	}
	l.logger.Debug("ledger filter applied",
		logging.String(logging.FieldEventType, "ledger_filter"),
		logging.Int("requested", len(items)),
		logging.Int("unseen", len(unseen)),
		logging.Strings("destinations", destinations))
	return unseen, nil
}

// Delivered reports whether key is marked delivered to dest, including
// deliveries recorded but not yet flushed.
func (l *Ledger) Delivered(ctx context.Context, key media.ItemKey, dest string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return false, err
	}
	return l.coveredLocked(key, []string{dest}), nil
}

// Record marks keys as delivered to destination. Nothing is persisted until Flush.
func (l *Ledger) Record(destination string, keys ...media.ItemKey) {
	if destination == "" || len(keys) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		if key.IsZero() {
			continue
		}
		id := key.ID()
		entry, ok := l.pending[id]
		if !ok {
			entry = Entry{Key: key, Delivered: make(map[string]bool)}
		}
		entry.Delivered[destination] = true
		l.pending[id] = entry
	}
}

// AddDestinations registers destination columns for the next Flush, so a
// destination whose deliveries all failed still gets a column of False.
func (l *Ledger) AddDestinations(dests ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, dest := range dests {
		if dest != "" && !slices.Contains(l.added, dest) {
			l.added = append(l.added, dest)
		}
	}
}

// Pending returns how many items have unflushed deliveries.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Flush merges recorded deliveries into the store and rewrites it. The ledger
// mutex is held for the whole merge and rewrite. On failure the recorded
// deliveries are kept so Flush can be retried.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 && !l.newColumnsLocked() {
		return nil
	}

	var merged *Table
	err := l.store.Update(ctx, func(t *Table) error {
		if len(t.IndexColumns) == 0 {
			t.IndexColumns = l.kind.IndexColumns()
		}
		for _, dest := range l.added {
			t.AddDestination(dest)
		}
		positions := make(map[string]int, len(t.Entries))
		for i, entry := range t.Entries {
			positions[entry.Key.ID()] = i
		}
		for _, id := range sortedIDs(l.pending) {
			pending := l.pending[id]
			idx, ok := positions[id]
			if !ok {
				t.Entries = append(t.Entries, Entry{Key: pending.Key, Delivered: make(map[string]bool)})
				idx = len(t.Entries) - 1
				positions[id] = idx
			}
			if t.Entries[idx].Delivered == nil {
				t.Entries[idx].Delivered = make(map[string]bool)
			}
			for dest := range pending.Delivered {
				t.AddDestination(dest)
				t.Entries[idx].Delivered[dest] = true
			}
		}
		t.Normalize()
		merged = t
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrLedgerIO, "ledger", "flush",
			fmt.Sprintf("persist %d %s entries", len(l.pending), l.kind), err)
	}

	flushed := len(l.pending)
	l.adoptLocked(merged)
	l.pending = make(map[string]Entry)
	l.added = nil
	l.logger.Info("ledger flushed",
		logging.String(logging.FieldEventType, "ledger_flushed"),
		logging.Int("entries", flushed),
		logging.Int("total", len(l.index)))
	return nil
}

// Entries returns a snapshot of the persisted rows plus unflushed deliveries,
// with the destination columns in display order.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return nil, nil, err
	}
	table := NewTable(l.kind.IndexColumns())
	table.Destinations = slices.Clone(l.columns)
	for _, entry := range l.index {
		table.Entries = append(table.Entries, cloneEntry(entry))
	}
	for _, entry := range l.pending {
		table.Entries = append(table.Entries, cloneEntry(entry))
	}
	table.Normalize()
	return table.Entries, table.Destinations, nil
}

func (l *Ledger) newColumnsLocked() bool {
	for _, dest := range l.added {
		if !l.loaded || !slices.Contains(l.columns, dest) {
			return true
		}
	}
	return false
}

func (l *Ledger) loadLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	table, err := l.store.Load(ctx)
	if err != nil {
		return services.Wrap(services.ErrLedgerIO, "ledger", "load", string(l.kind)+" ledger", err)
	}
	table.Normalize()
	l.adoptLocked(table)
	l.loaded = true
	l.logger.Debug("ledger loaded",
		logging.Int("entries", len(l.index)),
		logging.Strings("destinations", l.columns))
	return nil
}

func (l *Ledger) adoptLocked(t *Table) {
	l.columns = slices.Clone(t.Destinations)
	l.index = make(map[string]Entry, len(t.Entries))
	for _, entry := range t.Entries {
		l.index[entry.Key.ID()] = entry
	}
	l.loaded = true
}

func (l *Ledger) coveredLocked(key media.ItemKey, destinations []string) bool {
	id := key.ID()
	stored, hasStored := l.index[id]
	pending, hasPending := l.pending[id]
	for _, dest := range destinations {
		if hasPending && pending.Delivered[dest] {
			continue
		}
		if hasStored && stored.Delivered[dest] {
			continue
		}
		return false
	}
	return true
}

func cloneEntry(e Entry) Entry {
	delivered := make(map[string]bool, len(e.Delivered))
	for k, v := range e.Delivered {
		delivered[k] = v
	}
	return Entry{Key: e.Key, Delivered: delivered}
}

func sortedIDs(m map[string]Entry) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
