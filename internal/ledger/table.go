package ledger

import (
	"context"
	"slices"

	"tmdbsync/internal/media"
	"tmdbsync/internal/textutil"
)

// Store persists a ledger table.
type Store interface {
	// Load returns the persisted table. A missing store yields an empty table.
	Load(ctx context.Context) (*Table, error)
	// Update loads the table, applies fn and persists the result while
	// holding the store's exclusive lock.
	Update(ctx context.Context, fn func(*Table) error) error
}

// Entry is one ledger row.
type Entry struct {
	Key       media.ItemKey
	Delivered map[string]bool
}

// DeliveredTo reports whether the entry is marked delivered for dest.
func (e Entry) DeliveredTo(dest string) bool {
	return e.Delivered[dest]
}

// Table is the full persisted ledger: key columns, destination columns and rows.
type Table struct {
	IndexColumns []string
	Destinations []string
	Entries      []Entry
}

// NewTable returns an empty table with the given key columns.
func NewTable(indexColumns []string) *Table {
	return &Table{IndexColumns: slices.Clone(indexColumns)}
}

// AddDestination appends a destination column if it is not present yet.
func (t *Table) AddDestination(dest string) {
	if !slices.Contains(t.Destinations, dest) {
		t.Destinations = append(t.Destinations, dest)
	}
}

// Normalize merges rows with the same key (OR of their flags) and orders
// rows and destination columns naturally.
func (t *Table) Normalize() {
	merged := make([]Entry, 0, len(t.Entries))
	seen := make(map[string]int, len(t.Entries))
	for _, entry := range t.Entries {
		if entry.Key.IsZero() {
			continue
		}
		id := entry.Key.ID()
		if idx, ok := seen[id]; ok {
			for dest, ok := range entry.Delivered {
				if ok {
					merged[idx].Delivered[dest] = true
				}
			}
			continue
		}
		delivered := make(map[string]bool, len(entry.Delivered))
		for dest, ok := range entry.Delivered {
			delivered[dest] = ok
			t.AddDestination(dest)
		}
		seen[id] = len(merged)
		merged = append(merged, Entry{Key: entry.Key, Delivered: delivered})
	}
	slices.SortStableFunc(merged, func(a, b Entry) int {
		return compareKeys(a.Key, b.Key)
	})
	slices.SortStableFunc(t.Destinations, textutil.NaturalCompare)
	t.Entries = merged
}

func compareKeys(a, b media.ItemKey) int {
	ap, bp := a.Parts(), b.Parts()
	for i := 0; i < len(ap) && i < len(bp); i++ {
		if c := textutil.NaturalCompare(ap[i], bp[i]); c != 0 {
			return c
		}
	}
	return len(ap) - len(bp)
}
