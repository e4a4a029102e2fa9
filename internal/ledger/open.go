package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

// Backend names accepted by Open.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open builds the ledger for kind on the named backend. The returned close
// function releases the store and is never nil.
func Open(ctx context.Context, backend, path string, kind media.Kind, logger *slog.Logger) (*Ledger, func() error, error) {
	columns := kind.IndexColumns()
	switch backend {
	case "", BackendCSV:
		return New(NewCSVStore(path, columns), kind, logger), func() error { return nil }, nil
	case BackendSQLite:
		store, err := OpenSQLite(ctx, path, columns)
		if err != nil {
			return nil, func() error { return nil }, services.Wrap(services.ErrLedgerIO, "ledger", "open", path, err)
		}
		return New(store, kind, logger), store.Close, nil
	default:
		return nil, func() error { return nil }, services.Wrap(services.ErrConfiguration, "ledger", "open",
			fmt.Sprintf("unknown backend %q", backend), nil)
	}
}
