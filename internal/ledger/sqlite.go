package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "modernc.org/sqlite"

	"tmdbsync/internal/media"
)

//go:embed schema.sql
var schemaSQL string

const metaIndexColumns = "index_columns"

// SQLiteStore keeps the ledger in a SQLite database. Transactions begin
// IMMEDIATE (_txlock in the DSN), so an Update takes the write lock before it
// reads and concurrent processes queue on busy_timeout instead of failing
// with SQLITE_BUSY on lock upgrade.
type SQLiteStore struct {
	db           *sql.DB
	path         string
	indexColumns []string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string, indexColumns []string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path, indexColumns: slices.Clone(indexColumns)}, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_txlock=immediate"
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads every row.
func (s *SQLiteStore) Load(ctx context.Context) (*Table, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return s.readTx(ctx, tx)
}

// Update replaces all rows with the result of fn in a single transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(*Table) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	table, err := s.readTx(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(table); err != nil {
		return err
	}
	table.Normalize()
	if err := s.replaceTx(ctx, tx, table); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger update: %w", err)
	}
	return nil
}

func (s *SQLiteStore) readTx(ctx context.Context, tx *sql.Tx) (*Table, error) {
	table := NewTable(s.indexColumns)

	var rawColumns string
	err := tx.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE name = ?`, metaIndexColumns).Scan(&rawColumns)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("read ledger metadata: %w", err)
	default:
		if stored := strings.Split(rawColumns, ","); !slices.Equal(stored, s.indexColumns) {
			return nil, fmt.Errorf("ledger index columns %v do not match %v", stored, s.indexColumns)
		}
	}

	destRows, err := tx.QueryContext(ctx, `SELECT destination FROM ledger_destinations ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query ledger destinations: %w", err)
	}
	for destRows.Next() {
		var dest string
		if err := destRows.Scan(&dest); err != nil {
			_ = destRows.Close()
			return nil, fmt.Errorf("scan ledger destination: %w", err)
		}
		table.AddDestination(dest)
	}
	if err := destRows.Close(); err != nil {
		return nil, err
	}

	itemRows, err := tx.QueryContext(ctx, `SELECT item_id, parts FROM ledger_items ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query ledger items: %w", err)
	}
	positions := make(map[string]int)
	for itemRows.Next() {
		var id, rawParts string
		if err := itemRows.Scan(&id, &rawParts); err != nil {
			_ = itemRows.Close()
			return nil, fmt.Errorf("scan ledger item: %w", err)
		}
		var parts []string
		if err := json.Unmarshal([]byte(rawParts), &parts); err != nil {
			_ = itemRows.Close()
			return nil, fmt.Errorf("decode ledger item %q: %w", id, err)
		}
		positions[id] = len(table.Entries)
		table.Entries = append(table.Entries, Entry{Key: media.NewItemKey(parts...), Delivered: make(map[string]bool)})
	}
	if err := itemRows.Close(); err != nil {
		return nil, err
	}

	deliveryRows, err := tx.QueryContext(ctx, `SELECT item_id, destination FROM ledger_deliveries`)
	if err != nil {
		return nil, fmt.Errorf("query ledger deliveries: %w", err)
	}
	defer deliveryRows.Close()
	for deliveryRows.Next() {
		var id, dest string
		if err := deliveryRows.Scan(&id, &dest); err != nil {
			return nil, fmt.Errorf("scan ledger delivery: %w", err)
		}
		if idx, ok := positions[id]; ok {
			table.Entries[idx].Delivered[dest] = true
		}
	}
	return table, deliveryRows.Err()
}

func (s *SQLiteStore) replaceTx(ctx context.Context, tx *sql.Tx, t *Table) error {
	for _, stmt := range []string{
		`DELETE FROM ledger_deliveries`,
		`DELETE FROM ledger_items`,
		`DELETE FROM ledger_destinations`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_meta (name, value) VALUES (?, ?)
         ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		metaIndexColumns, strings.Join(s.indexColumns, ",")); err != nil {
		return fmt.Errorf("write ledger metadata: %w", err)
	}
	for i, dest := range t.Destinations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_destinations (destination, position) VALUES (?, ?)`, dest, i); err != nil {
			return fmt.Errorf("insert ledger destination: %w", err)
		}
	}
	for i, entry := range t.Entries {
		parts, err := json.Marshal(entry.Key.Parts())
		if err != nil {
			return fmt.Errorf("encode ledger key: %w", err)
		}
		id := entry.Key.ID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_items (item_id, parts, position) VALUES (?, ?, ?)`, id, string(parts), i); err != nil {
			return fmt.Errorf("insert ledger item: %w", err)
		}
		for _, dest := range t.Destinations {
			if !entry.Delivered[dest] {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ledger_deliveries (item_id, destination) VALUES (?, ?)`, id, dest); err != nil {
				return fmt.Errorf("insert ledger delivery: %w", err)
			}
		}
	}
	return nil
}
