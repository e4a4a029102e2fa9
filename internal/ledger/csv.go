package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"tmdbsync/internal/media"
)

const lockRetryDelay = 100 * time.Millisecond

// CSVStore keeps the ledger as a comma-separated file: the index columns
// followed by one True/False column per destination. Writers in different
// processes are serialized by an advisory lock on path.lock.
type CSVStore struct {
	path         string
	indexColumns []string
	lock         *flock.Flock
}

// NewCSVStore returns a store for path whose rows are keyed by indexColumns.
func NewCSVStore(path string, indexColumns []string) *CSVStore {
	return &CSVStore{
		path:         path,
		indexColumns: slices.Clone(indexColumns),
		lock:         flock.New(path + ".lock"),
	}
}

// Path returns the ledger file location.
func (s *CSVStore) Path() string { return s.path }

// Load reads the file under a shared lock.
func (s *CSVStore) Load(ctx context.Context) (*Table, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	locked, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire ledger read lock: %w", err)
	}
	if !locked {
		return nil, errors.New("ledger read lock not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()
	return s.read()
}

// Update applies fn to the current file contents and atomically replaces the
// file, all under the exclusive lock.
func (s *CSVStore) Update(ctx context.Context, fn func(*Table) error) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !locked {
		return errors.New("ledger lock not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	table, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(table); err != nil {
		return err
	}
	return s.write(table)
}

func (s *CSVStore) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	return nil
}

func (s *CSVStore) read() (*Table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewTable(s.indexColumns), nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewTable(s.indexColumns), nil
	}
	return decodeCSV(bytes.NewReader(data), s.indexColumns)
}

func (s *CSVStore) write(t *Table) error {
	t.Normalize()
	var buf bytes.Buffer
	if err := encodeCSV(&buf, t); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func decodeCSV(r io.Reader, indexColumns []string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read ledger header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if len(header) < len(indexColumns) {
		return nil, fmt.Errorf("ledger header %v lacks index columns %v", header, indexColumns)
	}
	for i, col := range indexColumns {
		if !strings.EqualFold(header[i], col) {
			return nil, fmt.Errorf("ledger column %d is %q, want %q", i+1, header[i], col)
		}
	}

	table := NewTable(indexColumns)
	destinations := header[len(indexColumns):]
	for _, dest := range destinations {
		if dest != "" {
			table.AddDestination(dest)
		}
	}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read ledger line %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("ledger line %d has %d fields, want %d", line, len(record), len(header))
		}
		parts := record[:len(indexColumns)]
		if len(indexColumns) == 2 {
			parts[1] = normalizeYear(parts[1])
		}
		entry := Entry{Key: media.NewItemKey(parts...), Delivered: make(map[string]bool, len(destinations))}
		for i, dest := range destinations {
			if dest == "" {
				continue
			}
			entry.Delivered[dest] = parseBool(record[len(indexColumns)+i])
		}
		table.Entries = append(table.Entries, entry)
	}
	return table, nil
}

func encodeCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	header := append(slices.Clone(t.IndexColumns), t.Destinations...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for _, entry := range t.Entries {
		parts := entry.Key.Parts()
		row := make([]string, 0, len(header))
		for i := range t.IndexColumns {
			if i < len(parts) {
				row = append(row, parts[i])
			} else {
				row = append(row, "")
			}
		}
		for _, dest := range t.Destinations {
			row = append(row, formatBool(entry.Delivered[dest]))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "1.0":
		return true
	}
	return false
}

func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// normalizeYear accepts float-formatted years ("1999.0") written by other tools.
func normalizeYear(value string) string {
	value = strings.TrimSpace(value)
	if whole, ok := strings.CutSuffix(value, ".0"); ok {
		return whole
	}
	if strings.EqualFold(value, "nan") {
		return ""
	}
	return value
}
