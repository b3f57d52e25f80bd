// Package history keeps an audit log of probe runs in SQLite.
//
// The log is write-mostly: probes append to it through a Recorder and
// operators read it back with the history command. It is never consulted to
// answer a probe, so two identical checks always run in full.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Kind names the probe operation a record came from.
type Kind string

const (
	KindManifest Kind = "manifest"
	KindCompile  Kind = "compile"
)

// Record is one completed probe call.
type Record struct {
	ID             string
	Kind           Kind
	Path           string
	ManifestPath   string
	Success        bool
	Message        string
	ErrorCode      string
	ExitCode       *int
	TimeoutSeconds int
	DurationMS     int64
	StartedAt      time.Time
}

// Filter narrows List results.
type Filter struct {
	Path  string
	Kind  Kind
	Limit int
}

// SQLiteStoreConfig configures the SQLite history store.
type SQLiteStoreConfig struct {
	// DSN is the database path or "file:" URI.
	DSN string
}

// SQLiteStore persists probe records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultPath returns ~/.ghcid-mcp/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: resolve user home: %w", err)
	}
	return filepath.Join(home, ".ghcid-mcp", "history.db"), nil
}

// NewSQLiteStore opens (or creates) a SQLite history store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history: dsn is required")
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append stores a record, assigning an ID and start time when missing.
func (s *SQLiteStore) Append(ctx context.Context, record Record) (Record, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now()
	}
	record.StartedAt = record.StartedAt.UTC()

	var exitCode sql.NullInt64
	if record.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*record.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO probe_runs (id, kind, path, manifest_path, success, message, error_code, exit_code, timeout_seconds, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.Kind),
		record.Path,
		record.ManifestPath,
		record.Success,
		record.Message,
		record.ErrorCode,
		exitCode,
		record.TimeoutSeconds,
		record.DurationMS,
		record.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return Record{}, fmt.Errorf("history: append: %w", err)
	}
	return record, nil
}

// List returns records newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `SELECT id, kind, path, manifest_path, success, message, error_code, exit_code, timeout_seconds, duration_ms, started_at
	           FROM probe_runs`
	var (
		where []string
		args  []any
	)
	if path := strings.TrimSpace(filter.Path); path != "" {
		where = append(where, "path = ?")
		args = append(args, path)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Prune deletes records that started before cutoff and returns how many.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM probe_runs WHERE started_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: prune rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			r        Record
			kind     string
			exitCode sql.NullInt64
			started  string
		)
		if err := rows.Scan(
			&r.ID,
			&kind,
			&r.Path,
			&r.ManifestPath,
			&r.Success,
			&r.Message,
			&r.ErrorCode,
			&exitCode,
			&r.TimeoutSeconds,
			&r.DurationMS,
			&started,
		); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		r.Kind = Kind(kind)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			r.ExitCode = &code
		}
		t, err := time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("history: parse time %q: %w", started, err)
		}
		r.StartedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}
