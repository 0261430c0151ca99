package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/abrantes/pkg/metrics"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Default SQLite configuration.
const (
	defaultBusyTimeout = 5 * time.Second
	defaultJournalMode = "WAL"
)

const (
	schemaSQL = `
	CREATE TABLE IF NOT EXISTS kv(
	  key        TEXT    PRIMARY KEY,
	  value      TEXT    NOT NULL CHECK (json_valid(value)),
	  updated_at INTEGER NOT NULL
	);`
	getSQL    = `SELECT value FROM kv WHERE key = ?`
	setSQL    = `INSERT INTO kv(key, value, updated_at) VALUES(?, json(?), ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteSQL = `DELETE FROM kv WHERE key = ?`
	keysSQL   = `SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`
)

// SQLiteStore is a Store persisted to a SQLite database. Values must be JSON
// documents; the table rejects anything else.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	journalMode string
	now         func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout: defaultBusyTimeout,
		journalMode: defaultJournalMode,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)",
		path, s.busyTimeout.Milliseconds(), s.journalMode)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writes serialised and lets ":memory:" behave as one database.
	db.SetMaxOpenConns(1)

	if err := s.init(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// newSQLiteStore wraps an already opened handle.
func newSQLiteStore(ctx context.Context, db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(ctx, db); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	s.db = db
	return nil
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer observe("get", start)

	var value string
	err := s.db.QueryRowContext(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordStorageError("get")
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return []byte(value), nil
}

// Set upserts value under key.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	defer observe("set", start)

	if key == "" {
		return ErrEmptyKey
	}
	if _, err := s.db.ExecContext(ctx, setSQL, key, string(value), s.now().UnixMilli()); err != nil {
		metrics.RecordStorageError("set")
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer observe("delete", start)

	if _, err := s.db.ExecContext(ctx, deleteSQL, key); err != nil {
		metrics.RecordStorageError("delete")
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys returns the sorted keys starting with prefix.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	defer observe("keys", start)

	rows, err := s.db.QueryContext(ctx, keysSQL, len(prefix), prefix)
	if err != nil {
		metrics.RecordStorageError("keys")
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			metrics.RecordStorageError("keys")
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStorageError("keys")
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
