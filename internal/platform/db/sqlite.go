package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens a SQLite database at path in WAL mode.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open sqlite: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("platform/db: enable WAL mode: %w", err)
	}

	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("platform/db: ping sqlite: %w", err)
	}
	return conn, nil
}

const (
	sqliteCreateKV = `CREATE TABLE IF NOT EXISTS kv_store (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	sqliteGetKV = `SELECT value FROM kv_store WHERE key = ?`
	sqliteSetKV = `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)

// SQLiteStorage is a key-value store on a local SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage ensures the kv_store table exists and returns the storage.
func NewSQLiteStorage(ctx context.Context, conn *sql.DB) (*SQLiteStorage, error) {
	if _, err := conn.ExecContext(ctx, sqliteCreateKV); err != nil {
		return nil, fmt.Errorf("platform/db: create kv_store: %w", err)
	}
	return &SQLiteStorage{db: conn}, nil
}

// GetItem reads key; ok is false when it does not exist.
func (s *SQLiteStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, sqliteGetKV, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("platform/db: get %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem upserts value under key.
func (s *SQLiteStorage) SetItem(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, sqliteSetKV, key, value); err != nil {
		return fmt.Errorf("platform/db: set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
