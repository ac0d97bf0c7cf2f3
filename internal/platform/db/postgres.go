package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// Querier is the subset of pgxpool.Pool used by PostgresStorage.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgCreateKV = `CREATE TABLE IF NOT EXISTS kv_store (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	pgGetKV = `SELECT value FROM kv_store WHERE key = $1`
	pgSetKV = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

// PostgresStorage is a key-value store on the kv_store table.
type PostgresStorage struct {
	q Querier
}

// NewPostgresStorage ensures the kv_store table exists and returns the storage.
func NewPostgresStorage(ctx context.Context, q Querier) (*PostgresStorage, error) {
	if _, err := q.Exec(ctx, pgCreateKV); err != nil {
		return nil, fmt.Errorf("platform/db: create kv_store: %w", err)
	}
	return &PostgresStorage{q: q}, nil
}

// GetItem reads key; ok is false when it does not exist.
func (s *PostgresStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	if err := s.q.QueryRow(ctx, pgGetKV, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("platform/db: get %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem upserts value under key.
func (s *PostgresStorage) SetItem(ctx context.Context, key, value string) error {
	if _, err := s.q.Exec(ctx, pgSetKV, key, value); err != nil {
		return fmt.Errorf("platform/db: set %s: %w", key, err)
	}
	return nil
}
