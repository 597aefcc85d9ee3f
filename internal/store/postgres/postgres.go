// Package postgres is the server-engine implementation of store.Store,
// backed by github.com/jackc/pgx/v5 (pgxpool).
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inboxorcist/inboxorcist/internal/crypto"
)

type DB struct {
	Pool *pgxpool.Pool
	box  *crypto.Box
}

// New connects to dsn, runs embedded migrations, and returns a DB ready
// to serve store.Store. box may be nil only in tests that never touch
// token storage.
func New(ctx context.Context, dsn string, box *crypto.Box) (*DB, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{Pool: pool, box: box}, nil
}

func (db *DB) Close() error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	return nil
}
