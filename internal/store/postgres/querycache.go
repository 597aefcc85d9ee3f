package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

// SaveQueryCache and GetQueryCache back the agent confirmation handle:
// rows never auto-expire, and the stored filter is authoritative for
// what a later confirmation applies to.
func (db *DB) SaveQueryCache(ctx context.Context, e *models.QueryCacheEntry) error {
	filterJSON, err := json.Marshal(e.Filter)
	if err != nil {
		return fmt.Errorf("postgres: marshal query cache filter: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO ai_query_cache (query_id, account_id, filter_json, count, size_bytes)
		VALUES ($1,$2,$3,$4,$5)`, e.QueryID, e.AccountID, string(filterJSON), e.Count, e.SizeBytes)
	if err != nil {
		return fmt.Errorf("postgres: save query cache: %w", err)
	}
	return nil
}

func (db *DB) GetQueryCache(ctx context.Context, queryID string) (*models.QueryCacheEntry, error) {
	var e models.QueryCacheEntry
	var filterJSON string
	err := db.Pool.QueryRow(ctx, `
		SELECT query_id, account_id, filter_json, count, size_bytes, created_at FROM ai_query_cache WHERE query_id = $1`, queryID).
		Scan(&e.QueryID, &e.AccountID, &filterJSON, &e.Count, &e.SizeBytes, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get query cache: %w", err)
	}
	if err := json.Unmarshal([]byte(filterJSON), &e.Filter); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal query cache filter: %w", err)
	}
	return &e, nil
}
