package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

func (db *DB) SaveQueryCache(ctx context.Context, e *models.QueryCacheEntry) error {
	filterJSON, err := json.Marshal(e.Filter)
	if err != nil {
		return fmt.Errorf("sqlite: marshal query cache filter: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO ai_query_cache (query_id, account_id, filter_json, count, size_bytes)
		VALUES (?,?,?,?,?)`, e.QueryID, e.AccountID, string(filterJSON), e.Count, e.SizeBytes)
	if err != nil {
		return fmt.Errorf("sqlite: save query cache: %w", err)
	}
	return nil
}

func (db *DB) GetQueryCache(ctx context.Context, queryID string) (*models.QueryCacheEntry, error) {
	var e models.QueryCacheEntry
	var filterJSON, createdAt string
	err := db.conn.QueryRowContext(ctx, `
		SELECT query_id, account_id, filter_json, count, size_bytes, created_at FROM ai_query_cache WHERE query_id = ?`, queryID).
		Scan(&e.QueryID, &e.AccountID, &filterJSON, &e.Count, &e.SizeBytes, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get query cache: %w", err)
	}
	if err := json.Unmarshal([]byte(filterJSON), &e.Filter); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal query cache filter: %w", err)
	}
	if t, err := nullStringToTime(sql.NullString{String: createdAt, Valid: true}); err == nil && t != nil {
		e.CreatedAt = *t
	}
	return &e, nil
}
