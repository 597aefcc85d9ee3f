package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

func (db *DB) UpsertToken(ctx context.Context, t *models.OAuthToken) error {
	access, err := db.box.Seal(t.AccessToken)
	if err != nil {
		return fmt.Errorf("sqlite: seal access token: %w", err)
	}
	refresh, err := db.box.Seal(t.RefreshToken)
	if err != nil {
		return fmt.Errorf("sqlite: seal refresh token: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO oauth_tokens (account_id, access_token, refresh_token, scope, expires_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scope = excluded.scope,
			expires_at = excluded.expires_at`,
		t.AccountID, access, refresh, t.Scope, t.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: upsert token: %w", err)
	}
	return nil
}

func (db *DB) GetToken(ctx context.Context, accountID string) (*models.OAuthToken, error) {
	var t models.OAuthToken
	var access, refresh, expiresAt string
	row := db.conn.QueryRowContext(ctx, `
		SELECT account_id, access_token, refresh_token, scope, expires_at FROM oauth_tokens WHERE account_id = ?`, accountID)
	if err := row.Scan(&t.AccountID, &access, &refresh, &t.Scope, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get token: %w", err)
	}
	exp, err := nullStringToTime(sql.NullString{String: expiresAt, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse expires_at: %w", err)
	}
	t.ExpiresAt = *exp
	if t.AccessToken, err = db.box.Open(access); err != nil {
		return nil, fmt.Errorf("sqlite: open access token: %w", err)
	}
	if t.RefreshToken, err = db.box.Open(refresh); err != nil {
		return nil, fmt.Errorf("sqlite: open refresh token: %w", err)
	}
	return &t, nil
}
