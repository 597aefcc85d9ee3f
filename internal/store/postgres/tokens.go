package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

// UpsertToken encrypts access/refresh tokens before they ever reach the
// wire to Postgres; they are stored encrypted at rest.
func (db *DB) UpsertToken(ctx context.Context, t *models.OAuthToken) error {
	access, err := db.box.Seal(t.AccessToken)
	if err != nil {
		return fmt.Errorf("postgres: seal access token: %w", err)
	}
	refresh, err := db.box.Seal(t.RefreshToken)
	if err != nil {
		return fmt.Errorf("postgres: seal refresh token: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO oauth_tokens (account_id, access_token, refresh_token, scope, expires_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at`,
		t.AccountID, access, refresh, t.Scope, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert token: %w", err)
	}
	return nil
}

// GetToken is the only decryption point for OAuth secrets.
func (db *DB) GetToken(ctx context.Context, accountID string) (*models.OAuthToken, error) {
	var t models.OAuthToken
	var access, refresh string
	row := db.Pool.QueryRow(ctx, `
		SELECT account_id, access_token, refresh_token, scope, expires_at
		FROM oauth_tokens WHERE account_id = $1`, accountID)
	if err := row.Scan(&t.AccountID, &access, &refresh, &t.Scope, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get token: %w", err)
	}
	plainAccess, err := db.box.Open(access)
	if err != nil {
		return nil, fmt.Errorf("postgres: open access token: %w", err)
	}
	plainRefresh, err := db.box.Open(refresh)
	if err != nil {
		return nil, fmt.Errorf("postgres: open refresh token: %w", err)
	}
	t.AccessToken = plainAccess
	t.RefreshToken = plainRefresh
	return &t, nil
}
