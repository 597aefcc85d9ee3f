package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

var ErrNotFound = errors.New("store: not found")

func (db *DB) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO mail_accounts (id, user_id, provider, email, sync_status, history_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id, provider, email) DO NOTHING`,
		a.ID, a.UserID, a.Provider, a.Email, a.SyncStatus, a.HistoryID)
	if err != nil {
		return fmt.Errorf("postgres: create account: %w", err)
	}
	return nil
}

func (db *DB) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, provider, email, sync_status, sync_started_at, sync_completed_at, sync_error, history_id, created_at, updated_at
		FROM mail_accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

func (db *DB) GetAccountByEmail(ctx context.Context, userID, provider, email string) (*models.Account, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, provider, email, sync_status, sync_started_at, sync_completed_at, sync_error, history_id, created_at, updated_at
		FROM mail_accounts WHERE user_id = $1 AND provider = $2 AND email = $3`, userID, provider, email)
	return scanAccount(row)
}

func (db *DB) ListAccountsByStatus(ctx context.Context, status models.SyncStatus) ([]*models.Account, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, provider, email, sync_status, sync_started_at, sync_completed_at, sync_error, history_id, created_at, updated_at
		FROM mail_accounts WHERE sync_status = $1`, status)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) UpdateAccountSyncState(ctx context.Context, accountID string, status models.SyncStatus, historyID *int64, syncErr *string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE mail_accounts SET
			sync_status = $2,
			history_id = COALESCE($3, history_id),
			sync_error = $4,
			sync_started_at = CASE WHEN $2 = 'syncing' AND sync_started_at IS NULL THEN now() ELSE sync_started_at END,
			sync_completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE sync_completed_at END,
			updated_at = now()
		WHERE id = $1`, accountID, status, historyID, syncErr)
	if err != nil {
		return fmt.Errorf("postgres: update account sync state: %w", err)
	}
	return nil
}

func (db *DB) SetHistoryID(ctx context.Context, accountID string, newHistoryID int64) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE mail_accounts SET history_id = $2, updated_at = now()
		WHERE id = $1 AND history_id < $2`, accountID, newHistoryID)
	if err != nil {
		return fmt.Errorf("postgres: set history id: %w", err)
	}
	return nil
}

func (db *DB) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM mail_accounts WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("postgres: delete account: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.Email, &a.SyncStatus,
		&a.SyncStartedAt, &a.SyncCompletedAt, &a.SyncError, &a.HistoryID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan account: %w", err)
	}
	return &a, nil
}
