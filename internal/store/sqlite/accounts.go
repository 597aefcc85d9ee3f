package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

var ErrNotFound = errors.New("store: not found")

func (db *DB) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO mail_accounts (id, user_id, provider, email, sync_status, history_id)
		VALUES (?,?,?,?,?,?)`, a.ID, a.UserID, a.Provider, a.Email, a.SyncStatus, a.HistoryID)
	if err != nil {
		return fmt.Errorf("sqlite: create account: %w", err)
	}
	return nil
}

const accountSelect = `SELECT id, user_id, provider, email, sync_status, sync_started_at, sync_completed_at, sync_error, history_id, created_at, updated_at FROM mail_accounts`

func (db *DB) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	row := db.conn.QueryRowContext(ctx, accountSelect+` WHERE id = ?`, accountID)
	return scanAccount(row)
}

func (db *DB) GetAccountByEmail(ctx context.Context, userID, provider, email string) (*models.Account, error) {
	row := db.conn.QueryRowContext(ctx, accountSelect+` WHERE user_id = ? AND provider = ? AND email = ?`, userID, provider, email)
	return scanAccount(row)
}

func (db *DB) ListAccountsByStatus(ctx context.Context, status models.SyncStatus) ([]*models.Account, error) {
	rows, err := db.conn.QueryContext(ctx, accountSelect+` WHERE sync_status = ?`, status)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list accounts: %w", err)
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		a, err := scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) UpdateAccountSyncState(ctx context.Context, accountID string, status models.SyncStatus, historyID *int64, syncErr *string) error {
	var hist any
	if historyID != nil {
		hist = *historyID
	}
	_, err := db.conn.ExecContext(ctx, `
		UPDATE mail_accounts SET
			sync_status = ?,
			history_id = COALESCE(?, history_id),
			sync_error = ?,
			sync_started_at = CASE WHEN ? = 'syncing' AND sync_started_at IS NULL THEN strftime('%Y-%m-%dT%H:%M:%fZ','now') ELSE sync_started_at END,
			sync_completed_at = CASE WHEN ? = 'completed' THEN strftime('%Y-%m-%dT%H:%M:%fZ','now') ELSE sync_completed_at END,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, status, hist, stringPtrToNull(syncErr), status, status, accountID)
	if err != nil {
		return fmt.Errorf("sqlite: update account sync state: %w", err)
	}
	return nil
}

func (db *DB) SetHistoryID(ctx context.Context, accountID string, newHistoryID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE mail_accounts SET history_id = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ? AND history_id < ?`, newHistoryID, accountID, newHistoryID)
	if err != nil {
		return fmt.Errorf("sqlite: set history id: %w", err)
	}
	return nil
}

func (db *DB) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM mail_accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("sqlite: delete account: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	return scanAccountRow(row)
}

func scanAccountRows(rows *sql.Rows) (*models.Account, error) {
	return scanAccountRow(rows)
}

func scanAccountRow(row rowScanner) (*models.Account, error) {
	var a models.Account
	var started, completed sql.NullString
	var syncErr sql.NullString
	var created, updated string
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.Email, &a.SyncStatus, &started, &completed, &syncErr, &a.HistoryID, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: scan account: %w", err)
	}
	a.SyncStartedAt, err = nullStringToTime(started)
	if err != nil {
		return nil, err
	}
	a.SyncCompletedAt, err = nullStringToTime(completed)
	if err != nil {
		return nil, err
	}
	a.SyncError = nullToStringPtr(syncErr)
	if t, err := nullStringToTime(sql.NullString{String: created, Valid: true}); err == nil && t != nil {
		a.CreatedAt = *t
	}
	if t, err := nullStringToTime(sql.NullString{String: updated, Valid: true}); err == nil && t != nil {
		a.UpdatedAt = *t
	}
	return &a, nil
}
