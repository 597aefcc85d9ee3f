package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
)

func (db *DB) ClearEmails(ctx context.Context, accountID string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: clear emails begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM emails WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("postgres: clear emails: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM senders WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("postgres: clear senders: %w", err)
	}
	return tx.Commit(ctx)
}

// UpsertEmails runs in one transaction per batch for crash-atomicity, so
// a crash mid-sync leaves a prefix-consistent mirror.
func (db *DB) UpsertEmails(ctx context.Context, accountID string, records []*models.Email) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: upsert emails begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range records {
		e.AccountID = accountID
		e.DeriveFlagsAndCategory()
		labelsJSON, err := store.MarshalLabels(e.Labels)
		if err != nil {
			return fmt.Errorf("postgres: marshal labels: %w", err)
		}
		attJSON, err := store.MarshalAttachments(e.Attachments)
		if err != nil {
			return fmt.Errorf("postgres: marshal attachments: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO emails (message_id, account_id, thread_id, subject, snippet, from_email, from_name,
				labels, category, size_bytes, has_attachments, attachments,
				is_unread, is_starred, is_trash, is_spam, is_important, internal_date, synced_at, unsubscribe_link)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			ON CONFLICT (message_id, account_id) DO UPDATE SET
				thread_id = EXCLUDED.thread_id,
				subject = EXCLUDED.subject,
				snippet = EXCLUDED.snippet,
				from_email = EXCLUDED.from_email,
				from_name = EXCLUDED.from_name,
				labels = EXCLUDED.labels,
				category = EXCLUDED.category,
				size_bytes = EXCLUDED.size_bytes,
				has_attachments = EXCLUDED.has_attachments,
				attachments = EXCLUDED.attachments,
				is_unread = EXCLUDED.is_unread,
				is_starred = EXCLUDED.is_starred,
				is_trash = EXCLUDED.is_trash,
				is_spam = EXCLUDED.is_spam,
				is_important = EXCLUDED.is_important,
				internal_date = EXCLUDED.internal_date,
				synced_at = EXCLUDED.synced_at,
				unsubscribe_link = EXCLUDED.unsubscribe_link`,
			e.MessageID, e.AccountID, e.ThreadID, e.Subject, e.Snippet, e.FromEmail, e.FromName,
			labelsJSON, e.Category, e.SizeBytes, e.HasAttachments, nullableString(attJSON),
			e.IsUnread, e.IsStarred, e.IsTrash, e.IsSpam, e.IsImportant, e.InternalDate, e.SyncedAt, e.UnsubscribeLink)
		if err != nil {
			return fmt.Errorf("postgres: upsert email %s: %w", e.MessageID, err)
		}
	}
	return tx.Commit(ctx)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpdateLabels re-derives category and the five flags atomically so they
// never drift from Labels. It is a silent no-op if the row does not yet
// exist, since delta-sync history entries can race ahead of the
// corresponding messages.get fetch.
func (db *DB) UpdateLabels(ctx context.Context, accountID, messageID string, added, removed []string) error {
	var currentJSON string
	err := db.Pool.QueryRow(ctx, `SELECT labels FROM emails WHERE account_id = $1 AND message_id = $2`, accountID, messageID).Scan(&currentJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil // not found: caller treats as a no-op
		}
		return fmt.Errorf("postgres: update labels select: %w", err)
	}
	current, err := store.UnmarshalLabels(currentJSON)
	if err != nil {
		return fmt.Errorf("postgres: unmarshal labels: %w", err)
	}
	merged := models.MergeLabels(current, added, removed)
	e := models.Email{Labels: merged}
	e.DeriveFlagsAndCategory()
	mergedJSON, err := store.MarshalLabels(merged)
	if err != nil {
		return fmt.Errorf("postgres: marshal merged labels: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		UPDATE emails SET labels = $3, category = $4, is_unread = $5, is_starred = $6, is_trash = $7,
			is_spam = $8, is_important = $9, synced_at = $10
		WHERE account_id = $1 AND message_id = $2`,
		accountID, messageID, mergedJSON, e.Category, e.IsUnread, e.IsStarred, e.IsTrash, e.IsSpam, e.IsImportant,
		time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("postgres: update labels: %w", err)
	}
	return nil
}

// MarkTrashed mirrors the remote batch_modify(+TRASH, -INBOX) mutation
// locally, re-deriving labels/flags through the same path UpdateLabels
// uses so the two never drift apart.
func (db *DB) MarkTrashed(ctx context.Context, accountID string, ids []string) error {
	for _, id := range ids {
		if err := db.UpdateLabels(ctx, accountID, id, []string{"TRASH"}, []string{"INBOX"}); err != nil {
			return fmt.Errorf("postgres: mark trashed %s: %w", id, err)
		}
	}
	return nil
}

func (db *DB) DeleteByIDs(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Pool.Exec(ctx, `DELETE FROM emails WHERE account_id = $1 AND message_id = ANY($2)`, accountID, ids)
	if err != nil {
		return fmt.Errorf("postgres: delete by ids: %w", err)
	}
	return nil
}

// ArchiveAndDelete is archive-first, delete-last: a crash between the
// two steps leaves a row archived-but-not-deleted, which a retry safely
// repairs because the archive insert is on-conflict-do-nothing.
func (db *DB) ArchiveAndDelete(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: archive begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC().UnixMilli()
	_, err = tx.Exec(ctx, `
		INSERT INTO deleted_emails (message_id, account_id, thread_id, subject, snippet, from_email, from_name,
			labels, category, size_bytes, has_attachments, attachments, is_unread, is_starred, is_spam, is_important,
			internal_date, unsubscribe_link, deleted_at)
		SELECT message_id, account_id, thread_id, subject, snippet, from_email, from_name,
			labels, category, size_bytes, has_attachments, attachments, is_unread, is_starred, is_spam, is_important,
			internal_date, unsubscribe_link, $3
		FROM emails WHERE account_id = $1 AND message_id = ANY($2)
		ON CONFLICT (message_id, account_id) DO NOTHING`, accountID, ids, now)
	if err != nil {
		return fmt.Errorf("postgres: archive insert: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM emails WHERE account_id = $1 AND message_id = ANY($2)`, accountID, ids); err != nil {
		return fmt.Errorf("postgres: archive delete: %w", err)
	}
	return tx.Commit(ctx)
}

func (db *DB) BuildSenderAggregates(ctx context.Context, accountID string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: sender aggregates begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM senders WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("postgres: sender aggregates clear: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO senders (account_id, email, name, count, total_size)
		SELECT account_id, from_email,
			(array_agg(from_name ORDER BY (from_name <> '') DESC, cnt DESC))[1],
			SUM(cnt), SUM(size_bytes)
		FROM (
			SELECT account_id, from_email, from_name, COUNT(*) cnt, SUM(size_bytes) size_bytes
			FROM emails WHERE account_id = $1
			GROUP BY account_id, from_email, from_name
		) sub
		GROUP BY account_id, from_email`, accountID)
	if err != nil {
		return fmt.Errorf("postgres: sender aggregates insert: %w", err)
	}
	return tx.Commit(ctx)
}

func (db *DB) QueryEmails(ctx context.Context, accountID string, f models.Filter, p models.Page, s models.Sort) ([]*models.Email, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.PostgresBind)
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, p.Offset)
	q := fmt.Sprintf(`
		SELECT message_id, account_id, thread_id, subject, snippet, from_email, from_name,
			labels, category, size_bytes, has_attachments, attachments,
			is_unread, is_starred, is_trash, is_spam, is_important, internal_date, synced_at, unsubscribe_link
		FROM emails WHERE %s %s LIMIT $%d OFFSET $%d`, where, store.OrderByClause(s), len(args)-1, len(args))
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query emails: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

func (db *DB) CountFiltered(ctx context.Context, accountID string, f models.Filter) (int64, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.PostgresBind)
	var n int64
	err := db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM emails WHERE %s`, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count filtered: %w", err)
	}
	return n, nil
}

func (db *DB) SumFilteredSize(ctx context.Context, accountID string, f models.Filter) (int64, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.PostgresBind)
	var n int64
	err := db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(SUM(size_bytes),0) FROM emails WHERE %s`, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum filtered size: %w", err)
	}
	return n, nil
}

func (db *DB) IDsForFilter(ctx context.Context, accountID string, f models.Filter) ([]string, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.PostgresBind)
	rows, err := db.Pool.Query(ctx, fmt.Sprintf(`SELECT message_id FROM emails WHERE %s`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: ids for filter: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) IDsWithSizeForFilter(ctx context.Context, accountID string, f models.Filter) ([]string, int64, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.PostgresBind)
	rows, err := db.Pool.Query(ctx, fmt.Sprintf(`SELECT message_id, size_bytes FROM emails WHERE %s`, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: ids with size: %w", err)
	}
	defer rows.Close()
	var ids []string
	var total int64
	for rows.Next() {
		var id string
		var sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
		total += sz
	}
	return ids, total, rows.Err()
}

func (db *DB) SenderSuggestions(ctx context.Context, accountID, query string, limit int) ([]*models.Sender, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT account_id, email, name, count, total_size FROM senders
		WHERE account_id = $1 AND (LOWER(email) LIKE $2 OR LOWER(name) LIKE $2)
		ORDER BY count DESC LIMIT $3`, accountID, "%"+strings.ToLower(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: sender suggestions: %w", err)
	}
	defer rows.Close()
	return scanSenders(rows)
}

func (db *DB) SendersWithUnsubscribe(ctx context.Context, accountID string) ([]*models.Sender, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT s.account_id, s.email, s.name, s.count, s.total_size
		FROM senders s
		WHERE s.account_id = $1
		AND EXISTS (SELECT 1 FROM emails e WHERE e.account_id = s.account_id AND e.from_email = s.email AND e.unsubscribe_link IS NOT NULL)
		AND NOT EXISTS (SELECT 1 FROM unsubscribed_senders u WHERE u.account_id = s.account_id AND u.sender_email = s.email)
		ORDER BY s.count DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: senders with unsubscribe: %w", err)
	}
	defer rows.Close()
	return scanSenders(rows)
}

func (db *DB) DistinctCategories(ctx context.Context, accountID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT DISTINCT category FROM emails WHERE account_id = $1 AND category IS NOT NULL`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: distinct categories: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanEmails(rows pgx.Rows) ([]*models.Email, error) {
	var out []*models.Email
	for rows.Next() {
		var e models.Email
		var labelsJSON string
		var attJSON *string
		err := rows.Scan(&e.MessageID, &e.AccountID, &e.ThreadID, &e.Subject, &e.Snippet, &e.FromEmail, &e.FromName,
			&labelsJSON, &e.Category, &e.SizeBytes, &e.HasAttachments, &attJSON,
			&e.IsUnread, &e.IsStarred, &e.IsTrash, &e.IsSpam, &e.IsImportant, &e.InternalDate, &e.SyncedAt, &e.UnsubscribeLink)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan email: %w", err)
		}
		e.Labels, err = store.UnmarshalLabels(labelsJSON)
		if err != nil {
			return nil, err
		}
		if attJSON != nil {
			e.Attachments, err = store.UnmarshalAttachments(*attJSON)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanSenders(rows pgx.Rows) ([]*models.Sender, error) {
	var out []*models.Sender
	for rows.Next() {
		var s models.Sender
		if err := rows.Scan(&s.AccountID, &s.Email, &s.Name, &s.Count, &s.TotalSize); err != nil {
			return nil, fmt.Errorf("postgres: scan sender: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
