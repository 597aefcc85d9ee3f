package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
)

func (db *DB) ClearEmails(ctx context.Context, accountID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: clear emails begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM emails WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("sqlite: clear emails: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM senders WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("sqlite: clear senders: %w", err)
	}
	return tx.Commit()
}

func (db *DB) UpsertEmails(ctx context.Context, accountID string, records []*models.Email) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upsert emails begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO emails (message_id, account_id, thread_id, subject, snippet, from_email, from_name,
			labels, category, size_bytes, has_attachments, attachments,
			is_unread, is_starred, is_trash, is_spam, is_important, internal_date, synced_at, unsubscribe_link)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (message_id, account_id) DO UPDATE SET
			thread_id=excluded.thread_id, subject=excluded.subject, snippet=excluded.snippet,
			from_email=excluded.from_email, from_name=excluded.from_name, labels=excluded.labels,
			category=excluded.category, size_bytes=excluded.size_bytes, has_attachments=excluded.has_attachments,
			attachments=excluded.attachments, is_unread=excluded.is_unread, is_starred=excluded.is_starred,
			is_trash=excluded.is_trash, is_spam=excluded.is_spam, is_important=excluded.is_important,
			internal_date=excluded.internal_date, synced_at=excluded.synced_at, unsubscribe_link=excluded.unsubscribe_link`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range records {
		e.AccountID = accountID
		e.DeriveFlagsAndCategory()
		labelsJSON, err := store.MarshalLabels(e.Labels)
		if err != nil {
			return fmt.Errorf("sqlite: marshal labels: %w", err)
		}
		attJSON, err := store.MarshalAttachments(e.Attachments)
		if err != nil {
			return fmt.Errorf("sqlite: marshal attachments: %w", err)
		}
		_, err = stmt.ExecContext(ctx, e.MessageID, e.AccountID, e.ThreadID, e.Subject, e.Snippet, e.FromEmail, e.FromName,
			labelsJSON, e.Category, e.SizeBytes, e.HasAttachments, nullableString(attJSON),
			boolToInt(e.IsUnread), boolToInt(e.IsStarred), boolToInt(e.IsTrash), boolToInt(e.IsSpam), boolToInt(e.IsImportant),
			e.InternalDate, e.SyncedAt, e.UnsubscribeLink)
		if err != nil {
			return fmt.Errorf("sqlite: upsert email %s: %w", e.MessageID, err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (db *DB) UpdateLabels(ctx context.Context, accountID, messageID string, added, removed []string) error {
	var currentJSON string
	err := db.conn.QueryRowContext(ctx, `SELECT labels FROM emails WHERE account_id = ? AND message_id = ?`, accountID, messageID).Scan(&currentJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("sqlite: update labels select: %w", err)
	}
	current, err := store.UnmarshalLabels(currentJSON)
	if err != nil {
		return fmt.Errorf("sqlite: unmarshal labels: %w", err)
	}
	merged := models.MergeLabels(current, added, removed)
	e := models.Email{Labels: merged}
	e.DeriveFlagsAndCategory()
	mergedJSON, err := store.MarshalLabels(merged)
	if err != nil {
		return fmt.Errorf("sqlite: marshal merged labels: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		UPDATE emails SET labels = ?, category = ?, is_unread = ?, is_starred = ?, is_trash = ?,
			is_spam = ?, is_important = ?, synced_at = ?
		WHERE account_id = ? AND message_id = ?`,
		mergedJSON, e.Category, boolToInt(e.IsUnread), boolToInt(e.IsStarred), boolToInt(e.IsTrash),
		boolToInt(e.IsSpam), boolToInt(e.IsImportant), time.Now().UTC().UnixMilli(), accountID, messageID)
	if err != nil {
		return fmt.Errorf("sqlite: update labels: %w", err)
	}
	return nil
}

func (db *DB) MarkTrashed(ctx context.Context, accountID string, ids []string) error {
	for _, id := range ids {
		if err := db.UpdateLabels(ctx, accountID, id, []string{"TRASH"}, []string{"INBOX"}); err != nil {
			return fmt.Errorf("sqlite: mark trashed %s: %w", id, err)
		}
	}
	return nil
}

func (db *DB) DeleteByIDs(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ph := store.Placeholders(len(ids), 2, store.SQLiteBind)
	args := append([]any{accountID}, toAny(ids)...)
	_, err := db.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM emails WHERE account_id = ? AND message_id IN (%s)`, ph), args...)
	if err != nil {
		return fmt.Errorf("sqlite: delete by ids: %w", err)
	}
	return nil
}

func (db *DB) ArchiveAndDelete(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: archive begin: %w", err)
	}
	defer tx.Rollback()

	ph := store.Placeholders(len(ids), 3, store.SQLiteBind)
	now := time.Now().UTC().UnixMilli()
	insertQ := fmt.Sprintf(`
		INSERT OR IGNORE INTO deleted_emails (message_id, account_id, thread_id, subject, snippet, from_email, from_name,
			labels, category, size_bytes, has_attachments, attachments, is_unread, is_starred, is_spam, is_important,
			internal_date, unsubscribe_link, deleted_at)
		SELECT message_id, account_id, thread_id, subject, snippet, from_email, from_name,
			labels, category, size_bytes, has_attachments, attachments, is_unread, is_starred, is_spam, is_important,
			internal_date, unsubscribe_link, ?
		FROM emails WHERE account_id = ? AND message_id IN (%s)`, ph)
	insertArgs := append([]any{now, accountID}, toAny(ids)...)
	if _, err := tx.ExecContext(ctx, insertQ, insertArgs...); err != nil {
		return fmt.Errorf("sqlite: archive insert: %w", err)
	}

	delPh := store.Placeholders(len(ids), 2, store.SQLiteBind)
	delArgs := append([]any{accountID}, toAny(ids)...)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM emails WHERE account_id = ? AND message_id IN (%s)`, delPh), delArgs...); err != nil {
		return fmt.Errorf("sqlite: archive delete: %w", err)
	}
	return tx.Commit()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (db *DB) BuildSenderAggregates(ctx context.Context, accountID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: sender aggregates begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM senders WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("sqlite: sender aggregates clear: %w", err)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT from_email, from_name, COUNT(*), SUM(size_bytes) FROM emails
		WHERE account_id = ? GROUP BY from_email, from_name`, accountID)
	if err != nil {
		return fmt.Errorf("sqlite: sender aggregates select: %w", err)
	}
	type agg struct {
		name      string
		nameCount int64
		count     int64
		size      int64
	}
	byEmail := map[string]*agg{}
	var order []string
	for rows.Next() {
		var email, name string
		var cnt, size int64
		if err := rows.Scan(&email, &name, &cnt, &size); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scan sender aggregate: %w", err)
		}
		a, ok := byEmail[email]
		if !ok {
			a = &agg{}
			byEmail[email] = a
			order = append(order, email)
		}
		a.count += cnt
		a.size += size
		if name != "" && cnt > a.nameCount {
			a.name = name
			a.nameCount = cnt
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: sender aggregates rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO senders (account_id, email, name, count, total_size) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare sender insert: %w", err)
	}
	defer stmt.Close()
	for _, email := range order {
		a := byEmail[email]
		if _, err := stmt.ExecContext(ctx, accountID, email, a.name, a.count, a.size); err != nil {
			return fmt.Errorf("sqlite: insert sender aggregate: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) QueryEmails(ctx context.Context, accountID string, f models.Filter, p models.Page, s models.Sort) ([]*models.Email, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.SQLiteBind)
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, p.Offset)
	q := fmt.Sprintf(`
		SELECT message_id, account_id, thread_id, subject, snippet, from_email, from_name,
			labels, category, size_bytes, has_attachments, attachments,
			is_unread, is_starred, is_trash, is_spam, is_important, internal_date, synced_at, unsubscribe_link
		FROM emails WHERE %s %s LIMIT ? OFFSET ?`, where, store.OrderByClause(s))
	rows, err := db.conn.QueryContext(ctx, q, adaptArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query emails: %w", err)
	}
	defer rows.Close()
	return scanEmails(rows)
}

func (db *DB) CountFiltered(ctx context.Context, accountID string, f models.Filter) (int64, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.SQLiteBind)
	var n int64
	err := db.conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM emails WHERE %s`, where), adaptArgs(args)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count filtered: %w", err)
	}
	return n, nil
}

func (db *DB) SumFilteredSize(ctx context.Context, accountID string, f models.Filter) (int64, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.SQLiteBind)
	var n int64
	err := db.conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(SUM(size_bytes),0) FROM emails WHERE %s`, where), adaptArgs(args)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sum filtered size: %w", err)
	}
	return n, nil
}

func (db *DB) IDsForFilter(ctx context.Context, accountID string, f models.Filter) ([]string, error) {
	where, args := store.BuildWhere("account_id", accountID, f, store.SQLiteBind)
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`SELECT message_id FROM emails WHERE %s`, where), adaptArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ids for filter: %w", err)
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
	where, args := store.BuildWhere("account_id", accountID, f, store.SQLiteBind)
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`SELECT message_id, size_bytes FROM emails WHERE %s`, where), adaptArgs(args)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: ids with size: %w", err)
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
	rows, err := db.conn.QueryContext(ctx, `
		SELECT account_id, email, name, count, total_size FROM senders
		WHERE account_id = ? AND (LOWER(email) LIKE ? OR LOWER(name) LIKE ?)
		ORDER BY count DESC LIMIT ?`, accountID, "%"+strings.ToLower(query)+"%", "%"+strings.ToLower(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: sender suggestions: %w", err)
	}
	defer rows.Close()
	return scanSenders(rows)
}

func (db *DB) SendersWithUnsubscribe(ctx context.Context, accountID string) ([]*models.Sender, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.account_id, s.email, s.name, s.count, s.total_size
		FROM senders s
		WHERE s.account_id = ?
		AND EXISTS (SELECT 1 FROM emails e WHERE e.account_id = s.account_id AND e.from_email = s.email AND e.unsubscribe_link IS NOT NULL)
		AND NOT EXISTS (SELECT 1 FROM unsubscribed_senders u WHERE u.account_id = s.account_id AND u.sender_email = s.email)
		ORDER BY s.count DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: senders with unsubscribe: %w", err)
	}
	defer rows.Close()
	return scanSenders(rows)
}

func (db *DB) DistinctCategories(ctx context.Context, accountID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT category FROM emails WHERE account_id = ? AND category IS NOT NULL`, accountID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: distinct categories: %w", err)
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

func scanEmails(rows *sql.Rows) ([]*models.Email, error) {
	var out []*models.Email
	for rows.Next() {
		var e models.Email
		var labelsJSON string
		var attJSON *string
		var unread, starred, trash, spam, important int64
		err := rows.Scan(&e.MessageID, &e.AccountID, &e.ThreadID, &e.Subject, &e.Snippet, &e.FromEmail, &e.FromName,
			&labelsJSON, &e.Category, &e.SizeBytes, &e.HasAttachments, &attJSON,
			&unread, &starred, &trash, &spam, &important, &e.InternalDate, &e.SyncedAt, &e.UnsubscribeLink)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan email: %w", err)
		}
		e.IsUnread, e.IsStarred, e.IsTrash, e.IsSpam, e.IsImportant = unread != 0, starred != 0, trash != 0, spam != 0, important != 0
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

func scanSenders(rows *sql.Rows) ([]*models.Sender, error) {
	var out []*models.Sender
	for rows.Next() {
		var s models.Sender
		if err := rows.Scan(&s.AccountID, &s.Email, &s.Name, &s.Count, &s.TotalSize); err != nil {
			return nil, fmt.Errorf("sqlite: scan sender: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
