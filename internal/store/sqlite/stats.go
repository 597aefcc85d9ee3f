package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
)

var statsCategories = []string{"CATEGORY_PROMOTIONS", "CATEGORY_SOCIAL", "CATEGORY_UPDATES", "CATEGORY_FORUMS", "CATEGORY_PERSONAL"}

func (db *DB) CalculateStats(ctx context.Context, accountID string) (*models.Stats, error) {
	st := &models.Stats{Categories: map[string]int64{}}
	now := time.Now().UTC()
	oneYearAgo := now.AddDate(-1, 0, 0).UnixMilli()
	twoYearsAgo := now.AddDate(-2, 0, 0).UnixMilli()

	inbox := func(extra string, args ...any) (int64, int64, error) {
		q := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(size_bytes),0) FROM emails WHERE account_id = ? AND is_trash = 0 AND is_spam = 0 %s`, extra)
		var c, sz int64
		err := db.conn.QueryRowContext(ctx, q, append([]any{accountID}, args...)...).Scan(&c, &sz)
		return c, sz, err
	}

	c, _, err := inbox("")
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats total: %w", err)
	}
	st.Total = c

	c, _, err = inbox("AND is_unread = 1")
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats unread: %w", err)
	}
	st.Unread = c

	for _, cat := range statsCategories {
		c, _, err := inbox("AND category = ?", cat)
		if err != nil {
			return nil, fmt.Errorf("sqlite: stats category %s: %w", cat, err)
		}
		st.Categories[cat] = c
	}

	c, _, err = inbox("AND size_bytes > ?", 5*1024*1024)
	if err != nil {
		return nil, err
	}
	st.Size.Larger5MB = c
	c, _, err = inbox("AND size_bytes > ?", 10*1024*1024)
	if err != nil {
		return nil, err
	}
	st.Size.Larger10MB = c

	err = db.conn.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes),0) FROM emails WHERE account_id = ?`, accountID).Scan(&st.Size.TotalStorageBytes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats total storage: %w", err)
	}
	err = db.conn.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes),0) FROM emails WHERE account_id = ? AND is_trash = 1`, accountID).Scan(&st.Size.TrashStorageBytes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats trash storage: %w", err)
	}

	c, _, err = inbox("AND internal_date < ?", oneYearAgo)
	if err != nil {
		return nil, err
	}
	st.Age.OlderThan1Year = c
	c, _, err = inbox("AND internal_date < ?", twoYearsAgo)
	if err != nil {
		return nil, err
	}
	st.Age.OlderThan2Years = c

	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(DISTINCT from_email) FROM emails WHERE account_id = ? AND is_trash = 0 AND is_spam = 0`, accountID).Scan(&st.Senders.UniqueCount)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats unique senders: %w", err)
	}

	if err := fillCohort(ctx, db, accountID, "is_trash = 1", &st.Trash); err != nil {
		return nil, err
	}
	if err := fillCohort(ctx, db, accountID, "is_spam = 1", &st.Spam); err != nil {
		return nil, err
	}

	cleanableExtra := "AND is_starred = 0 AND is_important = 0"
	st.Cleanup.PerCategory = map[string]models.CohortStats{}
	for _, cat := range statsCategories {
		c, sz, err := inbox(cleanableExtra+" AND category = ?", cat)
		if err != nil {
			return nil, err
		}
		st.Cleanup.PerCategory[cat] = models.CohortStats{Count: c, SizeBytes: sz}
	}
	c, sz, err := inbox(cleanableExtra + " AND category = 'CATEGORY_PROMOTIONS' AND is_unread = 0")
	if err != nil {
		return nil, err
	}
	st.Cleanup.ReadPromotions = models.CohortStats{Count: c, SizeBytes: sz}

	c, sz, err = inbox(cleanableExtra+" AND internal_date < ?", oneYearAgo)
	if err != nil {
		return nil, err
	}
	st.Cleanup.OlderThan1Year = models.CohortStats{Count: c, SizeBytes: sz}

	c, sz, err = inbox(cleanableExtra+" AND internal_date < ?", twoYearsAgo)
	if err != nil {
		return nil, err
	}
	st.Cleanup.OlderThan2Years = models.CohortStats{Count: c, SizeBytes: sz}

	c, sz, err = inbox(cleanableExtra+" AND size_bytes > ?", 5*1024*1024)
	if err != nil {
		return nil, err
	}
	st.Cleanup.LargerThan5MB = models.CohortStats{Count: c, SizeBytes: sz}

	c, sz, err = inbox(cleanableExtra+" AND size_bytes > ?", 10*1024*1024)
	if err != nil {
		return nil, err
	}
	st.Cleanup.LargerThan10MB = models.CohortStats{Count: c, SizeBytes: sz}

	return st, nil
}

func fillCohort(ctx context.Context, db *DB, accountID, cond string, out *models.CohortStats) error {
	q := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(size_bytes),0) FROM emails WHERE account_id = ? AND %s`, cond)
	return db.conn.QueryRowContext(ctx, q, accountID).Scan(&out.Count, &out.SizeBytes)
}

func (db *DB) Breakdown(ctx context.Context, accountID string, f models.Filter, by models.BreakdownBy, s models.Sort, limit int) ([]models.BreakdownRow, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	where, args := store.BuildWhere("account_id", accountID, f, store.SQLiteBind)
	args = adaptArgs(args)

	var keyExpr, labelExpr string
	switch by {
	case models.BreakdownBySender:
		keyExpr = "from_email"
		labelExpr = "MAX(from_name)"
	case models.BreakdownByCategory:
		keyExpr = "COALESCE(category, 'uncategorized')"
		labelExpr = "COALESCE(category, 'uncategorized')"
	case models.BreakdownByMonth:
		keyExpr = "strftime('%Y-%m', internal_date/1000, 'unixepoch')"
		labelExpr = keyExpr
	default:
		return nil, fmt.Errorf("sqlite: unknown breakdown %q", by)
	}

	orderCol := "cnt"
	if s.Field == models.SortBySize {
		orderCol = "total_size"
	}
	orderDir := "DESC"
	if s.Order == models.SortAsc {
		orderDir = "ASC"
	}

	q := fmt.Sprintf(`
		SELECT %s AS key, %s AS label, COUNT(*) AS cnt, COALESCE(SUM(size_bytes),0) AS total_size
		FROM emails WHERE %s
		GROUP BY %s
		ORDER BY %s %s
		LIMIT %d`, keyExpr, labelExpr, where, keyExpr, orderCol, orderDir, limit)

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: breakdown: %w", err)
	}
	defer rows.Close()
	var out []models.BreakdownRow
	for rows.Next() {
		var r models.BreakdownRow
		if err := rows.Scan(&r.Key, &r.Label, &r.Count, &r.TotalSize); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
