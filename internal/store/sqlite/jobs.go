package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

func (db *DB) CreateJob(ctx context.Context, j *models.Job) error {
	var filterJSON *string
	if j.Filter != nil {
		b, err := json.Marshal(j.Filter)
		if err != nil {
			return fmt.Errorf("sqlite: marshal job filter: %w", err)
		}
		s := string(b)
		filterJSON = &s
	}
	addLabels, err := marshalStringSet(j.AddLabels)
	if err != nil {
		return fmt.Errorf("sqlite: marshal job add_labels: %w", err)
	}
	removeLabels, err := marshalStringSet(j.RemoveLabels)
	if err != nil {
		return fmt.Errorf("sqlite: marshal job remove_labels: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, account_id, user_id, type, status, filter_json, add_labels, remove_labels, total_messages)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		j.ID, j.AccountID, j.UserID, j.Type, j.Status, filterJSON, addLabels, removeLabels, j.TotalMessages)
	if err != nil {
		return fmt.Errorf("sqlite: create job: %w", err)
	}
	return nil
}

// SetJobResolvedIDs freezes the id set a trash/delete/apply_label job
// resolved its filter to, so forEachChunk's positional offset keeps
// meaning across a pause/resume even if the underlying rows change.
func (db *DB) SetJobResolvedIDs(ctx context.Context, jobID string, ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("sqlite: marshal job resolved_ids: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		UPDATE jobs SET resolved_ids = ?, total_messages = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`,
		string(b), len(ids), jobID)
	if err != nil {
		return fmt.Errorf("sqlite: set job resolved_ids: %w", err)
	}
	return nil
}

// marshalStringSet returns nil for an empty/nil set so the column stays
// NULL rather than storing the literal string "[]" or "null".
func marshalStringSet(ss []string) (*string, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalStringSet(raw *string) ([]string, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(*raw), &ss); err != nil {
		return nil, err
	}
	return ss, nil
}

func (db *DB) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	row := db.conn.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, jobID)
	return scanJob(row)
}

func (db *DB) ListJobsByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = s
	}
	q := jobSelect + fmt.Sprintf(` WHERE status IN (%s) ORDER BY created_at ASC`, strings.Join(placeholders, ","))
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list jobs by status: %w", err)
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (db *DB) ListActiveJobByAccountAndType(ctx context.Context, accountID string, t models.JobType) (*models.Job, error) {
	row := db.conn.QueryRowContext(ctx, jobSelect+`
		WHERE account_id = ? AND type = ? AND status IN ('pending','running','paused')
		ORDER BY created_at DESC LIMIT 1`, accountID, t)
	j, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return j, err
}

func (db *DB) UpdateJobProgress(ctx context.Context, jobID string, processed int64, nextPageToken string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE jobs SET processed_messages = ?, next_page_token = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`,
		processed, nextPageToken, jobID)
	if err != nil {
		return fmt.Errorf("sqlite: update job progress: %w", err)
	}
	return nil
}

func (db *DB) TransitionJob(ctx context.Context, jobID string, from, to models.JobStatus) (bool, error) {
	extra := ""
	if to == models.JobStatusRunning {
		extra = `, started_at = COALESCE(started_at, strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			resumed_at = CASE WHEN ? = 'paused' THEN strftime('%Y-%m-%dT%H:%M:%fZ','now') ELSE resumed_at END,
			processed_at_resume = CASE WHEN ? = 'paused' THEN processed_messages ELSE processed_at_resume END`
	}
	var res sql.Result
	var err error
	if extra != "" {
		res, err = db.conn.ExecContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`+extra+`
			WHERE id = ? AND status = ?`, to, from, from, jobID, from)
	} else {
		res, err = db.conn.ExecContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
			WHERE id = ? AND status = ?`, to, jobID, from)
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: transition job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: transition job rows affected: %w", err)
	}
	return n == 1, nil
}

func (db *DB) CompleteJob(ctx context.Context, jobID string, status models.JobStatus, lastError string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now'), updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`,
		status, lastError, jobID)
	if err != nil {
		return fmt.Errorf("sqlite: complete job: %w", err)
	}
	return nil
}

func (db *DB) IncrementRetry(ctx context.Context, jobID string) (int, error) {
	_, err := db.conn.ExecContext(ctx, `UPDATE jobs SET retry_count = retry_count + 1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`, jobID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: increment retry: %w", err)
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT retry_count FROM jobs WHERE id = ?`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: read retry count: %w", err)
	}
	return n, nil
}

// DemoteRunningToPaused runs once at process start: any job left running
// across a crash is not resumable in place and must be re-picked-up by
// the job runner's tick loop.
func (db *DB) DemoteRunningToPaused(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx, `UPDATE jobs SET status = 'paused', updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: demote running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: demote running jobs rows affected: %w", err)
	}
	return int(n), nil
}

const jobSelect = `
	SELECT id, account_id, user_id, type, status, filter_json, add_labels, remove_labels, resolved_ids, total_messages, processed_messages,
		next_page_token, last_error, retry_count, resumed_at, processed_at_resume, started_at, completed_at,
		created_at, updated_at
	FROM jobs`

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var filterJSON, addLabels, removeLabels, resolvedIDs *string
	var resumedAt, startedAt, completedAt sql.NullString
	var created, updated string
	err := row.Scan(&j.ID, &j.AccountID, &j.UserID, &j.Type, &j.Status, &filterJSON, &addLabels, &removeLabels, &resolvedIDs, &j.TotalMessages, &j.ProcessedMessages,
		&j.NextPageToken, &j.LastError, &j.RetryCount, &resumedAt, &j.ProcessedAtResume, &startedAt, &completedAt,
		&created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: scan job: %w", err)
	}
	if filterJSON != nil {
		var f models.Filter
		if err := json.Unmarshal([]byte(*filterJSON), &f); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal job filter: %w", err)
		}
		j.Filter = &f
	}
	if j.AddLabels, err = unmarshalStringSet(addLabels); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal job add_labels: %w", err)
	}
	if j.RemoveLabels, err = unmarshalStringSet(removeLabels); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal job remove_labels: %w", err)
	}
	if j.ResolvedIDs, err = unmarshalStringSet(resolvedIDs); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal job resolved_ids: %w", err)
	}
	if j.ResumedAt, err = nullStringToTime(resumedAt); err != nil {
		return nil, err
	}
	if j.StartedAt, err = nullStringToTime(startedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = nullStringToTime(completedAt); err != nil {
		return nil, err
	}
	if t, err := nullStringToTime(sql.NullString{String: created, Valid: true}); err == nil && t != nil {
		j.CreatedAt = *t
	}
	if t, err := nullStringToTime(sql.NullString{String: updated, Valid: true}); err == nil && t != nil {
		j.UpdatedAt = *t
	}
	return &j, nil
}
