package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

func (db *DB) CreateJob(ctx context.Context, j *models.Job) error {
	var filterJSON *string
	if j.Filter != nil {
		b, err := json.Marshal(j.Filter)
		if err != nil {
			return fmt.Errorf("postgres: marshal job filter: %w", err)
		}
		s := string(b)
		filterJSON = &s
	}
	addLabels, err := marshalStringSet(j.AddLabels)
	if err != nil {
		return fmt.Errorf("postgres: marshal job add_labels: %w", err)
	}
	removeLabels, err := marshalStringSet(j.RemoveLabels)
	if err != nil {
		return fmt.Errorf("postgres: marshal job remove_labels: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO jobs (id, account_id, user_id, type, status, filter_json, add_labels, remove_labels, total_messages)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		j.ID, j.AccountID, j.UserID, j.Type, j.Status, filterJSON, addLabels, removeLabels, j.TotalMessages)
	if err != nil {
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

// SetJobResolvedIDs freezes the id set a trash/delete/apply_label job
// resolved its filter to, so forEachChunk's positional offset keeps
// meaning across a pause/resume even if the underlying rows change.
func (db *DB) SetJobResolvedIDs(ctx context.Context, jobID string, ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("postgres: marshal job resolved_ids: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		UPDATE jobs SET resolved_ids = $2, total_messages = $3, updated_at = now() WHERE id = $1`,
		jobID, string(b), len(ids))
	if err != nil {
		return fmt.Errorf("postgres: set job resolved_ids: %w", err)
	}
	return nil
}

// marshalStringSet returns nil for an empty/nil set so the column stays
// NULL rather than storing the literal string "[]".
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
	row := db.Pool.QueryRow(ctx, jobSelect+` WHERE id = $1`, jobID)
	return scanJob(row)
}

func (db *DB) ListJobsByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	rows, err := db.Pool.Query(ctx, jobSelect+` WHERE status = ANY($1) ORDER BY created_at ASC`, statuses)
	if err != nil {
		return nil, fmt.Errorf("postgres: list jobs by status: %w", err)
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
	row := db.Pool.QueryRow(ctx, jobSelect+`
		WHERE account_id = $1 AND type = $2 AND status IN ('pending','running','paused')
		ORDER BY created_at DESC LIMIT 1`, accountID, t)
	j, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return j, err
}

func (db *DB) UpdateJobProgress(ctx context.Context, jobID string, processed int64, nextPageToken string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE jobs SET processed_messages = $2, next_page_token = $3, updated_at = now() WHERE id = $1`,
		jobID, processed, nextPageToken)
	if err != nil {
		return fmt.Errorf("postgres: update job progress: %w", err)
	}
	return nil
}

// TransitionJob is the compare-and-swap that enforces "at most one
// running job per (account,type)".
func (db *DB) TransitionJob(ctx context.Context, jobID string, from, to models.JobStatus) (bool, error) {
	extra := ""
	if to == models.JobStatusRunning {
		extra = `, started_at = COALESCE(started_at, now()), resumed_at = CASE WHEN $3 = 'paused' THEN now() ELSE resumed_at END,
			processed_at_resume = CASE WHEN $3 = 'paused' THEN processed_messages ELSE processed_at_resume END`
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = now()`+extra+`
		WHERE id = $1 AND status = $3`, jobID, to, from)
	if err != nil {
		return false, fmt.Errorf("postgres: transition job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) CompleteJob(ctx context.Context, jobID string, status models.JobStatus, lastError string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE jobs SET status = $2, last_error = $3, completed_at = now(), updated_at = now() WHERE id = $1`,
		jobID, status, lastError)
	if err != nil {
		return fmt.Errorf("postgres: complete job: %w", err)
	}
	return nil
}

func (db *DB) IncrementRetry(ctx context.Context, jobID string) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `UPDATE jobs SET retry_count = retry_count + 1, updated_at = now() WHERE id = $1 RETURNING retry_count`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: increment retry: %w", err)
	}
	return n, nil
}

// DemoteRunningToPaused is called once at process start: any job left
// running across a crash is not resumable in place and must be
// re-picked-up by the job runner's tick loop.
func (db *DB) DemoteRunningToPaused(ctx context.Context) (int, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE jobs SET status = 'paused', updated_at = now() WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("postgres: demote running jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const jobSelect = `
	SELECT id, account_id, user_id, type, status, filter_json, add_labels, remove_labels, resolved_ids, total_messages, processed_messages,
		next_page_token, last_error, retry_count, resumed_at, processed_at_resume, started_at, completed_at,
		created_at, updated_at
	FROM jobs`

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var filterJSON, addLabels, removeLabels, resolvedIDs *string
	err := row.Scan(&j.ID, &j.AccountID, &j.UserID, &j.Type, &j.Status, &filterJSON, &addLabels, &removeLabels, &resolvedIDs, &j.TotalMessages, &j.ProcessedMessages,
		&j.NextPageToken, &j.LastError, &j.RetryCount, &j.ResumedAt, &j.ProcessedAtResume, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: scan job: %w", err)
	}
	if filterJSON != nil {
		var f models.Filter
		if err := json.Unmarshal([]byte(*filterJSON), &f); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal job filter: %w", err)
		}
		j.Filter = &f
	}
	var err2 error
	if j.AddLabels, err2 = unmarshalStringSet(addLabels); err2 != nil {
		return nil, fmt.Errorf("postgres: unmarshal job add_labels: %w", err2)
	}
	if j.RemoveLabels, err2 = unmarshalStringSet(removeLabels); err2 != nil {
		return nil, fmt.Errorf("postgres: unmarshal job remove_labels: %w", err2)
	}
	if j.ResolvedIDs, err2 = unmarshalStringSet(resolvedIDs); err2 != nil {
		return nil, fmt.Errorf("postgres: unmarshal job resolved_ids: %w", err2)
	}
	return &j, nil
}
