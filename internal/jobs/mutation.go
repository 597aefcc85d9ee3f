package jobs

import (
	"context"
	"fmt"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

// runTrash moves every message matching job.Filter to the Gmail trash,
// mirroring the label change locally. The id set is resolved once and
// frozen on the job row (see resolveIDs), so a crash resumes against the
// exact same list rather than a freshly re-evaluated, reordered one.
func (r *Runner) runTrash(ctx context.Context, accountID string, job *models.Job) error {
	token, err := r.tokens.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("jobs: trash: get token: %w", err)
	}
	ids, err := r.resolveIDs(ctx, accountID, job)
	if err != nil {
		return fmt.Errorf("jobs: trash: resolve filter: %w", err)
	}

	return r.forEachChunk(ctx, job, ids, func(chunk []string) error {
		if err := r.gmail.BatchModify(ctx, token, chunk, []string{"TRASH"}, []string{"INBOX"}); err != nil {
			return fmt.Errorf("jobs: trash: batch_modify: %w", err)
		}
		return r.store.MarkTrashed(ctx, accountID, chunk)
	})
}

// runApplyLabel adds/removes an arbitrary label set on every message
// matching job.Filter — the generic mutation behind enqueue_apply_label,
// which archiving (removing INBOX) is just one caller of.
func (r *Runner) runApplyLabel(ctx context.Context, accountID string, job *models.Job) error {
	token, err := r.tokens.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("jobs: apply_label: get token: %w", err)
	}
	ids, err := r.resolveIDs(ctx, accountID, job)
	if err != nil {
		return fmt.Errorf("jobs: apply_label: resolve filter: %w", err)
	}

	return r.forEachChunk(ctx, job, ids, func(chunk []string) error {
		if err := r.gmail.BatchModify(ctx, token, chunk, job.AddLabels, job.RemoveLabels); err != nil {
			return fmt.Errorf("jobs: apply_label: batch_modify: %w", err)
		}
		for _, id := range chunk {
			if err := r.store.UpdateLabels(ctx, accountID, id, job.AddLabels, job.RemoveLabels); err != nil {
				return err
			}
		}
		return nil
	})
}

// runDelete permanently removes every message matching job.Filter.
// It archives to the Eternal Memory table and removes the local row
// before calling Gmail's batchDelete, so a crash between the two leaves
// the message only in the local archive — retrying the job just repeats
// the (idempotent) remote delete rather than losing the record.
func (r *Runner) runDelete(ctx context.Context, accountID string, job *models.Job) error {
	token, err := r.tokens.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("jobs: delete: get token: %w", err)
	}
	ids, err := r.resolveIDs(ctx, accountID, job)
	if err != nil {
		return fmt.Errorf("jobs: delete: resolve filter: %w", err)
	}

	return r.forEachChunk(ctx, job, ids, func(chunk []string) error {
		if err := r.store.ArchiveAndDelete(ctx, accountID, chunk); err != nil {
			return fmt.Errorf("jobs: delete: archive locally: %w", err)
		}
		if err := r.gmail.BatchDelete(ctx, token, chunk); err != nil {
			return fmt.Errorf("jobs: delete: batch_delete: %w", err)
		}
		return nil
	})
}

// resolveIDs returns the id set a mutation job operates over, resolving
// and freezing it on the job row the first time it's called. A resumed
// job reloads ResolvedIDs from the database instead of re-evaluating
// job.Filter, so forEachChunk's positional offset stays valid even when
// the filter's own query result would otherwise shrink or reorder
// between runs (e.g. runDelete, where already-processed ids are gone).
func (r *Runner) resolveIDs(ctx context.Context, accountID string, job *models.Job) ([]string, error) {
	if job.ResolvedIDs != nil {
		return job.ResolvedIDs, nil
	}
	ids, err := r.store.IDsForFilter(ctx, accountID, *job.Filter)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetJobResolvedIDs(ctx, job.ID, ids); err != nil {
		return nil, err
	}
	job.ResolvedIDs = ids
	job.TotalMessages = int64(len(ids))
	return ids, nil
}

// forEachChunk drives the throttle, splits ids into mutationBatchSize
// pieces, persists progress after each, and aborts on ctx cancellation
// (a pause/cancel call) leaving job.ProcessedMessages at the last
// persisted checkpoint for resume.
func (r *Runner) forEachChunk(ctx context.Context, job *models.Job, ids []string, apply func(chunk []string) error) error {
	if err := r.store.UpdateJobProgress(ctx, job.ID, job.ProcessedMessages, ""); err != nil {
		return fmt.Errorf("jobs: record total: %w", err)
	}
	start := int(job.ProcessedMessages)
	for start < len(ids) {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + r.mutationBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := r.throttle.Wait(ctx); err != nil {
			return err
		}
		if err := apply(ids[start:end]); err != nil {
			r.throttle.OnError()
			return err
		}
		job.ProcessedMessages = int64(end)
		if err := r.store.UpdateJobProgress(ctx, job.ID, job.ProcessedMessages, ""); err != nil {
			return fmt.Errorf("jobs: persist progress: %w", err)
		}
		start = end
	}
	return nil
}
