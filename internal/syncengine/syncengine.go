// Package syncengine reconciles the local mirror with Gmail: full sync
// (stats_only -> syncing -> completed|error|auth_expired) and delta sync
// driven off a stored historyId.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/inboxorcist/inboxorcist/internal/authtoken"
	"github.com/inboxorcist/inboxorcist/internal/gmailclient"
	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

type Engine struct {
	store     store.Store
	gmail     *gmailclient.Client
	tokens    *authtoken.Accessor
	throttle  *throttle.Throttle
	pageSize  int64
	batchSize int
	log       zerolog.Logger
}

func New(st store.Store, gmail *gmailclient.Client, tokens *authtoken.Accessor, th *throttle.Throttle, pageSize, batchSize int, log zerolog.Logger) *Engine {
	if pageSize <= 0 {
		pageSize = 500
	}
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	return &Engine{store: st, gmail: gmail, tokens: tokens, throttle: th, pageSize: int64(pageSize), batchSize: batchSize, log: log}
}

// RunFullSync drives job (already transitioned to running by the job
// runner) through the stats_only and syncing states. It resumes from
// job.NextPageToken when non-empty, and persists progress after every
// chunk so a crash mid-sync loses at most one chunk.
func (e *Engine) RunFullSync(ctx context.Context, account *models.Account, job *models.Job) error {
	token, err := e.tokens.Get(ctx, account.ID)
	if err != nil {
		return e.failAuth(ctx, account.ID, err)
	}

	if job.NextPageToken == "" && job.ProcessedMessages == 0 {
		if err := e.store.UpdateAccountSyncState(ctx, account.ID, models.SyncStatusStatsOnly, nil, nil); err != nil {
			return fmt.Errorf("syncengine: set stats_only: %w", err)
		}
		profile, err := e.gmail.GetProfile(ctx, token)
		if err != nil {
			return e.failAuth(ctx, account.ID, err)
		}
		histID := int64(profile.HistoryID)
		if err := e.store.SetHistoryID(ctx, account.ID, histID); err != nil {
			return fmt.Errorf("syncengine: snapshot history id: %w", err)
		}
	}

	if err := e.store.UpdateAccountSyncState(ctx, account.ID, models.SyncStatusSyncing, nil, nil); err != nil {
		return fmt.Errorf("syncengine: set syncing: %w", err)
	}

	pageToken := job.NextPageToken
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := e.gmail.ListMessages(ctx, token, pageToken, e.pageSize)
		if err != nil {
			return e.failAuth(ctx, account.ID, err)
		}
		if err := e.syncPage(ctx, account.ID, token, job, page.IDs); err != nil {
			return err
		}
		job.NextPageToken = page.NextPageToken
		if err := e.store.UpdateJobProgress(ctx, job.ID, job.ProcessedMessages, job.NextPageToken); err != nil {
			return fmt.Errorf("syncengine: persist page token: %w", err)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if err := e.store.BuildSenderAggregates(ctx, account.ID); err != nil {
		return fmt.Errorf("syncengine: build sender aggregates: %w", err)
	}
	return e.store.UpdateAccountSyncState(ctx, account.ID, models.SyncStatusCompleted, nil, nil)
}

func (e *Engine) syncPage(ctx context.Context, accountID, token string, job *models.Job, ids []string) error {
	for start := 0; start < len(ids); start += e.batchSize {
		end := start + e.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		if err := e.throttle.Wait(ctx); err != nil {
			return err
		}
		results, latency, err := e.gmail.BatchGet(ctx, token, chunk, "metadata")
		if errors.Is(err, gmailclient.ErrBatchAuthExpired) {
			return e.retryAfterRefresh(ctx, accountID, job, chunk)
		}
		if err != nil {
			e.throttle.OnError()
			return fmt.Errorf("syncengine: batch_get: %w", err)
		}
		e.throttle.OnBatchComplete(latency)

		records := make([]*models.Email, 0, len(results))
		for _, r := range results {
			if r.Err != nil {
				e.handlePartError(accountID, r)
				continue
			}
			records = append(records, gmailclient.ToEmail(accountID, r.Message, store.Now().UnixMilli()))
		}
		if err := e.store.UpsertEmails(ctx, accountID, records); err != nil {
			return fmt.Errorf("syncengine: upsert chunk: %w", err)
		}
		job.ProcessedMessages += int64(len(chunk))
		if err := e.store.UpdateJobProgress(ctx, job.ID, job.ProcessedMessages, job.NextPageToken); err != nil {
			return fmt.Errorf("syncengine: persist progress: %w", err)
		}
	}
	return nil
}

// handlePartError applies the per-item error taxonomy for a batch_get
// response: 404 means the message was deleted before we saw it and is
// silently skipped; 403 is logged and skipped; 429s are handled by the
// throttle at the batch level and never surface here individually.
func (e *Engine) handlePartError(accountID string, r gmailclient.BatchResult) {
	switch {
	case r.Err.Code == 404:
		return
	case r.Err.Code == 403:
		e.log.Warn().Str("account_id", accountID).Str("message_id", r.ID).Msg("permission denied fetching message, skipping")
	case r.Err.Status == "BATCH_FAILED":
		e.log.Warn().Str("account_id", accountID).Str("message_id", r.ID).Str("detail", r.Err.Message).Msg("batch item failed")
	default:
		e.log.Warn().Str("account_id", accountID).Str("message_id", r.ID).Int("code", r.Err.Code).Msg("unexpected batch item error")
	}
}

// retryAfterRefresh implements the whole-batch 401 contract: refresh once
// and retry; a second 401 marks the account auth_expired.
func (e *Engine) retryAfterRefresh(ctx context.Context, accountID string, job *models.Job, chunk []string) error {
	token, err := e.tokens.Get(ctx, accountID)
	if err != nil {
		return e.failAuth(ctx, accountID, err)
	}
	results, latency, err := e.gmail.BatchGet(ctx, token, chunk, "metadata")
	if err != nil {
		return e.failAuth(ctx, accountID, err)
	}
	e.throttle.OnBatchComplete(latency)
	records := make([]*models.Email, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			e.handlePartError(accountID, r)
			continue
		}
		records = append(records, gmailclient.ToEmail(accountID, r.Message, store.Now().UnixMilli()))
	}
	if err := e.store.UpsertEmails(ctx, accountID, records); err != nil {
		return fmt.Errorf("syncengine: upsert retried chunk: %w", err)
	}
	job.ProcessedMessages += int64(len(chunk))
	return e.store.UpdateJobProgress(ctx, job.ID, job.ProcessedMessages, job.NextPageToken)
}

func (e *Engine) failAuth(ctx context.Context, accountID string, cause error) error {
	if errors.Is(cause, gmailclient.ErrAuthExpired) || errors.Is(cause, gmailclient.ErrBatchAuthExpired) {
		msg := cause.Error()
		_ = e.store.UpdateAccountSyncState(ctx, accountID, models.SyncStatusAuthExpired, nil, &msg)
		return fmt.Errorf("syncengine: auth expired: %w", cause)
	}
	msg := cause.Error()
	_ = e.store.UpdateAccountSyncState(ctx, accountID, models.SyncStatusError, nil, &msg)
	return cause
}

// RunDeltaSync reconciles one account against Gmail's history.list feed.
// It is driven by the scheduler every N minutes per completed account; a
// 404/history-expired response hands control back to the caller, which
// must trigger a full resync.
func (e *Engine) RunDeltaSync(ctx context.Context, account *models.Account) error {
	token, err := e.tokens.Get(ctx, account.ID)
	if err != nil {
		return e.failAuth(ctx, account.ID, err)
	}

	result, err := e.gmail.ListHistory(ctx, token, uint64(account.HistoryID))
	if err != nil {
		if errors.Is(err, gmailclient.ErrHistoryExpired) {
			return ErrHistoryExpired
		}
		return e.failAuth(ctx, account.ID, err)
	}

	if err := e.applyAdded(ctx, account.ID, token, result.Changes.MessagesAdded); err != nil {
		return err
	}
	if len(result.Changes.MessagesDeleted) > 0 {
		if err := e.store.DeleteByIDs(ctx, account.ID, result.Changes.MessagesDeleted); err != nil {
			return fmt.Errorf("syncengine: delta delete: %w", err)
		}
	}
	// A row absent locally for a labels-changed id is treated as (b): a
	// transient TRASH/UNTRASH blip on a message we never mirrored is
	// ignored rather than triggering an extra fetch, since the next full
	// or delta cycle will pick it up if it persists.
	for id, added := range result.Changes.LabelsAdded {
		if err := e.store.UpdateLabels(ctx, account.ID, id, added, nil); err != nil {
			return fmt.Errorf("syncengine: apply added labels: %w", err)
		}
	}
	for id, removed := range result.Changes.LabelsRemoved {
		if err := e.store.UpdateLabels(ctx, account.ID, id, nil, removed); err != nil {
			return fmt.Errorf("syncengine: apply removed labels: %w", err)
		}
	}

	return e.store.SetHistoryID(ctx, account.ID, int64(result.LastHistoryID))
}

func (e *Engine) applyAdded(ctx context.Context, accountID, token string, ids []string) error {
	for start := 0; start < len(ids); start += e.batchSize {
		end := start + e.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		if err := e.throttle.Wait(ctx); err != nil {
			return err
		}
		results, latency, err := e.gmail.BatchGet(ctx, token, chunk, "metadata")
		if err != nil {
			e.throttle.OnError()
			return fmt.Errorf("syncengine: delta batch_get: %w", err)
		}
		e.throttle.OnBatchComplete(latency)
		records := make([]*models.Email, 0, len(results))
		for _, r := range results {
			if r.Err != nil {
				e.handlePartError(accountID, r)
				continue
			}
			records = append(records, gmailclient.ToEmail(accountID, r.Message, time.Now().UTC().UnixMilli()))
		}
		if err := e.store.UpsertEmails(ctx, accountID, records); err != nil {
			return fmt.Errorf("syncengine: delta upsert: %w", err)
		}
	}
	return nil
}

var ErrHistoryExpired = errors.New("syncengine: history expired, full resync required")
