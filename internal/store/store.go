// Package store defines the engine-agnostic repository contract for the
// metadata store. Two concrete engines implement it: internal/store/postgres
// (server engine, pgx/v5) and internal/store/sqlite (embedded engine,
// modernc.org/sqlite) — see DESIGN.md for the chosen schema layout.
package store

import (
	"context"
	"time"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

// Store is the exclusive persister of every table in the schema. Every
// method is scoped by account_id (or accepts an Account/Job directly);
// there is no "current account" global.
type Store interface {
	AccountStore
	TokenStore
	EmailStore
	JobStore
	QueryCacheStore

	// Close releases the underlying connection pool/handle.
	Close() error
}

type AccountStore interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, userID, provider, email string) (*models.Account, error)
	ListAccountsByStatus(ctx context.Context, status models.SyncStatus) ([]*models.Account, error)
	UpdateAccountSyncState(ctx context.Context, accountID string, status models.SyncStatus, historyID *int64, syncErr *string) error
	// SetHistoryID enforces a monotonic-non-decreasing historyId: it is a
	// no-op (not an error) if newHistoryID <= current.
	SetHistoryID(ctx context.Context, accountID string, newHistoryID int64) error
	DeleteAccount(ctx context.Context, accountID string) error
}

type TokenStore interface {
	UpsertToken(ctx context.Context, t *models.OAuthToken) error
	// GetToken returns the decrypted token; decryption happens exactly
	// once, inside this accessor.
	GetToken(ctx context.Context, accountID string) (*models.OAuthToken, error)
}

// EmailStore is the query/mutation surface over the local email mirror.
type EmailStore interface {
	ClearEmails(ctx context.Context, accountID string) error
	UpsertEmails(ctx context.Context, accountID string, records []*models.Email) error
	UpdateLabels(ctx context.Context, accountID, messageID string, added, removed []string) error
	MarkTrashed(ctx context.Context, accountID string, ids []string) error
	DeleteByIDs(ctx context.Context, accountID string, ids []string) error
	ArchiveAndDelete(ctx context.Context, accountID string, ids []string) error
	BuildSenderAggregates(ctx context.Context, accountID string) error

	QueryEmails(ctx context.Context, accountID string, f models.Filter, p models.Page, s models.Sort) ([]*models.Email, error)
	CountFiltered(ctx context.Context, accountID string, f models.Filter) (int64, error)
	SumFilteredSize(ctx context.Context, accountID string, f models.Filter) (int64, error)
	IDsForFilter(ctx context.Context, accountID string, f models.Filter) ([]string, error)
	IDsWithSizeForFilter(ctx context.Context, accountID string, f models.Filter) ([]string, int64, error)
	SenderSuggestions(ctx context.Context, accountID, query string, limit int) ([]*models.Sender, error)
	SendersWithUnsubscribe(ctx context.Context, accountID string) ([]*models.Sender, error)
	DistinctCategories(ctx context.Context, accountID string) ([]string, error)
	CalculateStats(ctx context.Context, accountID string) (*models.Stats, error)
	Breakdown(ctx context.Context, accountID string, f models.Filter, by models.BreakdownBy, s models.Sort, limit int) ([]models.BreakdownRow, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobsByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error)
	ListActiveJobByAccountAndType(ctx context.Context, accountID string, t models.JobType) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, jobID string, processed int64, nextPageToken string) error
	// SetJobResolvedIDs persists the id set a trash/delete/apply_label job
	// resolved its filter to, once, at job start. forEachChunk indexes
	// into this frozen list on every resume instead of re-evaluating the
	// filter, so ids already mutated (and possibly gone, as with delete)
	// can't shift the positional offset and get silently skipped.
	SetJobResolvedIDs(ctx context.Context, jobID string, ids []string) error
	// TransitionJob performs a compare-and-swap on status, enforcing the
	// guarantee that at most one job per (account, type) is running at a
	// time. It returns false, nil if the CAS did not apply because the
	// job was no longer in fromStatus.
	TransitionJob(ctx context.Context, jobID string, from, to models.JobStatus) (bool, error)
	CompleteJob(ctx context.Context, jobID string, status models.JobStatus, lastError string) error
	IncrementRetry(ctx context.Context, jobID string) (int, error)
	DemoteRunningToPaused(ctx context.Context) (int, error)
}

type QueryCacheStore interface {
	SaveQueryCache(ctx context.Context, e *models.QueryCacheEntry) error
	GetQueryCache(ctx context.Context, queryID string) (*models.QueryCacheEntry, error)
}

// Now returns the current time truncated to millisecond precision, the
// resolution Email.InternalDate/SyncedAt use throughout the schema.
func Now() time.Time {
	return time.Now().UTC()
}
