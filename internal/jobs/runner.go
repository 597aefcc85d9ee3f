// Package jobs is the durable job runner: it enqueues, cancels, pauses,
// and resumes units of work against one account, enforces "at most one
// running job per (account,type)" via the store's compare-and-swap
// transition, and schedules periodic delta syncs with robfig/cron/v3.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/inboxorcist/inboxorcist/internal/authtoken"
	"github.com/inboxorcist/inboxorcist/internal/gmailclient"
	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
	"github.com/inboxorcist/inboxorcist/internal/syncengine"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

// Runner owns the lifecycle of every Job row: creation, CAS-serialized
// transitions, cooperative pause/cancel via context, and crash recovery.
type Runner struct {
	store             store.Store
	gmail             *gmailclient.Client
	tokens            *authtoken.Accessor
	sync              *syncengine.Engine
	throttle          *throttle.Throttle
	cron              *cron.Cron
	deltaInterval     time.Duration
	mutationBatchSize int
	log               zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(st store.Store, gmail *gmailclient.Client, tokens *authtoken.Accessor, sync *syncengine.Engine, th *throttle.Throttle, deltaInterval time.Duration, mutationBatchSize int, log zerolog.Logger) *Runner {
	if mutationBatchSize <= 0 || mutationBatchSize > 1000 {
		mutationBatchSize = 1000
	}
	return &Runner{
		store:             st,
		gmail:             gmail,
		tokens:            tokens,
		sync:              sync,
		throttle:          th,
		cron:              cron.New(cron.WithSeconds()),
		deltaInterval:     deltaInterval,
		mutationBatchSize: mutationBatchSize,
		log:               log,
		cancels:           map[string]context.CancelFunc{},
	}
}

// Start performs crash recovery (demote running -> paused, resume in
// creation order with next_page_token replayed) and arms the periodic
// delta-sync schedule. It returns once recovery has been kicked off;
// individual jobs continue running in background goroutines.
func (r *Runner) Start(ctx context.Context) error {
	demoted, err := r.store.DemoteRunningToPaused(ctx)
	if err != nil {
		return eris.Wrap(err, "jobs: demote running jobs on startup")
	}
	if demoted > 0 {
		r.log.Info().Int("count", demoted).Msg("demoted running jobs to paused after restart")
	}

	pending, err := r.store.ListJobsByStatus(ctx, models.JobStatusPending, models.JobStatusPaused)
	if err != nil {
		return eris.Wrap(err, "jobs: list resumable jobs")
	}
	for _, j := range pending {
		r.spawn(j)
	}

	spec := fmt.Sprintf("@every %s", r.deltaInterval)
	if _, err := r.cron.AddFunc(spec, func() { r.tickDeltaSync(context.Background()) }); err != nil {
		return eris.Wrap(err, "jobs: schedule delta sync")
	}
	r.cron.Start()
	return nil
}

func (r *Runner) Stop() {
	r.cron.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
}

func (r *Runner) spawn(j *models.Job) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[j.ID] = cancel
	r.mu.Unlock()
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.cancels, j.ID)
			r.mu.Unlock()
		}()
		r.runJob(ctx, j)
	}()
}

func (r *Runner) runJob(ctx context.Context, j *models.Job) {
	from := j.Status
	ok, err := r.store.TransitionJob(ctx, j.ID, from, models.JobStatusRunning)
	if err != nil {
		r.log.Error().Err(err).Str("job_id", j.ID).Msg("transition to running failed")
		return
	}
	if !ok {
		return // lost the race (e.g. cancelled concurrently); another actor owns it now
	}
	j.Status = models.JobStatusRunning

	account, err := r.store.GetAccount(ctx, j.AccountID)
	if err != nil {
		r.failJob(ctx, j, eris.Wrap(err, "load account"))
		return
	}

	switch j.Type {
	case models.JobTypeSync:
		err = r.sync.RunFullSync(ctx, account, j)
	case models.JobTypeTrash:
		err = r.runTrash(ctx, account.ID, j)
	case models.JobTypeDelete:
		err = r.runDelete(ctx, account.ID, j)
	case models.JobTypeApplyLabel:
		err = r.runApplyLabel(ctx, account.ID, j)
	default:
		err = fmt.Errorf("jobs: unknown job type %q", j.Type)
	}

	if err != nil {
		if eris.Is(err, context.Canceled) {
			return // pause/cancel already transitioned status; nothing more to do
		}
		r.failJob(ctx, j, err)
		return
	}

	if cerr := r.store.CompleteJob(ctx, j.ID, models.JobStatusCompleted, ""); cerr != nil {
		r.log.Error().Err(cerr).Str("job_id", j.ID).Msg("failed to mark job completed")
	}
}

func (r *Runner) failJob(ctx context.Context, j *models.Job, cause error) {
	r.log.Error().Err(cause).Str("job_id", j.ID).Str("type", string(j.Type)).Msg("job failed")
	n, rerr := r.store.IncrementRetry(ctx, j.ID)
	if rerr != nil {
		r.log.Error().Err(rerr).Str("job_id", j.ID).Msg("increment retry failed")
	}
	status := models.JobStatusFailed
	if n < 3 {
		status = models.JobStatusPaused // a future tick/resume call retries it
	}
	if err := r.store.CompleteJob(ctx, j.ID, status, cause.Error()); err != nil {
		r.log.Error().Err(err).Str("job_id", j.ID).Msg("failed to record job failure")
	}
}

// EnqueueSync creates (or returns) the account's active sync job, the
// entry point for both first-time and re-triggered full syncs.
func (r *Runner) EnqueueSync(ctx context.Context, accountID string) (*models.Job, error) {
	return r.enqueue(ctx, accountID, "", models.JobTypeSync, nil, nil, nil)
}

func (r *Runner) EnqueueTrash(ctx context.Context, accountID, userID string, f models.Filter) (*models.Job, error) {
	return r.enqueue(ctx, accountID, userID, models.JobTypeTrash, &f, nil, nil)
}

func (r *Runner) EnqueueDelete(ctx context.Context, accountID, userID string, f models.Filter) (*models.Job, error) {
	return r.enqueue(ctx, accountID, userID, models.JobTypeDelete, &f, nil, nil)
}

// EnqueueApplyLabel adds/removes a caller-chosen label set on every
// message matching f; enqueue_trash (+TRASH, -INBOX) and the archive
// case (-INBOX) are both expressible as calls to this same job type,
// but go through EnqueueTrash for the local mirror side effect that
// entails.
func (r *Runner) EnqueueApplyLabel(ctx context.Context, accountID, userID string, f models.Filter, add, remove []string) (*models.Job, error) {
	return r.enqueue(ctx, accountID, userID, models.JobTypeApplyLabel, &f, add, remove)
}

func (r *Runner) enqueue(ctx context.Context, accountID, userID string, t models.JobType, f *models.Filter, add, remove []string) (*models.Job, error) {
	existing, err := r.store.ListActiveJobByAccountAndType(ctx, accountID, t)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: check active job")
	}
	if existing != nil {
		return existing, nil
	}
	j := &models.Job{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		UserID:       userID,
		Type:         t,
		Status:       models.JobStatusPending,
		Filter:       f,
		AddLabels:    add,
		RemoveLabels: remove,
	}
	if err := r.store.CreateJob(ctx, j); err != nil {
		return nil, eris.Wrap(err, "jobs: create job")
	}
	r.spawn(j)
	return j, nil
}

// Cancel transitions a job to cancelled from any non-terminal state and
// interrupts its goroutine via context cancellation.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	return r.stopWith(ctx, jobID, models.JobStatusCancelled)
}

// Pause transitions a running job to paused; a later call to Resume (or
// the next process restart) replays it from next_page_token.
func (r *Runner) Pause(ctx context.Context, jobID string) error {
	return r.stopWith(ctx, jobID, models.JobStatusPaused)
}

func (r *Runner) stopWith(ctx context.Context, jobID string, to models.JobStatus) error {
	j, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return eris.Wrap(err, "jobs: load job")
	}
	if j.Status.Terminal() {
		return fmt.Errorf("jobs: job %s is already terminal (%s)", jobID, j.Status)
	}
	ok, err := r.store.TransitionJob(ctx, jobID, j.Status, to)
	if err != nil {
		return eris.Wrap(err, "jobs: transition job")
	}
	if !ok {
		return fmt.Errorf("jobs: job %s changed status concurrently, retry", jobID)
	}
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (r *Runner) Resume(ctx context.Context, jobID string) error {
	j, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return eris.Wrap(err, "jobs: load job")
	}
	if j.Status != models.JobStatusPaused {
		return fmt.Errorf("jobs: job %s is not paused (status=%s)", jobID, j.Status)
	}
	r.spawn(j)
	return nil
}

// tickDeltaSync runs one delta-sync pass over every account whose last
// full sync completed, on the cron schedule set by DeltaInterval.
func (r *Runner) tickDeltaSync(ctx context.Context) {
	accounts, err := r.store.ListAccountsByStatus(ctx, models.SyncStatusCompleted)
	if err != nil {
		r.log.Error().Err(err).Msg("delta sync: list completed accounts")
		return
	}
	for _, acc := range accounts {
		if err := r.sync.RunDeltaSync(ctx, acc); err != nil {
			if eris.Is(err, syncengine.ErrHistoryExpired) {
				r.log.Warn().Str("account_id", acc.ID).Msg("delta history expired, scheduling full resync")
				if _, err := r.EnqueueSync(ctx, acc.ID); err != nil {
					r.log.Error().Err(err).Str("account_id", acc.ID).Msg("failed to enqueue resync after history expiry")
				}
				continue
			}
			r.log.Error().Err(err).Str("account_id", acc.ID).Msg("delta sync failed")
		}
	}
}
