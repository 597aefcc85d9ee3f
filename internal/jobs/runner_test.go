package jobs_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/inboxorcist/inboxorcist/internal/authtoken"
	"github.com/inboxorcist/inboxorcist/internal/crypto"
	"github.com/inboxorcist/inboxorcist/internal/gmailclient"
	"github.com/inboxorcist/inboxorcist/internal/jobs"
	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store/sqlite"
	"github.com/inboxorcist/inboxorcist/internal/syncengine"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

func newTestRunner(t *testing.T) (*jobs.Runner, *sqlite.DB) {
	t.Helper()
	box, err := crypto.NewBox("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), box)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gmail := gmailclient.New()
	tokens := authtoken.NewAccessor(st, &oauth2.Config{ClientID: "test"})
	th := throttle.New()
	engine := syncengine.New(st, gmail, tokens, th, 500, 100, zerolog.New(io.Discard))
	runner := jobs.New(st, gmail, tokens, engine, th, 0, 1000, zerolog.New(io.Discard))
	return runner, st
}

func TestEnqueueSyncReturnsExistingActiveJob(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx := context.Background()

	first, err := runner.EnqueueSync(ctx, "acc_1")
	require.NoError(t, err)

	second, err := runner.EnqueueSync(ctx, "acc_1")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "a second enqueue against the same account+type must return the existing active job, not create a duplicate")
}

func TestCancelRejectsTerminalJob(t *testing.T) {
	runner, st := newTestRunner(t)
	ctx := context.Background()

	job := &models.Job{ID: "job_done", AccountID: "acc_2", Type: models.JobTypeSync, Status: models.JobStatusCompleted}
	require.NoError(t, st.CreateJob(ctx, job))
	require.NoError(t, st.CompleteJob(ctx, job.ID, models.JobStatusCompleted, ""))

	err := runner.Cancel(ctx, job.ID)
	require.Error(t, err)
}

func TestResumeRejectsNonPausedJob(t *testing.T) {
	runner, st := newTestRunner(t)
	ctx := context.Background()

	job := &models.Job{ID: "job_pending", AccountID: "acc_3", Type: models.JobTypeTrash, Status: models.JobStatusPending}
	require.NoError(t, st.CreateJob(ctx, job))

	err := runner.Resume(ctx, job.ID)
	require.Error(t, err)
}

func TestPauseTransitionsJobStatus(t *testing.T) {
	runner, st := newTestRunner(t)
	ctx := context.Background()

	job := &models.Job{ID: "job_running", AccountID: "acc_4", Type: models.JobTypeDelete, Status: models.JobStatusPending}
	require.NoError(t, st.CreateJob(ctx, job))
	ok, err := st.TransitionJob(ctx, job.ID, models.JobStatusPending, models.JobStatusRunning)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, runner.Pause(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPaused, got.Status)
}

func TestEnqueueApplyLabelPersistsAddAndRemoveSets(t *testing.T) {
	runner, st := newTestRunner(t)
	ctx := context.Background()

	f := models.Filter{}
	j, err := runner.EnqueueApplyLabel(ctx, "acc_5", "user_1", f, []string{"IMPORTANT"}, []string{"INBOX"})
	require.NoError(t, err)

	got, err := st.GetJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"IMPORTANT"}, got.AddLabels)
	require.Equal(t, []string{"INBOX"}, got.RemoveLabels)
}
