package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/inboxorcist/inboxorcist/internal/crypto"
	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store/postgres"
)

// startTestDB spins a disposable Postgres container, opens the server
// engine against it (which runs the embedded migrations itself), and
// returns a ready store plus a cleanup func.
func startTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers integration test in -short mode")
	}
	ctx := context.Background()

	container, err := postgrescontainer.Run(ctx,
		"postgres:16-alpine",
		postgrescontainer.WithDatabase("inboxorcist_test"),
		postgrescontainer.WithUsername("inboxorcist"),
		postgrescontainer.WithPassword("inboxorcist"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(90*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	box, err := crypto.NewBox("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	db, err := postgres.New(ctx, dsn, box)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAccountLifecycle(t *testing.T) {
	db := startTestDB(t)
	ctx := context.Background()

	acc := &models.Account{
		ID:         "acc_test1",
		UserID:     "user_1",
		Provider:   "gmail",
		Email:      "person@example.com",
		SyncStatus: models.SyncStatusIdle,
	}
	require.NoError(t, db.CreateAccount(ctx, acc))

	got, err := db.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, acc.Email, got.Email)
	require.Equal(t, models.SyncStatusIdle, got.SyncStatus)

	require.NoError(t, db.UpdateAccountSyncState(ctx, acc.ID, models.SyncStatusSyncing, nil, nil))
	got, err = db.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusSyncing, got.SyncStatus)

	require.NoError(t, db.SetHistoryID(ctx, acc.ID, 12345))
	got, err = db.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(12345), got.HistoryID)
}

func TestTokenRoundTripIsEncryptedAtRest(t *testing.T) {
	db := startTestDB(t)
	ctx := context.Background()

	acc := &models.Account{ID: "acc_test2", UserID: "user_1", Provider: "gmail", Email: "a@example.com", SyncStatus: models.SyncStatusIdle}
	require.NoError(t, db.CreateAccount(ctx, acc))

	tok := &models.OAuthToken{
		AccountID:    acc.ID,
		AccessToken:  "ya29.super-secret-access-token",
		RefreshToken: "1//super-secret-refresh-token",
		Scope:        "gmail.modify",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, db.UpsertToken(ctx, tok))

	got, err := db.GetToken(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, tok.AccessToken, got.AccessToken)
	require.Equal(t, tok.RefreshToken, got.RefreshToken)
}

func TestJobCASTransitionRejectsStaleFromState(t *testing.T) {
	db := startTestDB(t)
	ctx := context.Background()

	acc := &models.Account{ID: "acc_test3", UserID: "user_1", Provider: "gmail", Email: "b@example.com", SyncStatus: models.SyncStatusIdle}
	require.NoError(t, db.CreateAccount(ctx, acc))

	job := &models.Job{ID: "job_test1", AccountID: acc.ID, Type: models.JobTypeSync, Status: models.JobStatusPending}
	require.NoError(t, db.CreateJob(ctx, job))

	ok, err := db.TransitionJob(ctx, job.ID, models.JobStatusPending, models.JobStatusRunning)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.TransitionJob(ctx, job.ID, models.JobStatusPending, models.JobStatusRunning)
	require.NoError(t, err)
	require.False(t, ok, "transitioning from a stale from-state must fail")
}
