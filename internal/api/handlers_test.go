package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/inboxorcist/inboxorcist/internal/api"
	"github.com/inboxorcist/inboxorcist/internal/authtoken"
	"github.com/inboxorcist/inboxorcist/internal/crypto"
	"github.com/inboxorcist/inboxorcist/internal/gmailclient"
	"github.com/inboxorcist/inboxorcist/internal/jobs"
	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store/sqlite"
	"github.com/inboxorcist/inboxorcist/internal/syncengine"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func newTestHarness(t *testing.T) (*sqlite.DB, *jobs.Runner, *throttle.Throttle) {
	t.Helper()
	box, err := crypto.NewBox("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), box)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gmail := gmailclient.New()
	tokens := authtoken.NewAccessor(st, &oauth2.Config{ClientID: "test"})
	th := throttle.New()
	engine := syncengine.New(st, gmail, tokens, th, 500, 100, testLogger())
	runner := jobs.New(st, gmail, tokens, engine, th, 0, 1000, testLogger())
	return st, runner, th
}

// withAuthedAccount registers the chi URL param and a verified-caller
// context the way AuthMiddleware would after a successful bearer check.
func withAuthedAccount(r *http.Request, accountID, userID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("accountID", accountID)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, api.ContextUserIDKey, userID)
	return r.WithContext(ctx)
}

func TestQueryEmailsReturnsEmptyResultForFreshAccount(t *testing.T) {
	st, _, _ := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAccount(ctx, &models.Account{ID: "acc_1", UserID: "u1", Provider: "gmail", Email: "a@example.com", SyncStatus: models.SyncStatusIdle}))

	h := api.NewQueryHandler(st)
	req := withAuthedAccount(httptest.NewRequest(http.MethodGet, "/api/accounts/acc_1/emails", nil), "acc_1", "u1")
	rec := httptest.NewRecorder()

	h.QueryEmails(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":0`)
}

func TestHealthReturns404ForUnknownAccount(t *testing.T) {
	st, _, th := newTestHarness(t)
	h := api.NewHealthHandler(st, th)

	req := withAuthedAccount(httptest.NewRequest(http.MethodGet, "/api/accounts/missing/health", nil), "missing", "u1")
	rec := httptest.NewRecorder()

	h.Health(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthReportsIdleAccountWithNoActiveJob(t *testing.T) {
	st, _, th := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAccount(ctx, &models.Account{ID: "acc_2", UserID: "u1", Provider: "gmail", Email: "b@example.com", SyncStatus: models.SyncStatusIdle}))

	h := api.NewHealthHandler(st, th)
	req := withAuthedAccount(httptest.NewRequest(http.MethodGet, "/api/accounts/acc_2/health", nil), "acc_2", "u1")
	rec := httptest.NewRecorder()

	h.Health(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"sync_status":"idle"`)
}

func TestEnqueueSyncViaMutationHandler(t *testing.T) {
	st, runner, _ := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAccount(ctx, &models.Account{ID: "acc_3", UserID: "u1", Provider: "gmail", Email: "c@example.com", SyncStatus: models.SyncStatusIdle}))

	h := api.NewMutationHandler(st, runner)
	req := withAuthedAccount(httptest.NewRequest(http.MethodPost, "/api/accounts/acc_3/sync", nil), "acc_3", "u1")
	rec := httptest.NewRecorder()

	h.EnqueueSync(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"AccountID":"acc_3"`)
}

func TestCancelUnknownJobReturnsConflict(t *testing.T) {
	_, runner, _ := newTestHarness(t)
	h := api.NewMutationHandler(nil, runner)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", "does-not-exist")
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/does-not-exist/cancel", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	h.CancelJob(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}
