package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/inboxorcist/inboxorcist/internal/authtoken"
	"github.com/inboxorcist/inboxorcist/internal/config"
	"github.com/inboxorcist/inboxorcist/internal/crypto"
	"github.com/inboxorcist/inboxorcist/internal/gmailclient"
	"github.com/inboxorcist/inboxorcist/internal/jobs"
	"github.com/inboxorcist/inboxorcist/internal/store/sqlite"
	"github.com/inboxorcist/inboxorcist/internal/syncengine"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

var oauthConfigStub = oauth2.Config{ClientID: "test-client"}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	box, err := crypto.NewBox(testEncryptionKey)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "inboxorcist.db")
	st, err := sqlite.Open(t.Context(), dbPath, box)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gmail := gmailclient.New()
	tokens := authtoken.NewAccessor(st, &oauthConfigStub)
	th := throttle.New()
	engine := syncengine.New(st, gmail, tokens, th, 500, 100, testLogger())
	runner := jobs.New(st, gmail, tokens, engine, th, config.AppConfig{}.Sync.DeltaInterval, 1000, testLogger())

	return setupRouter(st, runner, th, "test-client")
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerStartupWithValidConfig(t *testing.T) {
	r := newTestRouter(t)
	require.NotNil(t, r)
}

func TestServerStartupWithMissingConfig(t *testing.T) {
	cfg, err := config.LoadConfig("/tmp/definitely-does-not-exist.json")
	require.NoError(t, err)
	require.NotNil(t, cfg)
}
