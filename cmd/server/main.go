package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/inboxorcist/inboxorcist/internal/api"
	"github.com/inboxorcist/inboxorcist/internal/authtoken"
	"github.com/inboxorcist/inboxorcist/internal/config"
	"github.com/inboxorcist/inboxorcist/internal/crypto"
	"github.com/inboxorcist/inboxorcist/internal/gmailclient"
	"github.com/inboxorcist/inboxorcist/internal/jobs"
	"github.com/inboxorcist/inboxorcist/internal/store"
	"github.com/inboxorcist/inboxorcist/internal/store/postgres"
	"github.com/inboxorcist/inboxorcist/internal/store/sqlite"
	"github.com/inboxorcist/inboxorcist/internal/syncengine"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

// zerologMiddleware logs each HTTP request using zerolog.
func zerologMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).Dur("duration", time.Since(start)).Msg("http request")
	})
}

func main() {
	cfg := mustLoadConfig()
	setupLogger(cfg)

	buildSHA := os.Getenv("GIT_COMMIT")
	if buildSHA == "" {
		buildSHA = "unknown"
	}
	log.Info().Str("build_sha", buildSHA).
		Str("go_version", runtime.Version()).
		Time("startup_time", time.Now()).
		Msg("starting inboxorcist server")

	box, err := crypto.NewBox(cfg.Encryption.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryption box")
	}

	st := mustOpenStore(cfg, box)
	defer st.Close()
	log.Info().Bool("embedded_engine", cfg.UsesEmbeddedEngine()).Msg("store opened")

	gmail := gmailclient.New()
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Scopes:       []string{"https://www.googleapis.com/auth/gmail.modify", "openid", "profile", "email"},
		Endpoint:     google.Endpoint,
	}
	tokens := authtoken.NewAccessor(st, oauthCfg)
	th := throttle.New()
	engine := syncengine.New(st, gmail, tokens, th, cfg.Sync.PageSize, cfg.Gmail.BatchSize, log.Logger)
	runner := jobs.New(st, gmail, tokens, engine, th, cfg.Sync.DeltaInterval, cfg.Gmail.MutationBatchSize, log.Logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := runner.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start job runner")
	}
	defer runner.Stop()

	r := setupRouter(st, runner, th, cfg.Google.ClientID)
	srv := setupServer(cfg, r)

	setupGracefulShutdown(srv, runner)

	log.Info().Msgf("server is ready to handle requests at :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen")
	}
}

func mustLoadConfig() *config.AppConfig {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	return cfg
}

func setupLogger(cfg *config.AppConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if cfg != nil && cfg.Server.LogLevel != "" {
		if level, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		} else {
			log.Warn().Str("level", cfg.Server.LogLevel).Msg("invalid log level, using default")
		}
	}
}

// mustOpenStore picks the server (postgres) or embedded (sqlite) engine
// per cfg.DB, mirroring config.AppConfig.UsesEmbeddedEngine.
func mustOpenStore(cfg *config.AppConfig, box *crypto.Box) store.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.UsesEmbeddedEngine() {
		db, err := sqlite.Open(ctx, cfg.DB.DataDir, box)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open embedded sqlite store")
		}
		return db
	}
	db, err := postgres.New(ctx, cfg.DB.URL, box)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres store")
	}
	return db
}

func setupRouter(st store.Store, runner *jobs.Runner, th *throttle.Throttle, oauthClientID string) http.Handler {
	r := chi.NewRouter()
	r.Use(zerologMiddleware)

	api.RegisterAgentRoutes(r, st, runner, th, oauthClientID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return r
}

func setupServer(cfg *config.AppConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		Addr:         ":" + cfg.Server.Port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
}

func setupGracefulShutdown(srv *http.Server, runner *jobs.Runner) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down server...")
		runner.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	}()
}
