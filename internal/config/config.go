package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
}

type ServerConfig struct {
	Port     string `json:"port"`
	LogLevel string `json:"log_level"` // e.g. "info", "debug", "warn", "error"
}

// DBConfig selects and configures the relational engine: a non-empty URL
// selects the postgres server engine (pgxpool); an empty URL with a
// non-empty DataDir selects the embedded sqlite engine, one file per
// account under DataDir.
type DBConfig struct {
	URL     string `json:"url"`
	DataDir string `json:"data_dir"`
}

// GmailConfig carries the adaptive throttle and batch-size tunables.
type GmailConfig struct {
	TargetMsgPerSec   int `json:"target_msg_per_sec"`
	MaxConcurrency    int `json:"max_concurrency"`
	BatchSize         int `json:"batch_size"`
	MutationBatchSize int `json:"mutation_batch_size"`
}

// SyncConfig carries the pagination and delta-interval tunables.
type SyncConfig struct {
	PageSize      int           `json:"page_size"`
	DeltaInterval time.Duration `json:"delta_interval"`
}

// EncryptionConfig holds the at-rest key for OAuth tokens (internal/crypto).
type EncryptionConfig struct {
	Key string `json:"key"`
}

type AppConfig struct {
	Google     GoogleConfig     `json:"google"`
	Server     ServerConfig     `json:"server"`
	DB         DBConfig         `json:"db"`
	Gmail      GmailConfig      `json:"gmail"`
	Sync       SyncConfig       `json:"sync"`
	Encryption EncryptionConfig `json:"encryption"`
}

func defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{Port: "8080", LogLevel: "info"},
		Gmail: GmailConfig{
			TargetMsgPerSec:   47,
			MaxConcurrency:    40,
			BatchSize:         100,
			MutationBatchSize: 1000,
		},
		Sync: SyncConfig{
			PageSize:      500,
			DeltaInterval: 5 * time.Minute,
		},
	}
}

// LoadConfig reads a JSON config file at path if present, falling back to
// environment variables for every field not set in the file.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := defaults()

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		dec := json.NewDecoder(f)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		return &cfg, nil
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REDIRECT_URL"); v != "" {
		cfg.Google.RedirectURL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DB.URL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DB.DataDir = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		cfg.Encryption.Key = v
	}
	if v := os.Getenv("GMAIL_TARGET_MSG_PER_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gmail.TargetMsgPerSec = n
		}
	}
	if v := os.Getenv("GMAIL_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gmail.MaxConcurrency = n
		}
	}
	if v := os.Getenv("SYNC_DELTA_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.DeltaInterval = d
		}
	}
}

// UsesEmbeddedEngine reports whether the sqlite (embedded) engine was
// selected instead of the postgres server engine.
func (c *AppConfig) UsesEmbeddedEngine() bool {
	return c.DB.URL == "" && c.DB.DataDir != ""
}
