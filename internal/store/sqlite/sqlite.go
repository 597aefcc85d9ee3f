// Package sqlite is the embedded-engine implementation of store.Store,
// backed by modernc.org/sqlite, a pure-Go, cgo-free driver. It implements
// the same store.Store contract as internal/store/postgres so a
// self-hosted Inboxorcist binary can run with no external database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/inboxorcist/inboxorcist/internal/crypto"
)

type DB struct {
	conn *sql.DB
	box  *crypto.Box
}

// Open opens (creating if absent) a single-file SQLite database at path,
// enables WAL journaling and foreign keys, and bootstraps the schema
// idempotently.
func Open(ctx context.Context, path string, box *crypto.Box) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // single-writer file engine; avoid SQLITE_BUSY under WAL
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	db := &DB{conn: conn, box: box}
	if err := db.bootstrap(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// bootstrap applies the same logical schema as db/migrations/0001_init.up.sql
// translated to SQLite syntax. golang-migrate's sqlite3 driver requires
// cgo (mattn/go-sqlite3), which would defeat the point of a cgo-free
// embedded engine, so the embedded variant instead runs a small idempotent
// DDL bootstrap on every Open — documented in DESIGN.md.
func (db *DB) bootstrap(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, sqliteSchema)
	if err != nil {
		return fmt.Errorf("sqlite: bootstrap schema: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mail_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT 'gmail',
	email TEXT NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'idle',
	sync_started_at TEXT,
	sync_completed_at TEXT,
	sync_error TEXT,
	history_id INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	UNIQUE (user_id, provider, email)
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	account_id TEXT PRIMARY KEY REFERENCES mail_accounts(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	message_id TEXT NOT NULL,
	account_id TEXT NOT NULL REFERENCES mail_accounts(id) ON DELETE CASCADE,
	thread_id TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	from_email TEXT NOT NULL DEFAULT '',
	from_name TEXT NOT NULL DEFAULT '',
	labels TEXT NOT NULL DEFAULT '[]',
	category TEXT,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	has_attachments INTEGER NOT NULL DEFAULT 0,
	attachments TEXT,
	is_unread INTEGER NOT NULL DEFAULT 0,
	is_starred INTEGER NOT NULL DEFAULT 0,
	is_trash INTEGER NOT NULL DEFAULT 0,
	is_spam INTEGER NOT NULL DEFAULT 0,
	is_important INTEGER NOT NULL DEFAULT 0,
	internal_date INTEGER NOT NULL,
	synced_at INTEGER NOT NULL,
	unsubscribe_link TEXT,
	PRIMARY KEY (message_id, account_id)
);
CREATE INDEX IF NOT EXISTS idx_emails_account ON emails (account_id);
CREATE INDEX IF NOT EXISTS idx_emails_account_sender ON emails (account_id, from_email);
CREATE INDEX IF NOT EXISTS idx_emails_account_category ON emails (account_id, category);
CREATE INDEX IF NOT EXISTS idx_emails_account_date ON emails (account_id, internal_date);
CREATE INDEX IF NOT EXISTS idx_emails_account_size ON emails (account_id, size_bytes);
CREATE INDEX IF NOT EXISTS idx_emails_account_unread ON emails (account_id, is_unread);
CREATE INDEX IF NOT EXISTS idx_emails_account_starred ON emails (account_id, is_starred);
CREATE INDEX IF NOT EXISTS idx_emails_account_trash ON emails (account_id, is_trash);
CREATE INDEX IF NOT EXISTS idx_emails_account_spam ON emails (account_id, is_spam);
CREATE INDEX IF NOT EXISTS idx_emails_account_important ON emails (account_id, is_important);

CREATE TABLE IF NOT EXISTS senders (
	account_id TEXT NOT NULL REFERENCES mail_accounts(id) ON DELETE CASCADE,
	email TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	count INTEGER NOT NULL DEFAULT 0,
	total_size INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (account_id, email)
);
CREATE INDEX IF NOT EXISTS idx_senders_account_count ON senders (account_id, count DESC);

CREATE TABLE IF NOT EXISTS deleted_emails (
	message_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	thread_id TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	from_email TEXT NOT NULL DEFAULT '',
	from_name TEXT NOT NULL DEFAULT '',
	labels TEXT NOT NULL DEFAULT '[]',
	category TEXT,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	has_attachments INTEGER NOT NULL DEFAULT 0,
	attachments TEXT,
	is_unread INTEGER NOT NULL DEFAULT 0,
	is_starred INTEGER NOT NULL DEFAULT 0,
	is_spam INTEGER NOT NULL DEFAULT 0,
	is_important INTEGER NOT NULL DEFAULT 0,
	internal_date INTEGER NOT NULL,
	unsubscribe_link TEXT,
	deleted_at INTEGER NOT NULL,
	PRIMARY KEY (message_id, account_id)
);

CREATE TABLE IF NOT EXISTS unsubscribed_senders (
	account_id TEXT NOT NULL REFERENCES mail_accounts(id) ON DELETE CASCADE,
	sender_email TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (account_id, sender_email)
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES mail_accounts(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	filter_json TEXT,
	add_labels TEXT,
	remove_labels TEXT,
	resolved_ids TEXT,
	total_messages INTEGER NOT NULL DEFAULT 0,
	processed_messages INTEGER NOT NULL DEFAULT 0,
	next_page_token TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	resumed_at TEXT,
	processed_at_resume INTEGER NOT NULL DEFAULT 0,
	started_at TEXT,
	completed_at TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_jobs_account_type_status ON jobs (account_id, type, status);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);

CREATE TABLE IF NOT EXISTS ai_query_cache (
	query_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES mail_accounts(id) ON DELETE CASCADE,
	filter_json TEXT NOT NULL,
	count INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`
