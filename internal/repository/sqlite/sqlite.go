// Package sqlite opens the relational store and applies the schema.
// The *sql.DB handle is injected into repositories; there is no ambient
// global. Pool limits are explicit so connections are capped, idle-reaped,
// and lifetime-bounded.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Config holds connection pool settings.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open opens the database, configures the pool, and applies the schema.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", cfg.Path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	handle.SetMaxOpenConns(cfg.MaxOpenConns)
	handle.SetMaxIdleConns(cfg.MaxIdleConns)
	handle.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	handle.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := handle.ExecContext(ctx, schema); err != nil {
		handle.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return handle, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL,
	storage_key   TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	text          TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user_status ON documents(user_id, status);

CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	model           TEXT NOT NULL DEFAULT '',
	sources         TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS usage_records (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	cost_cents INTEGER NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_user ON usage_records(user_id, created_at);
`
