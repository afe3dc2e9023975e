// Package postgres provides the PostgreSQL-backed implementation of
// [store.Store]. Sessions and attempts live in two tables; composite values
// (items, summaries, word results, scores) are stored as JSONB so the schema
// does not have to track every scoring field individually.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id              UUID         PRIMARY KEY,
    user_id         TEXT         NOT NULL,
    status          TEXT         NOT NULL DEFAULT 'active',
    items           JSONB        NOT NULL DEFAULT '[]',
    summary         JSONB,
    feedback_status TEXT         NOT NULL DEFAULT 'pending',
    feedback        TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at    TIMESTAMPTZ,
    deleted_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sessions_user
    ON sessions (user_id, created_at DESC)
    WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_sessions_status
    ON sessions (status)
    WHERE deleted_at IS NULL;
`

const ddlAttempts = `
CREATE TABLE IF NOT EXISTS attempts (
    id           UUID         PRIMARY KEY,
    session_id   UUID         NOT NULL REFERENCES sessions (id),
    item_index   INT          NOT NULL DEFAULT 0,
    audio        BYTEA        NOT NULL DEFAULT ''::bytea,
    transcript   TEXT         NOT NULL DEFAULT '',
    scores       JSONB,
    word_results JSONB,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_session
    ON attempts (session_id, created_at);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlSessions, ddlAttempts} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
