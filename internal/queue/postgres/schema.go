// Package postgres provides a PostgreSQL-backed implementation of
// [queue.Queue].
//
// Jobs live in a single jobs table. A partial unique index over
// (name, singleton_key) restricted to non-terminal states implements
// singleton deduplication entirely inside the database, so concurrent
// enqueuers on different processes cannot race a duplicate in. Fetching uses
// FOR UPDATE SKIP LOCKED so multiple worker processes can share one queue.
// Each claim bumps the row's epoch, and settlement writes carry the claiming
// epoch in their WHERE clause: an execution abandoned by the expiration
// sweeper can no longer settle the job once another worker has re-claimed it.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlJobs = `
CREATE TABLE IF NOT EXISTS jobs (
    id             UUID         PRIMARY KEY,
    name           TEXT         NOT NULL,
    payload        JSONB        NOT NULL DEFAULT '{}',
    state          TEXT         NOT NULL DEFAULT 'created',
    epoch          BIGINT       NOT NULL DEFAULT 0,
    singleton_key  TEXT         NOT NULL DEFAULT '',
    retry_limit    INT          NOT NULL DEFAULT 0,
    retry_count    INT          NOT NULL DEFAULT 0,
    retry_delay_ms BIGINT       NOT NULL DEFAULT 0,
    retry_backoff  BOOLEAN      NOT NULL DEFAULT FALSE,
    expire_ms      BIGINT       NOT NULL DEFAULT 0,
    start_after    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    started_at     TIMESTAMPTZ,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_fetch
    ON jobs (name, state, start_after);

CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_singleton
    ON jobs (name, singleton_key)
    WHERE state IN ('created', 'active') AND singleton_key <> '';
`

// Migrate creates the jobs table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlJobs); err != nil {
		return fmt.Errorf("queue migrate: %w", err)
	}
	return nil
}
