package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/chippeddog/english.now-sub000/internal/queue"
)

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

const (
	defaultPollInterval = 500 * time.Millisecond
	sweepInterval       = 5 * time.Second
)

type worker struct {
	opts    queue.WorkerOptions
	handler queue.Handler
}

// Queue is a PostgreSQL-backed job queue sharing a single [pgxpool.Pool].
// Multiple processes may run workers against the same database; the
// singleton index and SKIP LOCKED fetch keep them from stepping on each
// other. All methods are safe for concurrent use.
type Queue struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	workers map[string]worker
}

// New connects to the database at dsn and ensures the jobs schema exists.
func New(ctx context.Context, dsn string) (*Queue, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("queue: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Queue{pool: pool, workers: make(map[string]worker)}, nil
}

// NewWithPool wraps an existing pool, ensuring the jobs schema exists.
// The caller keeps ownership of the pool.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Queue, error) {
	if err := Migrate(ctx, pool); err != nil {
		return nil, err
	}
	return &Queue{pool: pool, workers: make(map[string]worker)}, nil
}

// Close releases the connection pool.
func (q *Queue) Close() {
	q.pool.Close()
}

// Enqueue implements [queue.Queue]. A job dropped by singleton-key
// deduplication yields an empty job ID and no error.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts queue.Options) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload for %q: %w", name, err)
	}

	const insert = `
		INSERT INTO jobs
		    (id, name, payload, singleton_key, retry_limit, retry_delay_ms, retry_backoff, expire_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name, singleton_key)
		    WHERE state IN ('created', 'active') AND singleton_key <> ''
		    DO NOTHING`

	id := uuid.NewString()
	tag, err := q.pool.Exec(ctx, insert,
		id,
		name,
		data,
		opts.SingletonKey,
		opts.RetryLimit,
		opts.RetryDelay.Milliseconds(),
		opts.RetryBackoff,
		opts.Expire.Milliseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		// Deduplicated against an existing non-terminal job.
		return "", nil
	}
	return id, nil
}

// RegisterWorker implements [queue.Queue].
func (q *Queue) RegisterWorker(name string, opts queue.WorkerOptions, handler queue.Handler) error {
	if handler == nil {
		return fmt.Errorf("queue: nil handler for %q", name)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.workers[name]; exists {
		return fmt.Errorf("queue: worker for %q already registered", name)
	}
	q.workers[name] = worker{opts: opts, handler: handler}
	return nil
}

// Run starts the polling loops of every registered worker plus the
// expiration sweeper and blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	workers := make(map[string]worker, len(q.workers))
	for name, w := range q.workers {
		workers[name] = w
	}
	q.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for name, w := range workers {
		for i := 0; i < w.opts.Concurrency; i++ {
			g.Go(func() error {
				q.pollLoop(ctx, name, w)
				return nil
			})
		}
	}
	g.Go(func() error {
		q.sweepLoop(ctx)
		return nil
	})

	_ = g.Wait()
	return ctx.Err()
}

// fetchedJob carries the retry parameters read back with the job row so the
// failure path does not need a second round trip.
type fetchedJob struct {
	queue.Job
	retryLimit   int
	retryDelayMS int64
	retryBackoff bool

	// epoch fences settlement against expiration: complete/fail/retry only
	// match the row while it still belongs to this claim. Without it an
	// execution abandoned by the sweeper could settle the job out from
	// under the worker that re-claimed it.
	epoch int64
}

func (q *Queue) pollLoop(ctx context.Context, name string, w worker) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		for {
			j, err := q.fetch(ctx, name)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("job fetch failed", "name", name, "err", err)
				}
				break
			}
			if j == nil {
				break
			}
			q.execute(ctx, j, w.handler)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fetch claims the oldest runnable job of the given name, or returns nil
// when none is due.
func (q *Queue) fetch(ctx context.Context, name string) (*fetchedJob, error) {
	const claim = `
		WITH next AS (
		    SELECT id
		    FROM   jobs
		    WHERE  name = $1
		      AND  state = 'created'
		      AND  start_after <= now()
		    ORDER  BY created_at
		    LIMIT  1
		    FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET    state = 'active', started_at = now(), epoch = j.epoch + 1
		FROM   next
		WHERE  j.id = next.id
		RETURNING j.id, j.name, j.payload, j.singleton_key, j.retry_count, j.created_at,
		          j.retry_limit, j.retry_delay_ms, j.retry_backoff, j.epoch`

	row := q.pool.QueryRow(ctx, claim, name)

	var j fetchedJob
	err := row.Scan(
		&j.ID,
		&j.Name,
		&j.Payload,
		&j.SingletonKey,
		&j.RetryCount,
		&j.CreatedAt,
		&j.retryLimit,
		&j.retryDelayMS,
		&j.retryBackoff,
		&j.epoch,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim job: %w", err)
	}
	return &j, nil
}

func (q *Queue) execute(ctx context.Context, j *fetchedJob, handler queue.Handler) {
	err := handler(ctx, &j.Job)
	if err == nil {
		q.complete(ctx, j.ID, j.epoch)
		return
	}

	fatal := queue.IsFatal(err)
	failed := fatal || j.RetryCount >= j.retryLimit

	if failed {
		q.fail(ctx, j.ID, j.epoch)
	} else {
		delay := queue.Backoff(time.Duration(j.retryDelayMS)*time.Millisecond, j.RetryCount, j.retryBackoff)
		q.retry(ctx, j.ID, j.epoch, delay)
	}
	slog.Warn("job failed",
		"job_id", j.ID,
		"name", j.Name,
		"retry_count", j.RetryCount,
		"permanent", failed,
		"err", err,
	)
}

func (q *Queue) complete(ctx context.Context, id string, epoch int64) {
	const done = `
		UPDATE jobs
		SET    state = 'completed', completed_at = now()
		WHERE  id = $1 AND state = 'active' AND epoch = $2`
	if _, err := q.pool.Exec(ctx, done, id, epoch); err != nil {
		slog.Error("job completion write failed", "job_id", id, "err", err)
	}
}

func (q *Queue) fail(ctx context.Context, id string, epoch int64) {
	const failed = `
		UPDATE jobs
		SET    state = 'failed', completed_at = now(), retry_count = retry_count + 1
		WHERE  id = $1 AND state = 'active' AND epoch = $2`
	if _, err := q.pool.Exec(ctx, failed, id, epoch); err != nil {
		slog.Error("job failure write failed", "job_id", id, "err", err)
	}
}

func (q *Queue) retry(ctx context.Context, id string, epoch int64, delay time.Duration) {
	const reschedule = `
		UPDATE jobs
		SET    state = 'created',
		       retry_count = retry_count + 1,
		       started_at = NULL,
		       start_after = now() + ($3::bigint * interval '1 millisecond')
		WHERE  id = $1 AND state = 'active' AND epoch = $2`
	if _, err := q.pool.Exec(ctx, reschedule, id, epoch, delay.Milliseconds()); err != nil {
		slog.Error("job retry write failed", "job_id", id, "err", err)
	}
}

func (q *Queue) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.sweepExpired(ctx); err != nil && ctx.Err() == nil {
				slog.Error("expire sweep failed", "err", err)
			}
		}
	}
}

// sweepExpired abandons active jobs that outlived their expiration window.
// The lost execution counts as a failed attempt for retry accounting.
func (q *Queue) sweepExpired(ctx context.Context) error {
	const sweep = `
		UPDATE jobs
		SET    state = CASE WHEN retry_count >= retry_limit THEN 'failed' ELSE 'created' END,
		       completed_at = CASE WHEN retry_count >= retry_limit THEN now() ELSE NULL END,
		       retry_count = retry_count + 1,
		       started_at = NULL,
		       start_after = now() + (retry_delay_ms
		           * (CASE WHEN retry_backoff THEN power(2, retry_count) ELSE 1 END)
		           * interval '1 millisecond')
		WHERE  state = 'active'
		  AND  expire_ms > 0
		  AND  started_at + (expire_ms * interval '1 millisecond') < now()`

	tag, err := q.pool.Exec(ctx, sweep)
	if err != nil {
		return fmt.Errorf("queue: sweep expired: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Warn("expired stuck jobs", "count", n)
	}
	return nil
}

// StateOf returns the current state of a job, for tests and introspection.
func (q *Queue) StateOf(ctx context.Context, jobID string) (queue.State, error) {
	var state string
	err := q.pool.QueryRow(ctx, `SELECT state FROM jobs WHERE id = $1`, jobID).Scan(&state)
	if err != nil {
		return "", fmt.Errorf("queue: state of %s: %w", jobID, err)
	}
	return queue.State(state), nil
}
