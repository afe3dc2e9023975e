// Package inmem provides a process-local implementation of [queue.Queue].
//
// It honours the full queue contract — singleton-key deduplication, retry
// with backoff, expiration of stuck jobs — but keeps all state in memory, so
// jobs do not survive a restart. Tests and single-process deployments use it;
// production setups use queue/postgres.
package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chippeddog/english.now-sub000/internal/queue"
)

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

const (
	defaultPollInterval = 500 * time.Millisecond
	sweepInterval       = time.Second
)

// job is the queue-internal job record.
type job struct {
	queue.Job
	opts       queue.Options
	state      queue.State
	startAfter time.Time
	startedAt  time.Time

	// epoch fences completion against expiration: an execution may only
	// settle the job if the job was not expired (and possibly refetched)
	// in the meantime.
	epoch int
}

type worker struct {
	opts    queue.WorkerOptions
	handler queue.Handler
}

// Queue is an in-memory job queue. All methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*job
	workers map[string]worker

	// now is replaceable in tests.
	now func() time.Time
}

// New returns an empty in-memory queue.
func New() *Queue {
	return &Queue{
		jobs:    make(map[string]*job),
		workers: make(map[string]worker),
		now:     time.Now,
	}
}

// Enqueue implements [queue.Queue]. It returns an empty job ID when the job
// was dropped by singleton-key deduplication.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts queue.Options) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload for %q: %w", name, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if opts.SingletonKey != "" {
		for _, j := range q.jobs {
			if j.Name == name && j.SingletonKey == opts.SingletonKey && !j.state.IsTerminal() {
				return "", nil
			}
		}
	}

	id := uuid.NewString()
	q.jobs[id] = &job{
		Job: queue.Job{
			ID:           id,
			Name:         name,
			Payload:      data,
			SingletonKey: opts.SingletonKey,
			CreatedAt:    q.now(),
		},
		opts:       opts,
		state:      queue.StateCreated,
		startAfter: q.now(),
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

func (q *Queue) pollLoop(ctx context.Context, name string, w worker) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		for {
			j, epoch := q.fetch(name)
			if j == nil {
				break
			}
			q.execute(ctx, j, epoch, w.handler)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fetch atomically claims the oldest runnable job of the given name.
func (q *Queue) fetch(name string) (*job, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*job
	now := q.now()
	for _, j := range q.jobs {
		if j.Name == name && j.state == queue.StateCreated && !j.startAfter.After(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, 0
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	j := candidates[0]
	j.state = queue.StateActive
	j.startedAt = now
	j.epoch++
	return j, j.epoch
}

func (q *Queue) execute(ctx context.Context, j *job, epoch int, handler queue.Handler) {
	jobCopy := j.Job
	jobCopy.RetryCount = j.RetryCount

	err := handler(ctx, &jobCopy)

	q.mu.Lock()
	defer q.mu.Unlock()

	// An expired execution has been abandoned; its outcome no longer counts.
	if j.state != queue.StateActive || j.epoch != epoch {
		return
	}
	if err == nil {
		j.state = queue.StateCompleted
		return
	}
	q.settleFailureLocked(j, queue.IsFatal(err))
	slog.Warn("job failed", "job_id", j.ID, "name", j.Name, "state", j.state, "retry_count", j.RetryCount, "err", err)
}

// settleFailureLocked applies retry accounting to a failed or expired
// execution. Callers hold q.mu.
func (q *Queue) settleFailureLocked(j *job, fatal bool) {
	if fatal || j.RetryCount >= j.opts.RetryLimit {
		j.state = queue.StateFailed
		return
	}
	j.startAfter = q.now().Add(queue.Backoff(j.opts.RetryDelay, j.RetryCount, j.opts.RetryBackoff))
	j.RetryCount++
	j.state = queue.StateCreated
}

func (q *Queue) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweepExpired()
		}
	}
}

// sweepExpired abandons active jobs that outlived their expiration window,
// counting the lost execution as a failed attempt.
func (q *Queue) sweepExpired() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, j := range q.jobs {
		if j.state != queue.StateActive || j.opts.Expire <= 0 {
			continue
		}
		if now.Sub(j.startedAt) < j.opts.Expire {
			continue
		}
		slog.Warn("job expired", "job_id", j.ID, "name", j.Name, "retry_count", j.RetryCount)
		q.settleFailureLocked(j, false)
	}
}

// Pending returns the number of jobs for name waiting in the created state,
// for tests and introspection.
func (q *Queue) Pending(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.Name == name && j.state == queue.StateCreated {
			n++
		}
	}
	return n
}

// StateOf returns the current state of a job, for tests and introspection.
func (q *Queue) StateOf(jobID string) (queue.State, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return "", false
	}
	return j.state, true
}
