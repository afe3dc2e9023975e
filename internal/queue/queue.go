// Package queue defines the job queue abstraction the processing pipeline
// runs on: named jobs with payloads, singleton-key deduplication, bounded
// retries with optional exponential backoff, and expiration of stuck jobs.
//
// Two implementations exist: queue/postgres persists jobs in PostgreSQL and
// survives restarts; queue/inmem keeps them in process memory for tests and
// single-process deployments.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StateCreated   State = "created"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal reports whether s is a final state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is a dequeued unit of work handed to a [Handler].
type Job struct {
	ID           string
	Name         string
	Payload      json.RawMessage
	SingletonKey string

	// RetryCount is how many times this job has already failed.
	RetryCount int

	CreatedAt time.Time
}

// UnmarshalPayload decodes the job payload into v.
func (j *Job) UnmarshalPayload(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("queue: unmarshal payload of job %s: %w", j.ID, err)
	}
	return nil
}

// Options controls enqueue-time job behaviour.
type Options struct {
	// SingletonKey deduplicates jobs: while a job with the same name and key
	// is not yet terminal, further enqueues with that key are dropped. Empty
	// disables deduplication.
	SingletonKey string

	// RetryLimit is the number of retries after the first failure. 0 means
	// the job fails permanently on its first error.
	RetryLimit int

	// RetryDelay is the wait before the first retry.
	RetryDelay time.Duration

	// RetryBackoff doubles the delay on every subsequent retry.
	RetryBackoff bool

	// Expire bounds a single execution: an active job older than this is
	// considered stuck, abandoned, and counted as a failed attempt.
	// 0 disables expiration.
	Expire time.Duration
}

// WorkerOptions controls worker-side behaviour for one registered job name.
type WorkerOptions struct {
	// Concurrency is the number of jobs of this name processed in parallel
	// by this process. Defaults to 1.
	Concurrency int

	// PollInterval is the idle wait between fetch attempts.
	// Defaults to 500ms.
	PollInterval time.Duration
}

// Handler processes one dequeued job. A nil return completes the job; an
// error schedules a retry, unless the error is marked [Fatal] or the retry
// limit is exhausted, in which case the job fails permanently.
type Handler func(ctx context.Context, job *Job) error

// Queue is the job queue abstraction.
//
// RegisterWorker only records the subscription; polling starts when Run is
// called. Run blocks until ctx is cancelled.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload any, opts Options) (jobID string, err error)
	RegisterWorker(name string, opts WorkerOptions, handler Handler) error
	Run(ctx context.Context) error
}

// ── Error classification ─────────────────────────────────────────────────────

// FatalError marks a handler error as non-retryable: the job fails
// immediately regardless of its remaining retry budget. Use it for
// precondition violations ("session not found") that retries cannot cure.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "non-retryable: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as non-retryable. Fatal(nil) returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is marked non-retryable.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ── Shared retry math ────────────────────────────────────────────────────────

// Backoff returns the delay before the n-th retry (0-based): the base delay,
// doubled per prior retry when exponential.
func Backoff(base time.Duration, retry int, exponential bool) time.Duration {
	if !exponential || retry <= 0 {
		return base
	}
	d := base
	for i := 0; i < retry; i++ {
		d *= 2
	}
	return d
}
