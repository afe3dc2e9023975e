// Package pipeline processes practice sessions: it assesses every recorded
// attempt against its reference text, writes the per-attempt scores, derives
// the session summary, and hands the completed session off to feedback
// generation.
//
// Processing runs as a queue job so that a session is handled exactly once
// even when the submit endpoint fires multiple times; the session ID doubles
// as the job's singleton key. The job runs in three phases:
//
//  1. Assess all unscored attempts in parallel. Per-attempt failures are
//     logged and skipped, never fatal: one bad recording must not sink the
//     whole session.
//  2. Summarize all attempts and transition the session to completed.
//  3. Trigger feedback generation. Failure here only logs; feedback has its
//     own job and retry cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chippeddog/english.now-sub000/internal/assess"
	"github.com/chippeddog/english.now-sub000/internal/feedback"
	"github.com/chippeddog/english.now-sub000/internal/observe"
	"github.com/chippeddog/english.now-sub000/internal/queue"
	"github.com/chippeddog/english.now-sub000/internal/session"
	"github.com/chippeddog/english.now-sub000/internal/store"
	"github.com/chippeddog/english.now-sub000/pkg/provider/speech"
)

// JobName is the queue job name session-processing workers subscribe to.
const JobName = "process-session"

// defaultAssessConcurrency bounds how many provider calls run in parallel for
// one session.
const defaultAssessConcurrency = 4

// Payload is the job payload carried by session-processing jobs.
type Payload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// Enqueue schedules processing of a session. The session ID is used as
// singleton key, so re-submitting a session that is already queued or being
// processed is a no-op. The returned job ID is empty when deduplicated.
func Enqueue(ctx context.Context, q queue.Queue, p Payload, opts queue.Options) (string, error) {
	opts.SingletonKey = p.SessionID
	id, err := q.Enqueue(ctx, JobName, p, opts)
	if err != nil {
		return "", fmt.Errorf("pipeline: enqueue: %w", err)
	}
	return id, nil
}

// Worker processes session jobs.
type Worker struct {
	store    store.Store
	speech   speech.Provider
	trigger  feedback.Trigger
	metrics  *observe.Metrics
	log      *slog.Logger
	parallel int
}

// Option is a functional option for [NewWorker].
type Option func(*Worker)

// WithAssessConcurrency bounds the number of parallel provider calls per
// session. Values below 1 are ignored.
func WithAssessConcurrency(n int) Option {
	return func(w *Worker) {
		if n >= 1 {
			w.parallel = n
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(w *Worker) {
		w.log = log
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker constructs a session-processing worker. trigger may be nil to
// disable feedback generation.
func NewWorker(st store.Store, sp speech.Provider, trigger feedback.Trigger, opts ...Option) *Worker {
	w := &Worker{
		store:    st,
		speech:   sp,
		trigger:  trigger,
		parallel: defaultAssessConcurrency,
	}
	for _, o := range opts {
		o(w)
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	return w
}

// Register subscribes the worker to [JobName] on q.
func (w *Worker) Register(q queue.Queue, opts queue.WorkerOptions) error {
	return q.RegisterWorker(JobName, opts, w.process)
}

// process handles one session job end to end.
func (w *Worker) process(ctx context.Context, job *queue.Job) (err error) {
	start := time.Now()
	w.metrics.ActiveJobs.Add(ctx, 1)
	defer func() {
		w.metrics.ActiveJobs.Add(ctx, -1)
		status := "completed"
		if err != nil {
			status = "failed"
		}
		w.metrics.RecordJob(ctx, JobName, status, time.Since(start).Seconds())
	}()

	var payload Payload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return queue.Fatal(fmt.Errorf("pipeline: decode payload: %w", err))
	}

	log := w.log.With("job_id", job.ID, "session_id", payload.SessionID)

	sess, err := w.store.GetSession(ctx, payload.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Fatal(fmt.Errorf("pipeline: session %s: %w", payload.SessionID, err))
	}
	if err != nil {
		return fmt.Errorf("pipeline: load session: %w", err)
	}

	if sess.Status.IsTerminal() {
		log.Debug("session already finalized, skipping", "status", sess.Status)
		return nil
	}

	if err := w.store.UpdateStatus(ctx, sess.ID, session.StatusAssessing, nil, sess.FeedbackStatus); err != nil {
		return fmt.Errorf("pipeline: mark assessing: %w", err)
	}

	attempts, err := w.store.ListAttempts(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("pipeline: list attempts: %w", err)
	}

	// Phase 1: assess every unscored attempt that has audio. Failures are
	// settled per attempt so the remaining ones still get their scores.
	var failures atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for i := range attempts {
		a := &attempts[i]
		if a.Scores != nil || len(a.Audio) == 0 {
			continue
		}
		g.Go(func() error {
			if err := w.assessAttempt(gctx, sess, a); err != nil {
				failures.Add(1)
				log.Error("attempt assessment failed", "attempt_id", a.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failures.Load(); n > 0 {
		log.Warn("some attempts could not be assessed", "failed", n, "total", len(attempts))
	}

	// Phase 2: summarize from the stored results and finalize the session.
	attempts, err = w.store.ListAttempts(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("pipeline: reload attempts: %w", err)
	}

	summary, err := assess.Summarize(attempts)
	if errors.Is(err, assess.ErrNoAttempts) {
		if markErr := w.store.UpdateStatus(ctx, sess.ID, session.StatusFailed, nil, sess.FeedbackStatus); markErr != nil {
			log.Error("failed to mark session failed", "error", markErr)
		}
		w.metrics.RecordSessionCompleted(ctx, string(session.StatusFailed))
		return queue.Fatal(fmt.Errorf("pipeline: session %s: %w", sess.ID, err))
	}
	if err != nil {
		return fmt.Errorf("pipeline: summarize: %w", err)
	}

	if err := w.store.UpdateStatus(ctx, sess.ID, session.StatusCompleted, summary, session.FeedbackPending); err != nil {
		return fmt.Errorf("pipeline: finalize session: %w", err)
	}
	w.metrics.RecordSessionCompleted(ctx, string(session.StatusCompleted))

	log.Info("session completed",
		"attempts", summary.TotalAttempts,
		"average_score", summary.AverageScore,
		"weak_words", len(summary.WeakWords),
	)

	// Phase 3: kick off feedback generation. The feedback job retries on its
	// own, so a trigger failure is not worth reprocessing the session for.
	if w.trigger != nil {
		if err := w.trigger.TriggerFeedback(ctx, sess.ID); err != nil {
			log.Error("failed to trigger feedback", "error", err)
		}
	}

	return nil
}

// assessAttempt runs speech assessment for one attempt and stores the result.
func (w *Worker) assessAttempt(ctx context.Context, sess *session.Session, a *session.Attempt) error {
	if a.ItemIndex < 0 || a.ItemIndex >= len(sess.Items) {
		return fmt.Errorf("pipeline: attempt %s references item %d of %d", a.ID, a.ItemIndex, len(sess.Items))
	}
	referenceText := sess.Items[a.ItemIndex].Text

	start := time.Now()
	result, err := w.speech.Assess(ctx, a.Audio, referenceText)
	w.metrics.AssessDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		w.metrics.RecordProviderRequest(ctx, w.speech.Name(), "error")
		w.metrics.RecordProviderError(ctx, w.speech.Name())
		return fmt.Errorf("pipeline: assess attempt %s: %w", a.ID, err)
	}
	w.metrics.RecordProviderRequest(ctx, w.speech.Name(), "ok")

	reference := assess.NormalizeText(referenceText)
	aligned := assess.Align(reference, result.Words)
	assess.AnnotateLikelyTargets(aligned)
	scores := assess.Score(aligned, result.ProsodyScores)

	res := store.AttemptResult{
		Transcript:  result.Transcript,
		Scores:      scores,
		WordResults: aligned,
	}
	if err := w.store.SaveAttemptResult(ctx, a.ID, res); err != nil {
		return fmt.Errorf("pipeline: store attempt %s result: %w", a.ID, err)
	}
	return nil
}
