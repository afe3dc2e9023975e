package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chippeddog/english.now-sub000/internal/queue"
	"github.com/chippeddog/english.now-sub000/internal/session"
	"github.com/chippeddog/english.now-sub000/internal/store"
)

// Worker consumes feedback jobs and writes generated feedback back onto the
// session.
type Worker struct {
	store store.SessionStore
	gen   Generator
	log   *slog.Logger
}

// NewWorker constructs a feedback worker. log may be nil, in which case the
// default logger is used.
func NewWorker(st store.SessionStore, gen Generator, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{store: st, gen: gen, log: log}
}

// Register subscribes the worker to [JobName] on q.
func (w *Worker) Register(q queue.Queue, opts queue.WorkerOptions) error {
	return q.RegisterWorker(JobName, opts, w.Process)
}

// Process handles one feedback job. Missing or unfinished sessions are
// permanent failures; generator errors are retryable.
func (w *Worker) Process(ctx context.Context, job *queue.Job) error {
	var payload Payload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return queue.Fatal(fmt.Errorf("feedback: decode payload: %w", err))
	}

	log := w.log.With("job_id", job.ID, "session_id", payload.SessionID)

	sess, err := w.store.GetSession(ctx, payload.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Fatal(fmt.Errorf("feedback: session %s: %w", payload.SessionID, err))
	}
	if err != nil {
		return fmt.Errorf("feedback: load session: %w", err)
	}

	if sess.FeedbackStatus == session.FeedbackCompleted {
		log.Debug("feedback already generated, skipping")
		return nil
	}
	if sess.Summary == nil {
		return queue.Fatal(fmt.Errorf("feedback: session %s has no summary", sess.ID))
	}

	if err := w.store.UpdateFeedback(ctx, sess.ID, session.FeedbackProcessing, ""); err != nil {
		return fmt.Errorf("feedback: mark processing: %w", err)
	}

	text, err := w.gen.Generate(ctx, sess)
	if err != nil {
		log.Error("feedback generation failed", "error", err)
		if markErr := w.store.UpdateFeedback(ctx, sess.ID, session.FeedbackFailed, ""); markErr != nil {
			log.Error("failed to mark feedback failed", "error", markErr)
		}
		return err
	}

	if err := w.store.UpdateFeedback(ctx, sess.ID, session.FeedbackCompleted, text); err != nil {
		return fmt.Errorf("feedback: store result: %w", err)
	}

	log.Info("feedback generated", "length", len(text))
	return nil
}
