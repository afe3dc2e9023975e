package feedback_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/chippeddog/english.now-sub000/internal/feedback"
	"github.com/chippeddog/english.now-sub000/internal/queue"
	"github.com/chippeddog/english.now-sub000/internal/session"
	storemock "github.com/chippeddog/english.now-sub000/internal/store/mock"
)

func completedSession(id string) *session.Session {
	return &session.Session{
		ID:             id,
		UserID:         "user-1",
		Status:         session.StatusCompleted,
		FeedbackStatus: session.FeedbackPending,
		Summary: &session.Summary{
			AverageScore:  74,
			TotalAttempts: 3,
			BestScore:     85,
			WorstScore:    60,
			WeakWords:     []string{"squirrel"},
		},
	}
}

func feedbackJob(t *testing.T, sessionID string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(feedback.Payload{SessionID: sessionID})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: "job-" + sessionID, Name: feedback.JobName, Payload: payload}
}

func TestWorker_WritesFeedback(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.AddSession(completedSession("sess-1"))

	gen := feedback.GeneratorFunc(func(ctx context.Context, sess *session.Session) (string, error) {
		if sess.Summary == nil {
			t.Error("generator received session without summary")
		}
		return "Nice work. Practise the word squirrel.", nil
	})

	w := feedback.NewWorker(st, gen, nil)
	if err := w.Process(context.Background(), feedbackJob(t, "sess-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sess, err := st.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.FeedbackStatus != session.FeedbackCompleted {
		t.Errorf("FeedbackStatus = %q, want completed", sess.FeedbackStatus)
	}
	if sess.Feedback == "" {
		t.Error("feedback text not stored")
	}
}

func TestWorker_GeneratorErrorIsRetryable(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.AddSession(completedSession("sess-2"))

	genErr := errors.New("rate limited")
	gen := feedback.GeneratorFunc(func(ctx context.Context, sess *session.Session) (string, error) {
		return "", genErr
	})

	w := feedback.NewWorker(st, gen, nil)
	err := w.Process(context.Background(), feedbackJob(t, "sess-2"))
	if !errors.Is(err, genErr) {
		t.Fatalf("Process error = %v, want %v", err, genErr)
	}
	if queue.IsFatal(err) {
		t.Error("generator error should be retryable, got fatal")
	}

	sess, _ := st.GetSession(context.Background(), "sess-2")
	if sess.FeedbackStatus != session.FeedbackFailed {
		t.Errorf("FeedbackStatus = %q, want failed", sess.FeedbackStatus)
	}
}

func TestWorker_MissingSessionIsFatal(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	gen := feedback.GeneratorFunc(func(ctx context.Context, sess *session.Session) (string, error) {
		t.Error("generator must not be called")
		return "", nil
	})

	w := feedback.NewWorker(st, gen, nil)
	err := w.Process(context.Background(), feedbackJob(t, "gone"))
	if err == nil {
		t.Fatal("Process succeeded for a missing session")
	}
	if !queue.IsFatal(err) {
		t.Errorf("error for missing session should be fatal, got %v", err)
	}
}

func TestWorker_NoSummaryIsFatal(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.AddSession(&session.Session{
		ID:             "sess-3",
		UserID:         "user-1",
		Status:         session.StatusActive,
		FeedbackStatus: session.FeedbackPending,
	})

	w := feedback.NewWorker(st, feedback.GeneratorFunc(func(ctx context.Context, sess *session.Session) (string, error) {
		t.Error("generator must not be called")
		return "", nil
	}), nil)

	err := w.Process(context.Background(), feedbackJob(t, "sess-3"))
	if !queue.IsFatal(err) {
		t.Errorf("error for unfinished session should be fatal, got %v", err)
	}
}

func TestWorker_SkipsAlreadyGenerated(t *testing.T) {
	t.Parallel()

	sess := completedSession("sess-4")
	sess.FeedbackStatus = session.FeedbackCompleted
	sess.Feedback = "already there"

	st := storemock.New()
	st.AddSession(sess)

	called := false
	w := feedback.NewWorker(st, feedback.GeneratorFunc(func(ctx context.Context, s *session.Session) (string, error) {
		called = true
		return "new text", nil
	}), nil)

	if err := w.Process(context.Background(), feedbackJob(t, "sess-4")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if called {
		t.Error("generator called for a session with completed feedback")
	}

	got, _ := st.GetSession(context.Background(), "sess-4")
	if got.Feedback != "already there" {
		t.Errorf("feedback overwritten: %q", got.Feedback)
	}
}
