package feedback_test

import (
	"context"
	"testing"

	"github.com/chippeddog/english.now-sub000/internal/feedback"
	"github.com/chippeddog/english.now-sub000/internal/queue"
	"github.com/chippeddog/english.now-sub000/internal/queue/inmem"
)

func TestQueueTrigger_DeduplicatesPerSession(t *testing.T) {
	t.Parallel()

	q := inmem.New()
	var seen []string
	if err := q.RegisterWorker(feedback.JobName, queue.WorkerOptions{}, func(ctx context.Context, job *queue.Job) error {
		var p feedback.Payload
		if err := job.UnmarshalPayload(&p); err != nil {
			return err
		}
		seen = append(seen, p.SessionID)
		return nil
	}); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	trigger := &feedback.QueueTrigger{Queue: q}
	ctx := context.Background()

	// Repeated triggers for one session collapse; a second session does not.
	if err := trigger.TriggerFeedback(ctx, "sess-1"); err != nil {
		t.Fatalf("TriggerFeedback: %v", err)
	}
	if err := trigger.TriggerFeedback(ctx, "sess-1"); err != nil {
		t.Fatalf("TriggerFeedback repeat: %v", err)
	}
	if err := trigger.TriggerFeedback(ctx, "sess-2"); err != nil {
		t.Fatalf("TriggerFeedback other: %v", err)
	}

	if n := q.Pending(feedback.JobName); n != 2 {
		t.Errorf("pending feedback jobs = %d, want 2", n)
	}
	_ = seen
}
