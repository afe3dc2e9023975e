// Package feedback turns a completed session's summary into a short piece of
// qualitative coaching text for the learner.
//
// Generation is decoupled from session processing: the pipeline only enqueues
// a feedback job via [Trigger], and a separate worker registered with
// [Register] loads the session, calls a [Generator], and writes the result
// back. A session's feedback status moves pending → processing → completed,
// or failed when generation errors out.
package feedback

import (
	"context"
	"fmt"

	"github.com/chippeddog/english.now-sub000/internal/queue"
)

// JobName is the queue job name feedback workers subscribe to.
const JobName = "feedback"

// Payload is the job payload carried by feedback jobs.
type Payload struct {
	SessionID string `json:"sessionId"`
}

// Trigger requests feedback generation for a session.
type Trigger interface {
	TriggerFeedback(ctx context.Context, sessionID string) error
}

// QueueTrigger enqueues feedback jobs on a [queue.Queue]. The session ID is
// used as singleton key so repeated triggers for the same session collapse
// into one pending job.
type QueueTrigger struct {
	Queue queue.Queue

	// Options is applied to every enqueued job. SingletonKey is always
	// overwritten with the session ID.
	Options queue.Options
}

// TriggerFeedback implements [Trigger].
func (t *QueueTrigger) TriggerFeedback(ctx context.Context, sessionID string) error {
	opts := t.Options
	opts.SingletonKey = sessionID
	if _, err := t.Queue.Enqueue(ctx, JobName, Payload{SessionID: sessionID}, opts); err != nil {
		return fmt.Errorf("feedback: enqueue: %w", err)
	}
	return nil
}
