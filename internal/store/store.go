// Package store defines persistence interfaces for sessions and attempts.
//
// The interfaces are deliberately narrow: the processing pipeline only ever
// loads a session with its attempts, writes per-attempt assessment results,
// and advances session status. Implementations live in subpackages
// (postgres, mock) and must be safe for concurrent use.
package store

import (
	"context"
	"errors"

	"github.com/chippeddog/english.now-sub000/internal/session"
)

// ErrNotFound is returned when the requested session or attempt does not
// exist or has been deleted.
var ErrNotFound = errors.New("store: not found")

// ListOpts filters and bounds a session listing. All zero fields are ignored.
type ListOpts struct {
	// Status restricts results to sessions in a single lifecycle state.
	Status session.Status

	// Limit caps the number of results returned. 0 means no limit.
	Limit int
}

// AttemptResult is the assessment output written back onto an attempt once
// scoring has run.
type AttemptResult struct {
	Transcript  string
	Scores      session.Scores
	WordResults []session.AlignedWord
}

// SessionStore persists practice sessions.
type SessionStore interface {
	// CreateSession stores a new session. The ID must be set by the caller.
	CreateSession(ctx context.Context, s *session.Session) error

	// GetSession returns the session with the given ID, or [ErrNotFound] if
	// it does not exist or has been deleted.
	GetSession(ctx context.Context, id string) (*session.Session, error)

	// ListSessions returns the user's sessions, newest first, excluding
	// deleted ones.
	ListSessions(ctx context.Context, userID string, opts ListOpts) ([]session.Session, error)

	// UpdateStatus transitions a session to the given status. summary may be
	// nil; when the status is a terminal one the completion timestamp is set.
	UpdateStatus(ctx context.Context, id string, status session.Status, summary *session.Summary, feedback session.FeedbackStatus) error

	// UpdateFeedback records the outcome of feedback generation. text is
	// only stored when non-empty.
	UpdateFeedback(ctx context.Context, id string, status session.FeedbackStatus, text string) error

	// DeleteSession tombstones a session. Attempts are retained.
	DeleteSession(ctx context.Context, id string) error
}

// AttemptStore persists the recorded attempts of a session.
type AttemptStore interface {
	// CreateAttempt stores a new attempt. The ID must be set by the caller.
	CreateAttempt(ctx context.Context, a *session.Attempt) error

	// ListAttempts returns all attempts of a session in creation order.
	ListAttempts(ctx context.Context, sessionID string) ([]session.Attempt, error)

	// SaveAttemptResult writes the assessment result onto an attempt.
	SaveAttemptResult(ctx context.Context, attemptID string, res AttemptResult) error
}

// Store bundles the two persistence interfaces the pipeline depends on.
type Store interface {
	SessionStore
	AttemptStore
}
