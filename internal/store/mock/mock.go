// Package mock provides a functional in-memory [store.Store] for tests.
//
// Unlike a pure stub it actually retains sessions and attempts, so pipeline
// tests can follow a session through its full lifecycle. Errors can be
// injected per method via the exported *Err fields, and every call is
// recorded for assertion.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/chippeddog/english.now-sub000/internal/session"
	"github.com/chippeddog/english.now-sub000/internal/store"
)

// timeNow is swapped out in tests that need deterministic timestamps.
var timeNow = time.Now

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Call records the name and non-context arguments of one method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is an in-memory [store.Store]. The zero value is ready to use.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	attempts map[string][]*session.Attempt // keyed by session ID
	calls    []Call

	// Per-method injected errors. When non-nil the method returns the error
	// without touching state.
	CreateSessionErr     error
	GetSessionErr        error
	ListSessionsErr      error
	UpdateStatusErr      error
	UpdateFeedbackErr    error
	DeleteSessionErr     error
	CreateAttemptErr     error
	ListAttemptsErr      error
	SaveAttemptResultErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*session.Session),
		attempts: make(map[string][]*session.Attempt),
	}
}

// AddSession seeds a session directly, bypassing call recording.
func (s *Store) AddSession(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
}

// AddAttempt seeds an attempt directly, bypassing call recording.
func (s *Store) AddAttempt(a *session.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attempts[a.SessionID] = append(s.attempts[a.SessionID], &cp)
}

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateSession", sess.ID)
	if s.CreateSessionErr != nil {
		return s.CreateSessionErr
	}
	cp := *sess
	if cp.Status == "" {
		cp.Status = session.StatusActive
	}
	if cp.FeedbackStatus == "" {
		cp.FeedbackStatus = session.FeedbackPending
	}
	s.sessions[sess.ID] = &cp
	return nil
}

// GetSession implements [store.SessionStore].
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetSession", id)
	if s.GetSessionErr != nil {
		return nil, s.GetSessionErr
	}
	sess, ok := s.sessions[id]
	if !ok || sess.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// ListSessions implements [store.SessionStore].
func (s *Store) ListSessions(ctx context.Context, userID string, opts store.ListOpts) ([]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListSessions", userID, opts)
	if s.ListSessionsErr != nil {
		return nil, s.ListSessionsErr
	}
	var out []session.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.DeletedAt != nil {
			continue
		}
		if opts.Status != "" && sess.Status != opts.Status {
			continue
		}
		out = append(out, *sess)
	}
	slices.SortFunc(out, func(a, b session.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	if out == nil {
		out = []session.Session{}
	}
	return out, nil
}

// UpdateStatus implements [store.SessionStore].
func (s *Store) UpdateStatus(ctx context.Context, id string, status session.Status, summary *session.Summary, feedback session.FeedbackStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateStatus", id, status)
	if s.UpdateStatusErr != nil {
		return s.UpdateStatusErr
	}
	sess, ok := s.sessions[id]
	if !ok || sess.DeletedAt != nil {
		return store.ErrNotFound
	}
	sess.Status = status
	sess.FeedbackStatus = feedback
	if summary != nil {
		cp := *summary
		sess.Summary = &cp
	}
	if status.IsTerminal() && sess.CompletedAt == nil {
		now := timeNow()
		sess.CompletedAt = &now
	}
	return nil
}

// UpdateFeedback implements [store.SessionStore].
func (s *Store) UpdateFeedback(ctx context.Context, id string, status session.FeedbackStatus, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateFeedback", id, status)
	if s.UpdateFeedbackErr != nil {
		return s.UpdateFeedbackErr
	}
	sess, ok := s.sessions[id]
	if !ok || sess.DeletedAt != nil {
		return store.ErrNotFound
	}
	sess.FeedbackStatus = status
	if text != "" {
		sess.Feedback = text
	}
	return nil
}

// DeleteSession implements [store.SessionStore].
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeleteSession", id)
	if s.DeleteSessionErr != nil {
		return s.DeleteSessionErr
	}
	sess, ok := s.sessions[id]
	if !ok || sess.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := timeNow()
	sess.DeletedAt = &now
	return nil
}

// CreateAttempt implements [store.AttemptStore].
func (s *Store) CreateAttempt(ctx context.Context, a *session.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateAttempt", a.ID)
	if s.CreateAttemptErr != nil {
		return s.CreateAttemptErr
	}
	cp := *a
	s.attempts[a.SessionID] = append(s.attempts[a.SessionID], &cp)
	return nil
}

// ListAttempts implements [store.AttemptStore].
func (s *Store) ListAttempts(ctx context.Context, sessionID string) ([]session.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListAttempts", sessionID)
	if s.ListAttemptsErr != nil {
		return nil, s.ListAttemptsErr
	}
	out := make([]session.Attempt, 0, len(s.attempts[sessionID]))
	for _, a := range s.attempts[sessionID] {
		out = append(out, *a)
	}
	return out, nil
}

// SaveAttemptResult implements [store.AttemptStore].
func (s *Store) SaveAttemptResult(ctx context.Context, attemptID string, res store.AttemptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SaveAttemptResult", attemptID)
	if s.SaveAttemptResultErr != nil {
		return s.SaveAttemptResultErr
	}
	for _, attempts := range s.attempts {
		for _, a := range attempts {
			if a.ID != attemptID {
				continue
			}
			scores := res.Scores
			a.Transcript = res.Transcript
			a.Scores = &scores
			a.WordResults = slices.Clone(res.WordResults)
			return nil
		}
	}
	return store.ErrNotFound
}

// Calls returns a copy of all recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount returns how often the named method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Store) record(method string, args ...any) {
	if s.sessions == nil {
		s.sessions = make(map[string]*session.Session)
	}
	if s.attempts == nil {
		s.attempts = make(map[string][]*session.Attempt)
	}
	s.calls = append(s.calls, Call{Method: method, Args: args})
}
