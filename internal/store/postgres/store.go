package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chippeddog/english.now-sub000/internal/session"
	"github.com/chippeddog/english.now-sub000/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed session and attempt store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to the database at dsn and runs [Migrate]
// to ensure all required tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool without pinging or migrating.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	items, err := json.Marshal(sess.Items)
	if err != nil {
		return fmt.Errorf("postgres store: marshal items: %w", err)
	}

	const q = `
		INSERT INTO sessions (id, user_id, status, items, feedback_status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`

	status := sess.Status
	if status == "" {
		status = session.StatusActive
	}
	feedback := sess.FeedbackStatus
	if feedback == "" {
		feedback = session.FeedbackPending
	}

	if _, err := s.pool.Exec(ctx, q, sess.ID, sess.UserID, status, items, feedback); err != nil {
		return fmt.Errorf("postgres store: create session: %w", err)
	}
	return nil
}

// GetSession implements [store.SessionStore].
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	const q = `
		SELECT id, user_id, status, items, summary, feedback_status, feedback,
		       created_at, completed_at, deleted_at
		FROM   sessions
		WHERE  id = $1 AND deleted_at IS NULL`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	sess, err := pgx.CollectOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	return &sess, nil
}

// ListSessions implements [store.SessionStore].
func (s *Store) ListSessions(ctx context.Context, userID string, opts store.ListOpts) ([]session.Session, error) {
	args := []any{userID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"user_id = $1", "deleted_at IS NULL"}
	if opts.Status != "" {
		conditions = append(conditions, "status = "+next(string(opts.Status)))
	}

	q := "SELECT id, user_id, status, items, summary, feedback_status, feedback,\n" +
		"       created_at, completed_at, deleted_at\n" +
		"FROM   sessions\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at DESC"

	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	return sessions, nil
}

// UpdateStatus implements [store.SessionStore]. The completion timestamp is
// set the first time the session reaches a terminal status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status session.Status, summary *session.Summary, feedback session.FeedbackStatus) error {
	var summaryJSON []byte
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("postgres store: marshal summary: %w", err)
		}
		summaryJSON = b
	}

	const q = `
		UPDATE sessions
		SET    status          = $2,
		       summary         = COALESCE($3, summary),
		       feedback_status = $4,
		       completed_at    = CASE
		                             WHEN $2 IN ('completed', 'failed') THEN COALESCE(completed_at, now())
		                             ELSE completed_at
		                         END
		WHERE  id = $1 AND deleted_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, id, status, summaryJSON, feedback)
	if err != nil {
		return fmt.Errorf("postgres store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateFeedback implements [store.SessionStore].
func (s *Store) UpdateFeedback(ctx context.Context, id string, status session.FeedbackStatus, text string) error {
	const q = `
		UPDATE sessions
		SET    feedback_status = $2,
		       feedback        = CASE WHEN $3 <> '' THEN $3 ELSE feedback END
		WHERE  id = $1 AND deleted_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, id, status, text)
	if err != nil {
		return fmt.Errorf("postgres store: update feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteSession implements [store.SessionStore]. The row is tombstoned, not
// removed, because attempts keep referencing it.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	const q = `
		UPDATE sessions
		SET    deleted_at = now()
		WHERE  id = $1 AND deleted_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("postgres store: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateAttempt implements [store.AttemptStore].
func (s *Store) CreateAttempt(ctx context.Context, a *session.Attempt) error {
	const q = `
		INSERT INTO attempts (id, session_id, item_index, audio, created_at)
		VALUES ($1, $2, $3, $4, now())`

	if _, err := s.pool.Exec(ctx, q, a.ID, a.SessionID, a.ItemIndex, a.Audio); err != nil {
		return fmt.Errorf("postgres store: create attempt: %w", err)
	}
	return nil
}

// ListAttempts implements [store.AttemptStore].
func (s *Store) ListAttempts(ctx context.Context, sessionID string) ([]session.Attempt, error) {
	const q = `
		SELECT id, session_id, item_index, audio, transcript, scores, word_results, created_at
		FROM   attempts
		WHERE  session_id = $1
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list attempts: %w", err)
	}
	attempts, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []session.Attempt{}
	}
	return attempts, nil
}

// SaveAttemptResult implements [store.AttemptStore].
func (s *Store) SaveAttemptResult(ctx context.Context, attemptID string, res store.AttemptResult) error {
	scores, err := json.Marshal(res.Scores)
	if err != nil {
		return fmt.Errorf("postgres store: marshal scores: %w", err)
	}
	words, err := json.Marshal(res.WordResults)
	if err != nil {
		return fmt.Errorf("postgres store: marshal word results: %w", err)
	}

	const q = `
		UPDATE attempts
		SET    transcript = $2, scores = $3, word_results = $4
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, attemptID, res.Transcript, scores, words)
	if err != nil {
		return fmt.Errorf("postgres store: save attempt result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scanSession scans a sessions row, unmarshalling the JSONB columns.
func scanSession(row pgx.CollectableRow) (session.Session, error) {
	var (
		sess        session.Session
		itemsJSON   []byte
		summaryJSON []byte
	)
	if err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Status,
		&itemsJSON,
		&summaryJSON,
		&sess.FeedbackStatus,
		&sess.Feedback,
		&sess.CreatedAt,
		&sess.CompletedAt,
		&sess.DeletedAt,
	); err != nil {
		return session.Session{}, err
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &sess.Items); err != nil {
			return session.Session{}, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if len(summaryJSON) > 0 {
		sess.Summary = &session.Summary{}
		if err := json.Unmarshal(summaryJSON, sess.Summary); err != nil {
			return session.Session{}, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	return sess, nil
}

// scanAttempt scans an attempts row, unmarshalling the JSONB columns.
func scanAttempt(row pgx.CollectableRow) (session.Attempt, error) {
	var (
		a          session.Attempt
		scoresJSON []byte
		wordsJSON  []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.ItemIndex,
		&a.Audio,
		&a.Transcript,
		&scoresJSON,
		&wordsJSON,
		&a.CreatedAt,
	); err != nil {
		return session.Attempt{}, err
	}
	if len(scoresJSON) > 0 {
		a.Scores = &session.Scores{}
		if err := json.Unmarshal(scoresJSON, a.Scores); err != nil {
			return session.Attempt{}, fmt.Errorf("unmarshal scores: %w", err)
		}
	}
	if len(wordsJSON) > 0 {
		if err := json.Unmarshal(wordsJSON, &a.WordResults); err != nil {
			return session.Attempt{}, fmt.Errorf("unmarshal word results: %w", err)
		}
	}
	return a, nil
}
