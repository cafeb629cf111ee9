package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// ItemError is one structured per-item failure recorded into a session.
// Free-text-only errors are disallowed: the viewing layer needs the key and
// a classified reason to render a precise report.
type ItemError struct {
	ContentType string `json:"content_type"`
	RemoteID    int64  `json:"remote_id"`
	Kind        string `json:"kind"` // transport | malformed | conflict | storage
	Message     string `json:"message"`
}

// Session is one archive run's record. Created at run start, mutated in
// memory by the orchestrator, finalized exactly once.
type Session struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"` // a single type or "all"
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Status      string    `json:"status"`

	ItemsProcessed int         `json:"items_processed"`
	ItemsNew       int         `json:"items_new"`
	ItemsUpdated   int         `json:"items_updated"`
	ItemsUnchanged int         `json:"items_unchanged"`
	Errors         []ItemError `json:"errors,omitempty"`
}

// ErrorCount returns the number of recorded item errors.
func (sess *Session) ErrorCount() int { return len(sess.Errors) }

// BeginSession creates the session row at run start with status running.
func (s *Store) BeginSession(ctx context.Context, contentType string) (*Session, error) {
	sess := &Session{
		ID:          uuid.NewString(),
		ContentType: contentType,
		StartedAt:   time.Now().UTC(),
		Status:      StatusRunning,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archive_sessions (id, content_type, started_at, status)
		VALUES (?, ?, ?, ?)`,
		sess.ID, sess.ContentType, sess.StartedAt, sess.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return sess, nil
}

// FinalizeSession writes the run's final tally. Called exactly once per run,
// including early termination; the row is never mutated afterwards.
func (s *Store) FinalizeSession(ctx context.Context, sess *Session) error {
	if sess.CompletedAt.IsZero() {
		sess.CompletedAt = time.Now().UTC()
	}

	detail, err := json.Marshal(sess.Errors)
	if err != nil {
		return fmt.Errorf("marshal session errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE archive_sessions
		SET completed_at = ?, status = ?, items_processed = ?, items_new = ?,
		    items_updated = ?, items_unchanged = ?, error_count = ?, error_detail = ?
		WHERE id = ?`,
		sess.CompletedAt, sess.Status, sess.ItemsProcessed, sess.ItemsNew,
		sess.ItemsUpdated, sess.ItemsUnchanged, len(sess.Errors), string(detail),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("finalize session %s: %w", sess.ID, err)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	sess := &Session{}
	var completed sql.NullTime
	var errorCount int
	var detail string
	err := row.Scan(
		&sess.ID, &sess.ContentType, &sess.StartedAt, &completed, &sess.Status,
		&sess.ItemsProcessed, &sess.ItemsNew, &sess.ItemsUpdated, &sess.ItemsUnchanged,
		&errorCount, &detail,
	)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		sess.CompletedAt = completed.Time
	}
	if err := json.Unmarshal([]byte(detail), &sess.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal session errors: %w", err)
	}
	return sess, nil
}

const sessionColumns = `id, content_type, started_at, completed_at, status,
	items_processed, items_new, items_updated, items_unchanged, error_count, error_detail`

// LatestSession returns the most recently started session, or nil when no
// run has been recorded.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM archive_sessions
		ORDER BY started_at DESC
		LIMIT 1`,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

// ListSessions returns up to limit sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM archive_sessions
		ORDER BY started_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
