package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Session is one authenticated user session.
type Session struct {
	SessionID string
	User      string
	Email     string
}

// LookupSession returns the session with the given id.
// Returns ErrNotFound for unknown or expired sessions.
func (s *Store) LookupSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user, email FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&sess.SessionID, &sess.User, &sess.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup session: %w", err)
	}
	return &sess, nil
}

// UpsertSession stores or replaces a session. The authentication front end
// calls this on login; this core only reads sessions.
func (s *Store) UpsertSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user, email) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET user = excluded.user, email = excluded.email`,
		sess.SessionID, sess.User, sess.Email)
	if err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}
	return nil
}
