package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
)

// SessionRepository defines the interface for session token operations.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	// LiveByUser returns the user's unexpired session with the latest
	// expiry, or nil.
	LiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepo struct {
	db *database.Meta
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *database.Meta) SessionRepository {
	return &sessionRepo{db: db}
}

// Create inserts a session. Token collisions surface as unique-constraint
// errors; tokens carry 256 bits of entropy so a collision means a broken
// generator.
func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Writer().ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (token) DO UPDATE SET expires_at = excluded.expires_at`,
		session.Token, session.UserID, session.ExpiresAt, session.CreatedAt)
	return err
}

// GetByToken retrieves a session by its token. Columns are scanned by
// name order of the select list; expiry checks belong to the caller.
func (r *sessionRepo) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	var s models.Session
	err := r.db.Reader().QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LiveByUser returns the freshest unexpired session for a user.
func (r *sessionRepo) LiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Session, error) {
	var s models.Session
	err := r.db.Reader().QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions
		 WHERE user_id = ? AND expires_at > ?
		 ORDER BY expires_at DESC LIMIT 1`, userID, now).
		Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes a session token. Unknown tokens are a no-op.
func (r *sessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.Writer().ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteExpired removes sessions past their expiry.
func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.Writer().ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ SessionRepository = (*sessionRepo)(nil)
