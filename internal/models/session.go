package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated session. The token is an opaque random value;
// a request bearing an expired token fails authentication.
type Session struct {
	Token     string    `json:"token" db:"token"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Live reports whether the session is still valid at now.
func (s *Session) Live(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
