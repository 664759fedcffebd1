// Package service implements the registry's business logic between the
// HTTP surface and the stores.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offenes-grundbuch/registry/internal/auth"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

// Konto is the account view returned to clients. Anonymous callers see
// the guest default.
type Konto struct {
	Email string      `json:"email,omitempty"`
	Name  string      `json:"name,omitempty"`
	Role  models.Role `json:"role"`
}

// AuthService handles login, logout and session resolution.
type AuthService interface {
	// Login verifies credentials and returns a session token with its
	// expiry. An unexpired session is reused instead of minting a second
	// token.
	Login(ctx context.Context, email, password string) (string, time.Time, error)
	Logout(ctx context.Context, token string) error
	// UserFromToken resolves a token to its user, or nil for an unknown or
	// expired token.
	UserFromToken(ctx context.Context, token string) (*models.User, error)
	// Konto returns the account view for a user; nil means anonymous.
	Konto(user *models.User) *Konto
}

type authService struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService creates the auth service.
func NewAuthService(users repository.UserRepository, sessions repository.SessionRepository, sessionTTL time.Duration, logger *slog.Logger) AuthService {
	return &authService{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Login authenticates and returns a live session token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *authService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, apperr.Storage("Anmeldung fehlgeschlagen", err)
	}
	if user == nil || !auth.VerifyPassword(password, user.PasswordHash) {
		s.logger.Info("login rejected", "email", email)
		return "", time.Time{}, apperr.ErrUnauthorized
	}

	now := time.Now().UTC()

	live, err := s.sessions.LiveByUser(ctx, user.ID, now)
	if err != nil {
		return "", time.Time{}, apperr.Storage("Anmeldung fehlgeschlagen", err)
	}
	if live != nil {
		return live.Token, live.ExpiresAt, nil
	}

	token, err := auth.NewToken()
	if err != nil {
		return "", time.Time{}, apperr.Storage("Anmeldung fehlgeschlagen", err)
	}

	session := &models.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", time.Time{}, apperr.Storage("Anmeldung fehlgeschlagen", err)
	}

	// Expired sessions pile up otherwise; cleaning on login keeps the
	// table bounded without a background job.
	if n, err := s.sessions.DeleteExpired(ctx, now); err == nil && n > 0 {
		s.logger.Debug("expired sessions removed", "count", n)
	}

	s.logger.Info("login succeeded", "email", email, "role", string(user.Role))
	return token, session.ExpiresAt, nil
}

// Logout invalidates a session token.
func (s *authService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return apperr.Storage("Abmeldung fehlgeschlagen", err)
	}
	return nil
}

// UserFromToken resolves a live session to its user.
func (s *authService) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil || !session.Live(time.Now().UTC()) {
		return nil, nil
	}
	return s.users.GetByID(ctx, session.UserID)
}

// Konto returns the account view. All callers get an answer; anonymous
// and unknown sessions see the guest default rather than an error.
func (s *authService) Konto(user *models.User) *Konto {
	if user == nil {
		return &Konto{Role: models.RoleGuest}
	}
	return &Konto{Email: user.Email, Name: user.Name, Role: user.Role}
}

var _ AuthService = (*authService)(nil)
