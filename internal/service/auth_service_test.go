package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offenes-grundbuch/registry/internal/auth"
	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMeta(t *testing.T) *database.Meta {
	t.Helper()
	meta, err := database.OpenMeta(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	return meta
}

func seedUser(t *testing.T, users repository.UserRepository, email, password string, role models.Role) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{Email: email, Name: "Test", Role: role, PasswordHash: hash}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestLoginAndResolveToken(t *testing.T) {
	meta := newTestMeta(t)
	users := repository.NewUserRepository(meta)
	sessions := repository.NewSessionRepository(meta)
	svc := NewAuthService(users, sessions, 30*time.Minute, testLogger())
	ctx := context.Background()

	seedUser(t, users, "u@example.org", "geheim", models.RoleEditor)

	token, validUntil, err := svc.Login(ctx, "u@example.org", "geheim")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), validUntil, time.Minute)

	user, err := svc.UserFromToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u@example.org", user.Email)
}

func TestLoginReusesLiveSession(t *testing.T) {
	meta := newTestMeta(t)
	users := repository.NewUserRepository(meta)
	svc := NewAuthService(users, repository.NewSessionRepository(meta), 30*time.Minute, testLogger())
	ctx := context.Background()

	seedUser(t, users, "u@example.org", "geheim", models.RoleGuest)

	first, _, err := svc.Login(ctx, "u@example.org", "geheim")
	require.NoError(t, err)
	second, _, err := svc.Login(ctx, "u@example.org", "geheim")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	meta := newTestMeta(t)
	users := repository.NewUserRepository(meta)
	svc := NewAuthService(users, repository.NewSessionRepository(meta), 30*time.Minute, testLogger())
	ctx := context.Background()

	seedUser(t, users, "u@example.org", "geheim", models.RoleGuest)

	_, _, err := svc.Login(ctx, "u@example.org", "falsch")
	assert.Equal(t, apperr.ErrUnauthorized, err)

	_, _, err = svc.Login(ctx, "missing@example.org", "geheim")
	assert.Equal(t, apperr.ErrUnauthorized, err)
}

func TestExpiredTokenResolvesToNil(t *testing.T) {
	meta := newTestMeta(t)
	users := repository.NewUserRepository(meta)
	sessions := repository.NewSessionRepository(meta)
	svc := NewAuthService(users, sessions, 30*time.Minute, testLogger())
	ctx := context.Background()

	u := seedUser(t, users, "u@example.org", "geheim", models.RoleGuest)
	require.NoError(t, sessions.Create(ctx, &models.Session{
		Token: "stale", UserID: u.ID, ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}))

	user, err := svc.UserFromToken(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	meta := newTestMeta(t)
	users := repository.NewUserRepository(meta)
	svc := NewAuthService(users, repository.NewSessionRepository(meta), 30*time.Minute, testLogger())
	ctx := context.Background()

	seedUser(t, users, "u@example.org", "geheim", models.RoleGuest)
	token, _, err := svc.Login(ctx, "u@example.org", "geheim")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))

	user, err := svc.UserFromToken(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestKontoDefaultsToGuest(t *testing.T) {
	svc := NewAuthService(nil, nil, time.Minute, testLogger())

	konto := svc.Konto(nil)
	assert.Equal(t, models.RoleGuest, konto.Role)
	assert.Empty(t, konto.Email)

	konto = svc.Konto(&models.User{Email: "a@example.org", Name: "A", Role: models.RoleAdmin})
	assert.Equal(t, models.RoleAdmin, konto.Role)
	assert.Equal(t, "a@example.org", konto.Email)
}
