package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/service"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// userKey is the context key for the authenticated user.
	userKey contextKey = "user"
	// tokenKey is the context key for the raw session token.
	tokenKey contextKey = "token"
)

// tokenFromRequest extracts the session token from the Authorization
// bearer header or, failing that, from the legacy Authentication cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("Authentication"); err == nil {
		return c.Value
	}
	return ""
}

// Session resolves the session token to a user and stores both in the
// request context. Requests without a live session continue anonymously;
// role checks happen per route.
func Session(auth service.AuthService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, token)
			if user, err := auth.UserFromToken(ctx, token); err == nil && user != nil {
				ctx = context.WithValue(ctx, userKey, user)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose user lacks one of the given roles.
func RequireRole(roles ...models.Role) func(next http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if user == nil {
				response.Error(w, apperr.ErrUnauthorized)
				return
			}
			if !allowed[user.Role] {
				response.Error(w, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFrom retrieves the authenticated user from context, or nil.
func UserFrom(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}

// TokenFrom retrieves the raw session token from context, or "".
func TokenFrom(ctx context.Context) string {
	if t, ok := ctx.Value(tokenKey).(string); ok {
		return t
	}
	return ""
}
