// Package handler implements the registry's HTTP surface.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/middleware"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/service"
	"github.com/offenes-grundbuch/registry/internal/syncengine"
)

// maxLoginBytes bounds the accepted credential form body.
const maxLoginBytes = 1 << 20

// AuthHandler handles login, logout and account lookup. On followers
// login and logout are forwarded to the writer so sessions live in the
// writer's MetaStore and survive snapshot pulls; a locally minted
// session would vanish with the next /pull-db.
type AuthHandler struct {
	role   config.Role
	auth   service.AuthService
	fwd    *forwarder
	logger *slog.Logger
}

// NewAuthHandler creates an auth handler. client, disc and engine are
// only used on followers and may be nil elsewhere.
func NewAuthHandler(role config.Role, auth service.AuthService, client *cluster.Client, disc cluster.PeerDiscovery, engine *syncengine.Engine, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		role:   role,
		auth:   auth,
		fwd:    &forwarder{client: client, disc: disc, engine: engine, logger: logger},
		logger: logger,
	}
}

// loginResponse is the login payload inside the response envelope.
type loginResponse struct {
	Token      string    `json:"token"`
	ValidUntil time.Time `json:"valid_until"`
}

// Login authenticates form credentials and returns a session token. The
// token is additionally set as the legacy Authentication cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.role == config.RoleFollower {
		h.relayLogin(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		response.Error(w, apperr.Validation("Ungültige Anmeldedaten"))
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		response.Error(w, apperr.Validation("E-Mail und Passwort sind erforderlich"))
		return
	}

	token, validUntil, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		response.Error(w, err)
		return
	}

	setSessionCookie(w, token, validUntil)
	response.OK(w, loginResponse{Token: token, ValidUntil: validUntil})
}

// relayLogin forwards the credentials to the writer and pulls before
// answering, so the returned token is already resolvable on this node.
// The session cookie is set from the writer's payload, as a local login
// would set it.
func (h *AuthHandler) relayLogin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBytes))
	if err != nil {
		response.Error(w, apperr.Validation("Ungültige Anmeldedaten"))
		return
	}

	status, respBody, ok := h.fwd.forward(w, r, "/login", body)
	if !ok {
		return
	}

	var env struct {
		Status string        `json:"status"`
		Data   loginResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &env); err == nil && env.Status == "ok" && env.Data.Token != "" {
		setSessionCookie(w, env.Data.Token, env.Data.ValidUntil)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(respBody)
}

// Logout invalidates the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFrom(r.Context())
	if token == "" {
		response.Error(w, apperr.ErrUnauthorized)
		return
	}

	if h.role == config.RoleFollower {
		status, respBody, ok := h.fwd.forward(w, r, "/logout", nil)
		if !ok {
			return
		}
		clearSessionCookie(w)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(respBody)
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		response.Error(w, err)
		return
	}
	clearSessionCookie(w)
	response.OK(w, nil)
}

// Konto returns the account view of the caller; anonymous callers get
// the guest default instead of an error.
func (h *AuthHandler) Konto(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.auth.Konto(middleware.UserFrom(r.Context())))
}

func setSessionCookie(w http.ResponseWriter, token string, validUntil time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     "Authentication",
		Value:    token,
		Path:     "/",
		Expires:  validUntil,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "Authentication",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
