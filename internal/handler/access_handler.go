package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/go-chi/chi/v5"

	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/middleware"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/service"
	"github.com/offenes-grundbuch/registry/internal/syncengine"
)

// AccessHandler manages access requests and their admin decisions.
type AccessHandler struct {
	role   config.Role
	access service.AccessService
	fwd    *forwarder
	logger *slog.Logger
}

// NewAccessHandler creates an access request handler.
func NewAccessHandler(role config.Role, access service.AccessService, client *cluster.Client, disc cluster.PeerDiscovery, engine *syncengine.Engine, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{
		role:   role,
		access: access,
		fwd:    &forwarder{client: client, disc: disc, engine: engine, logger: logger},
		logger: logger,
	}
}

// Create files a pending access request. No authentication required;
// external parties file these.
func (h *AccessHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, apperr.Validation("Anfrage konnte nicht gelesen werden"))
		return
	}

	if h.role == config.RoleFollower {
		h.fwd.relay(w, r, r.URL.Path, body)
		return
	}

	var req models.AccessRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, apperr.Validation("Ungültiger Antrag: "+err.Error()))
		return
	}
	// Server-assigned fields; clients cannot pre-decide their request.
	req.ID = uuid.Nil
	req.State = models.AccessPending
	req.DecidedBy = nil
	req.DecidedAt = nil

	if err := h.access.Create(r.Context(), &req); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, req)
}

// ListPending returns all undecided requests, oldest first.
func (h *AccessHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.access.ListPending(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, reqs)
}

// Grant approves a pending request.
func (h *AccessHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// Deny rejects a pending request.
func (h *AccessHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *AccessHandler) decide(w http.ResponseWriter, r *http.Request, grant bool) {
	if h.role == config.RoleFollower {
		h.fwd.relay(w, r, r.URL.Path, nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apperr.Validation("Ungültige Antrags-ID"))
		return
	}

	actor := middleware.UserFrom(r.Context())
	if grant {
		err = h.access.Grant(r.Context(), actor, id)
	} else {
		err = h.access.Deny(r.Context(), actor, id)
	}
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, nil)
}
