package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/service"
	"github.com/offenes-grundbuch/registry/internal/syncengine"

	"github.com/go-chi/chi/v5"
)

// SubscriptionHandler manages notification subscriptions. Writes are
// forwarded to the writer on followers; reads answer locally.
type SubscriptionHandler struct {
	role   config.Role
	subs   service.SubscriptionService
	fwd    *forwarder
	logger *slog.Logger
}

// NewSubscriptionHandler creates a subscription handler.
func NewSubscriptionHandler(role config.Role, subs service.SubscriptionService, client *cluster.Client, disc cluster.PeerDiscovery, engine *syncengine.Engine, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		role:   role,
		subs:   subs,
		fwd:    &forwarder{client: client, disc: disc, engine: engine, logger: logger},
		logger: logger,
	}
}

// subscriptionRequest is the POST/DELETE body: the delivery target plus
// an optional Aktenzeichen echoed back in every notification.
type subscriptionRequest struct {
	Target    string  `json:"target"`
	Reference *string `json:"reference,omitempty"`
}

func subscriptionFromURL(r *http.Request) (models.SubscriptionKind, models.DocumentKey, error) {
	kind := models.SubscriptionKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", models.DocumentKey{}, apperr.Validation("Unbekannte Benachrichtigungsart: " + chi.URLParam(r, "kind"))
	}
	key, err := keyFromURL(r)
	if err != nil {
		return "", models.DocumentKey{}, err
	}
	return kind, key, nil
}

// Create registers a subscription for the document key in the URL.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, apperr.Validation("Anfrage konnte nicht gelesen werden"))
		return
	}

	if h.role == config.RoleFollower {
		h.fwd.relay(w, r, r.URL.Path, body)
		return
	}

	kind, key, err := subscriptionFromURL(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req subscriptionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, apperr.Validation("Ungültige Anfrage: "+err.Error()))
		return
	}

	sub := &models.Subscription{
		Kind:        kind,
		Target:      req.Target,
		Amtsgericht: key.Amtsgericht,
		Bezirk:      key.Bezirk,
		Blatt:       key.Blatt,
		Reference:   req.Reference,
	}
	if err := h.subs.Create(r.Context(), sub); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, sub)
}

// Delete removes a subscription. Deleting an unknown subscription
// succeeds, so create-then-delete always returns to the initial state.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, apperr.Validation("Anfrage konnte nicht gelesen werden"))
		return
	}

	if h.role == config.RoleFollower {
		h.fwd.relay(w, r, r.URL.Path, body)
		return
	}

	kind, key, err := subscriptionFromURL(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req subscriptionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, apperr.Validation("Ungültige Anfrage: "+err.Error()))
		return
	}

	if err := h.subs.Delete(r.Context(), kind, req.Target, key); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, nil)
}

// List returns the subscriptions of one document key.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	_, key, err := subscriptionFromURL(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	subs, err := h.subs.ListByKey(r.Context(), key)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, subs)
}
