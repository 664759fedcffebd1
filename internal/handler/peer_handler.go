package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/offenes-grundbuch/registry/internal/changedb"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/docstore"
	"github.com/offenes-grundbuch/registry/internal/middleware"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/syncengine"
)

// PeerHandler serves the cluster-local surface. It is mounted only on
// the peer port, which deployments keep off the public network; callers
// distinguish outcomes by HTTP status.
type PeerHandler struct {
	role    config.Role
	meta    *database.Meta
	docs    *docstore.Store
	applier *changedb.Applier
	engine  *syncengine.Engine
	logger  *slog.Logger
}

// NewPeerHandler creates the peer-surface handler.
func NewPeerHandler(role config.Role, meta *database.Meta, docs *docstore.Store, applier *changedb.Applier, engine *syncengine.Engine, logger *slog.Logger) *PeerHandler {
	return &PeerHandler{
		role:    role,
		meta:    meta,
		docs:    docs,
		applier: applier,
		engine:  engine,
		logger:  logger,
	}
}

// ApplyChange applies one Change-DB operation. Only write-capable nodes
// accept mutations; followers receive state via snapshot pulls instead.
func (h *PeerHandler) ApplyChange(w http.ResponseWriter, r *http.Request) {
	if h.role == config.RoleFollower {
		response.PeerError(w, http.StatusForbidden,
			apperr.Validation("Änderungen nur am Schreibknoten"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		response.PeerError(w, http.StatusBadRequest, apperr.Validation("Anfrage konnte nicht gelesen werden"))
		return
	}

	op, err := changedb.Decode(body)
	if err != nil {
		response.PeerError(w, http.StatusBadRequest, apperr.Validation(err.Error()))
		return
	}

	if err := h.applier.Apply(r.Context(), op); err != nil {
		h.logger.Error("change operation failed", "op", string(op.Kind), "error", err)
		response.PeerError(w, http.StatusInternalServerError, apperr.Storage("Änderung fehlgeschlagen", err))
		return
	}

	h.logger.Info("change operation applied", "op", string(op.Kind))
	if h.engine != nil {
		// Detached from the request; the change is durable already.
		go h.engine.PushNotify(context.Background())
	}
	response.PeerOK(w)
}

// Pull triggers a document tree pull on this node.
func (h *PeerHandler) Pull(w http.ResponseWriter, r *http.Request) {
	if h.role != config.RoleFollower {
		response.PeerOK(w)
		return
	}
	if err := h.engine.PullDocs(r.Context()); err != nil {
		h.logger.Error("document pull failed", "error", err)
		response.PeerError(w, http.StatusInternalServerError, apperr.Cluster("Dokumentenabgleich fehlgeschlagen", err))
		return
	}
	middleware.IncrementPulls("docs")
	response.PeerOK(w)
}

// PullDB triggers a MetaStore snapshot pull on this node.
func (h *PeerHandler) PullDB(w http.ResponseWriter, r *http.Request) {
	if h.role != config.RoleFollower {
		response.PeerOK(w)
		return
	}
	if err := h.engine.PullMetaDB(r.Context()); err != nil {
		h.logger.Error("metastore pull failed", "error", err)
		response.PeerError(w, http.StatusInternalServerError, apperr.Cluster("Metadatenabgleich fehlgeschlagen", err))
		return
	}
	middleware.IncrementPulls("metadb")
	response.PeerOK(w)
}

// GetDB streams the compressed MetaStore snapshot.
func (h *PeerHandler) GetDB(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.meta.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("snapshot failed", "error", err)
		response.PeerError(w, http.StatusInternalServerError, apperr.Storage("Schnappschuss fehlgeschlagen", err))
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Write(snapshot)
}

// GetData streams a compressed archive of the current document tree,
// used by followers when bootstrapping.
func (h *PeerHandler) GetData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/gzip")
	if err := h.docs.Export(r.Context(), w); err != nil {
		h.logger.Error("document tree export failed", "error", err)
	}
}

// Health reports liveness.
func (h *PeerHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Ready reports readiness: the MetaStore must answer.
func (h *PeerHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.meta.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
