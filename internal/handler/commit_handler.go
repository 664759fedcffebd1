package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/middleware"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/service"
	"github.com/offenes-grundbuch/registry/internal/syncengine"
)

// maxChangesetBytes bounds the accepted changeset body.
const maxChangesetBytes = 32 << 20

// CommitHandler handles changeset submission. On write-capable nodes the
// changeset is applied locally; on followers it is forwarded verbatim to
// the writer and the node pulls before answering, so the caller observes
// its own write.
type CommitHandler struct {
	role    config.Role
	commits service.CommitService
	fwd     *forwarder
	logger  *slog.Logger
}

// NewCommitHandler creates a commit handler. client, disc and engine are
// only used on followers and may be nil elsewhere.
func NewCommitHandler(role config.Role, commits service.CommitService, client *cluster.Client, disc cluster.PeerDiscovery, engine *syncengine.Engine, logger *slog.Logger) *CommitHandler {
	return &CommitHandler{
		role:    role,
		commits: commits,
		fwd:     &forwarder{client: client, disc: disc, engine: engine, logger: logger},
		logger:  logger,
	}
}

// Commit accepts one signed changeset. /upload is an alias served by the
// same method.
func (h *CommitHandler) Commit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxChangesetBytes))
	if err != nil {
		response.Error(w, apperr.Validation("Änderungssatz konnte nicht gelesen werden"))
		return
	}

	if h.role == config.RoleFollower {
		h.fwd.relay(w, r, "/commit", body)
		return
	}

	var cs models.Changeset
	if err := json.Unmarshal(body, &cs); err != nil {
		response.Error(w, apperr.Validation("Ungültiger Änderungssatz: "+err.Error()))
		return
	}

	result, err := h.commits.Commit(r.Context(), middleware.UserFrom(r.Context()), &cs)
	if err != nil {
		response.Error(w, err)
		return
	}
	middleware.IncrementCommits()
	response.OK(w, result)
}
