package handler

import (
	"log/slog"
	"net/http"

	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/middleware"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/syncengine"
)

// forwarder relays write requests from a follower to the writer and
// pulls afterwards so the caller observes its own write on this node.
type forwarder struct {
	client *cluster.Client
	disc   cluster.PeerDiscovery
	engine *syncengine.Engine
	logger *slog.Logger
}

// forward posts the raw body to the writer under the caller's token and
// returns the writer's status and body. An unreachable writer or a
// writer answering 5xx gets the ClusterUnavailable envelope written
// here, and ok is false.
func (f *forwarder) forward(w http.ResponseWriter, r *http.Request, path string, body []byte) (status int, respBody []byte, ok bool) {
	ctx := r.Context()

	addr, err := f.disc.WriterAddr(ctx)
	if err != nil {
		response.Error(w, apperr.ErrClusterUnavailable)
		return 0, nil, false
	}

	status, respBody, err = f.client.Forward(ctx, addr, path,
		middleware.TokenFrom(ctx), r.Header.Get("Content-Type"), body)
	if err != nil {
		f.logger.Error("forward failed", "writer", addr, "path", path, "error", err)
		response.Error(w, apperr.ErrClusterUnavailable)
		return 0, nil, false
	}
	if status >= http.StatusInternalServerError {
		f.logger.Error("writer returned server error", "writer", addr, "path", path, "status", status)
		response.Error(w, apperr.ErrClusterUnavailable)
		return 0, nil, false
	}

	if status == http.StatusOK {
		if err := f.engine.PullAll(ctx); err != nil {
			f.logger.Error("post-forward pull failed", "error", err)
		} else {
			middleware.IncrementPulls("docs")
			middleware.IncrementPulls("metadb")
		}
	}
	return status, respBody, true
}

// relay forwards and writes the writer's response verbatim.
func (f *forwarder) relay(w http.ResponseWriter, r *http.Request, path string, body []byte) {
	status, respBody, ok := f.forward(w, r, path, body)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(respBody)
}
