package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/middleware"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/service"
)

// Handlers bundles the public-surface handlers for routing.
type Handlers struct {
	Auth          *AuthHandler
	Commit        *CommitHandler
	Documents     *DocumentHandler
	Subscriptions *SubscriptionHandler
	Access        *AccessHandler
}

// NewRouter builds the public HTTP surface.
func NewRouter(h Handlers, auth service.AuthService, redis *database.Redis, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(redis, middleware.DefaultRateLimitConfig()))
	r.Use(middleware.Session(auth))

	r.Post("/login", h.Auth.Login)
	r.Post("/logout", h.Auth.Logout)
	r.Get("/konto", h.Auth.Konto)

	r.Post("/commit", h.Commit.Commit)
	// Legacy alias used by follower front-ends.
	r.Post("/upload", h.Commit.Commit)

	r.Get("/download/doc/{amtsgericht}/{bezirk}/{blatt}", h.Documents.Download)
	r.Get("/download/pdf/{amtsgericht}/{bezirk}/{blatt}", h.Documents.DownloadPDF)
	r.Get("/search/{term}", h.Documents.Search)
	r.Get("/history/{amtsgericht}/{bezirk}/{blatt}", h.Documents.History)

	r.Route("/subscription/{kind}/{amtsgericht}/{bezirk}/{blatt}", func(r chi.Router) {
		r.Post("/", h.Subscriptions.Create)
		r.Delete("/", h.Subscriptions.Delete)
		r.With(middleware.RequireRole(models.RoleAdmin)).Get("/", h.Subscriptions.List)
	})

	r.Route("/access-request", func(r chi.Router) {
		r.Post("/", h.Access.Create)
		r.With(middleware.RequireRole(models.RoleAdmin)).Get("/pending", h.Access.ListPending)
		r.With(middleware.RequireRole(models.RoleAdmin)).Post("/{id}/grant", h.Access.Grant)
		r.With(middleware.RequireRole(models.RoleAdmin)).Post("/{id}/deny", h.Access.Deny)
	})

	return r
}

// NewPeerRouter builds the cluster-local surface served on the peer
// port: Change-DB mutations, pull triggers, the snapshot download,
// health probes and metrics.
func NewPeerRouter(peer *PeerHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(logger))

	r.Post("/db", peer.ApplyChange)
	r.Post("/pull", peer.Pull)
	r.Post("/pull-db", peer.PullDB)
	r.Post("/get-db", peer.GetDB)
	r.Post("/get-data", peer.GetData)

	r.Get("/health", peer.Health)
	r.Get("/ready", peer.Ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
