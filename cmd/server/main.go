// Package main is the entry point for the registry server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offenes-grundbuch/registry/internal/changedb"
	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/docstore"
	"github.com/offenes-grundbuch/registry/internal/handler"
	"github.com/offenes-grundbuch/registry/internal/index"
	"github.com/offenes-grundbuch/registry/internal/notifier"
	"github.com/offenes-grundbuch/registry/internal/pdf"
	"github.com/offenes-grundbuch/registry/internal/repository"
	"github.com/offenes-grundbuch/registry/internal/service"
	"github.com/offenes-grundbuch/registry/internal/sigverify"
	"github.com/offenes-grundbuch/registry/internal/syncengine"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting registry",
		slog.String("role", string(cfg.Cluster.Role)),
		slog.Int("port", cfg.Server.Port),
		slog.Int("peer_port", cfg.Server.PeerPort),
	)

	meta, err := database.OpenMeta(cfg.Store.MetaDBPath())
	if err != nil {
		log.Fatalf("Failed to open metastore: %v", err)
	}
	defer meta.Close()
	logger.Info("MetaStore opened", slog.String("path", cfg.Store.MetaDBPath()))

	docs, err := docstore.Open(cfg.Store.DataDir())
	if err != nil {
		log.Fatalf("Failed to open docstore: %v", err)
	}
	logger.Info("DocStore opened", slog.String("path", cfg.Store.DataDir()))

	ix, err := index.Open(cfg.Store.IndexDir())
	if err != nil {
		log.Fatalf("Failed to open search index: %v", err)
	}
	defer ix.Close()
	if err := index.Rebuild(context.Background(), ix, docs.Walk); err != nil {
		log.Fatalf("Failed to rebuild search index: %v", err)
	}
	logger.Info("Search index ready")

	// Redis is optional; without it rate limiting and notification
	// dedupe are skipped.
	var redis *database.Redis
	if cfg.Redis.Enabled() {
		redis, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redis.Close()
		logger.Info("Connected to Redis")
	}

	// Repositories.
	users := repository.NewUserRepository(meta)
	sessions := repository.NewSessionRepository(meta)
	keys := repository.NewKeyRepository(meta)
	districts := repository.NewDistrictRepository(meta)
	subs := repository.NewSubscriptionRepository(meta)
	access := repository.NewAccessRequestRepository(meta)
	settings := repository.NewSettingsRepository(meta)

	// Cluster plumbing.
	disc := cluster.NewStaticDiscovery(cfg.Cluster)
	client := cluster.NewClient(cfg.Cluster.RequestTimeout)
	engine := syncengine.New(cfg.Cluster, meta, docs, disc, client, logger)

	var mailer notifier.Mailer
	if cfg.SMTP.Enabled() {
		mailer = notifier.NewSMTPMailer(cfg.SMTP)
	}
	notify := notifier.New(subs, redis, mailer, cfg.Server.PublicURL, logger)

	// Services.
	verifier := sigverify.New(keys)
	authSvc := service.NewAuthService(users, sessions, cfg.Auth.SessionTTL, logger)
	commitSvc := service.NewCommitService(districts, verifier, docs, ix, notify, engine, logger)
	docSvc := service.NewDocumentService(districts, docs, ix)
	subSvc := service.NewSubscriptionService(subs, districts, logger)
	accessSvc := service.NewAccessService(access, logger)

	applier := changedb.NewApplier(users, keys, sessions, districts, subs, access, settings)

	// Handlers and routers.
	handlers := handler.Handlers{
		Auth:          handler.NewAuthHandler(cfg.Cluster.Role, authSvc, client, disc, engine, logger),
		Commit:        handler.NewCommitHandler(cfg.Cluster.Role, commitSvc, client, disc, engine, logger),
		Documents:     handler.NewDocumentHandler(docSvc, pdf.Unavailable{}, logger),
		Subscriptions: handler.NewSubscriptionHandler(cfg.Cluster.Role, subSvc, client, disc, engine, logger),
		Access:        handler.NewAccessHandler(cfg.Cluster.Role, accessSvc, client, disc, engine, logger),
	}
	peerHandler := handler.NewPeerHandler(cfg.Cluster.Role, meta, docs, applier, engine, logger)

	public := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.NewRouter(handlers, authSvc, redis, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}
	peer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.PeerPort),
		Handler:      handler.NewPeerRouter(peerHandler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	// A fresh follower bootstraps itself before serving.
	if cfg.Cluster.Role == config.RoleFollower {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Cluster.RequestTimeout)
		if err := engine.PullAll(ctx); err != nil {
			logger.Warn("initial pull failed, serving stale state", "error", err)
		}
		cancel()
	}

	go func() {
		logger.Info("Public server listening", slog.String("addr", public.Addr))
		if err := public.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Public server error: %v", err)
		}
	}()
	go func() {
		logger.Info("Peer server listening", slog.String("addr", peer.Addr))
		if err := peer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Peer server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := public.Shutdown(ctx); err != nil {
		logger.Error("Public server shutdown error", "error", err)
	}
	if err := peer.Shutdown(ctx); err != nil {
		logger.Error("Peer server shutdown error", "error", err)
	}

	logger.Info("Server stopped gracefully")
}
