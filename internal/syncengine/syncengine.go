// Package syncengine replicates state between cluster nodes: the writer
// push-notifies followers after every commit, followers pull the document
// tree and the MetaStore snapshot.
package syncengine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/docstore"
)

// Engine drives replication for one node.
type Engine struct {
	cfg    config.ClusterConfig
	meta   *database.Meta
	docs   *docstore.Store
	disc   cluster.PeerDiscovery
	client *cluster.Client
	logger *slog.Logger

	// pullMu serialises follower pulls; overlapping pulls of the same
	// snapshot waste bandwidth and race on the MetaStore swap.
	pullMu sync.Mutex
}

// New creates a sync engine.
func New(cfg config.ClusterConfig, meta *database.Meta, docs *docstore.Store, disc cluster.PeerDiscovery, client *cluster.Client, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		meta:   meta,
		docs:   docs,
		disc:   disc,
		client: client,
		logger: logger,
	}
}

// PushNotify signals every follower to pull. Delivery is best-effort:
// a follower that misses the signal converges on its next pull, so
// failures are logged and never surfaced to the committing user.
func (e *Engine) PushNotify(ctx context.Context) {
	peers, err := e.disc.Peers(ctx)
	if err != nil {
		e.logger.Error("peer discovery failed, skipping push-notify", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(p cluster.Peer) {
			defer wg.Done()
			if err := e.client.NotifyPull(ctx, p.Address); err != nil {
				e.logger.Warn("push-notify failed", "peer", p.Address, "error", err)
				return
			}
			e.logger.Debug("push-notify delivered", "peer", p.Address)
		}(peer)
	}
	wg.Wait()
}

// PullDocs pulls the writer's document tree into the local DocStore.
// Pulling while already up-to-date is a no-op.
func (e *Engine) PullDocs(ctx context.Context) error {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	if err := e.docs.Pull(ctx, e.cfg.RemoteMount); err != nil {
		return err
	}
	e.logger.Info("document tree pulled", "remote", e.cfg.RemoteMount)
	return nil
}

// PullMetaDB fetches the writer's MetaStore snapshot and atomically
// replaces the local file.
func (e *Engine) PullMetaDB(ctx context.Context) error {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	addr, err := e.disc.WriterPeerAddr(ctx)
	if err != nil {
		return err
	}

	body, err := e.client.FetchMetaDB(ctx, addr)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := e.meta.Replace(ctx, body); err != nil {
		return err
	}
	e.logger.Info("metastore snapshot replaced", "writer", addr)
	return nil
}

// PullAll pulls documents first, then the MetaStore, so a session token
// arriving with the snapshot never references documents the node lacks.
func (e *Engine) PullAll(ctx context.Context) error {
	if err := e.PullDocs(ctx); err != nil {
		return err
	}
	return e.PullMetaDB(ctx)
}
