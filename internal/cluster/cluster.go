// Package cluster provides replica topology awareness and the HTTP client
// for cluster-local calls: forwarding writes to the writer, fetching the
// MetaStore snapshot and push-notifying followers.
package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/offenes-grundbuch/registry/internal/config"
)

// Peer is one known cluster member.
type Peer struct {
	Address string
	Role    config.Role
}

// PeerDiscovery resolves the current cluster topology. The static
// implementation reads it from configuration; an orchestrator-backed one
// can replace it without touching callers.
type PeerDiscovery interface {
	// Peers lists the follower peer-port base URLs.
	Peers(ctx context.Context) ([]Peer, error)
	// WriterAddr returns the writer's public base URL.
	WriterAddr(ctx context.Context) (string, error)
	// WriterPeerAddr returns the writer's cluster-port base URL.
	WriterPeerAddr(ctx context.Context) (string, error)
}

type staticDiscovery struct {
	cfg config.ClusterConfig
}

// NewStaticDiscovery returns discovery backed by the node configuration.
func NewStaticDiscovery(cfg config.ClusterConfig) PeerDiscovery {
	return &staticDiscovery{cfg: cfg}
}

func (d *staticDiscovery) Peers(ctx context.Context) ([]Peer, error) {
	peers := make([]Peer, 0, len(d.cfg.Peers))
	for _, addr := range d.cfg.Peers {
		peers = append(peers, Peer{Address: strings.TrimRight(addr, "/"), Role: config.RoleFollower})
	}
	return peers, nil
}

func (d *staticDiscovery) WriterAddr(ctx context.Context) (string, error) {
	if d.cfg.WriterAddr == "" {
		return "", fmt.Errorf("no writer address configured")
	}
	return strings.TrimRight(d.cfg.WriterAddr, "/"), nil
}

func (d *staticDiscovery) WriterPeerAddr(ctx context.Context) (string, error) {
	if d.cfg.WriterPeerAddr != "" {
		return strings.TrimRight(d.cfg.WriterPeerAddr, "/"), nil
	}
	return d.WriterAddr(ctx)
}

// Client performs cluster-local HTTP calls with bounded timeouts.
type Client struct {
	http *http.Client
}

// NewClient creates a cluster client. Timeout bounds every call.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Forward posts a request body to the writer, carrying the original
// bearer token so the writer authenticates the real user. The response
// body is returned verbatim for relaying to the client.
func (c *Client) Forward(ctx context.Context, base, path, token, contentType string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("forward %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("forward %s: read response: %w", path, err)
	}
	return resp.StatusCode, respBody, nil
}

// NotifyPull signals one follower to pull the document tree and the
// MetaStore snapshot.
func (c *Client) NotifyPull(ctx context.Context, peerBase string) error {
	for _, path := range []string{"/pull", "/pull-db"} {
		if err := c.post(ctx, peerBase+path, nil); err != nil {
			return err
		}
	}
	return nil
}

// FetchMetaDB streams the writer's compressed MetaStore snapshot. The
// caller must close the returned reader.
func (c *Client) FetchMetaDB(ctx context.Context, writerPeerBase string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, writerPeerBase+"/get-db", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadb snapshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch metadb snapshot: writer returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// ApplyChange posts one Change-DB operation to the writer's cluster port.
func (c *Client) ApplyChange(ctx context.Context, writerPeerBase string, op []byte) error {
	return c.post(ctx, writerPeerBase+"/db", op)
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}
