package syncengine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/config"
	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/docstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMeta(t *testing.T) *database.Meta {
	t.Helper()
	meta, err := database.OpenMeta(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	return meta
}

// seedWriterTree creates a writer document store with one committed file
// and returns its data directory, the shape of the shared mount a
// follower pulls from.
func seedWriterTree(t *testing.T) (dataDir, commitID string) {
	t.Helper()
	dataDir = t.TempDir()
	writer, err := docstore.Open(dataDir)
	require.NoError(t, err)

	commitID, _, err = writer.Commit(context.Background(),
		docstore.Author{Name: "U", Email: "u@example.org"}, "seed\n",
		[]docstore.FileWrite{{Path: "BB/Prenzlau/Seelübbe/Seelübbe_42.json", Content: []byte(`{"v":1}`)}})
	require.NoError(t, err)
	return dataDir, commitID
}

func TestPullDocsFromRemoteMount(t *testing.T) {
	ctx := context.Background()
	writerDataDir, commitID := seedWriterTree(t)

	docs, err := docstore.Open(t.TempDir())
	require.NoError(t, err)

	cfg := config.ClusterConfig{Role: config.RoleFollower, RemoteMount: writerDataDir}
	engine := New(cfg, newTestMeta(t), docs, cluster.NewStaticDiscovery(cfg), cluster.NewClient(0), testLogger())

	require.NoError(t, engine.PullDocs(ctx))

	content, err := docs.ReadDoc("BB/Prenzlau/Seelübbe/Seelübbe_42.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(content))

	head, err := docs.Head()
	require.NoError(t, err)
	assert.Equal(t, commitID, head)

	// Pulling while already up-to-date is a no-op.
	require.NoError(t, engine.PullDocs(ctx))
}

func TestPullAllSyncsDocsAndMetaDB(t *testing.T) {
	ctx := context.Background()
	writerDataDir, _ := seedWriterTree(t)

	// The writer's MetaStore snapshot, served on the cluster port.
	source := newTestMeta(t)
	_, err := source.Writer().ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ('origin', 'writer')`)
	require.NoError(t, err)
	snapshot, err := source.Snapshot(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-db", r.URL.Path)
		w.Write(snapshot)
	}))
	defer srv.Close()

	docs, err := docstore.Open(t.TempDir())
	require.NoError(t, err)
	meta := newTestMeta(t)

	cfg := config.ClusterConfig{
		Role:           config.RoleFollower,
		RemoteMount:    writerDataDir,
		WriterAddr:     srv.URL,
		WriterPeerAddr: srv.URL,
	}
	engine := New(cfg, meta, docs, cluster.NewStaticDiscovery(cfg), cluster.NewClient(0), testLogger())

	require.NoError(t, engine.PullAll(ctx))

	_, err = docs.ReadDoc("BB/Prenzlau/Seelübbe/Seelübbe_42.json")
	require.NoError(t, err)

	var v string
	err = meta.Reader().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'origin'`).Scan(&v)
	require.NoError(t, err)
	assert.Equal(t, "writer", v)
}

func TestPushNotifySignalsEveryPeer(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
	}))
	defer peer.Close()

	docs, err := docstore.Open(t.TempDir())
	require.NoError(t, err)

	cfg := config.ClusterConfig{Role: config.RoleWriter, Peers: []string{peer.URL}}
	engine := New(cfg, newTestMeta(t), docs, cluster.NewStaticDiscovery(cfg), cluster.NewClient(0), testLogger())

	engine.PushNotify(context.Background())

	assert.ElementsMatch(t, []string{"/pull", "/pull-db"}, paths)
}

func TestPushNotifyToleratesDeadPeers(t *testing.T) {
	docs, err := docstore.Open(t.TempDir())
	require.NoError(t, err)

	cfg := config.ClusterConfig{Role: config.RoleWriter, Peers: []string{"http://127.0.0.1:1"}}
	engine := New(cfg, newTestMeta(t), docs, cluster.NewStaticDiscovery(cfg), cluster.NewClient(0), testLogger())

	// Failures are logged, never surfaced.
	engine.PushNotify(context.Background())
}
