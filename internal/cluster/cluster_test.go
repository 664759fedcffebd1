package cluster

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offenes-grundbuch/registry/internal/config"
)

func TestStaticDiscovery(t *testing.T) {
	ctx := context.Background()
	disc := NewStaticDiscovery(config.ClusterConfig{
		WriterAddr:     "http://writer:8080/",
		WriterPeerAddr: "http://writer:8081",
		Peers:          []string{"http://f1:8081/", "http://f2:8081"},
	})

	writer, err := disc.WriterAddr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://writer:8080", writer)

	peerAddr, err := disc.WriterPeerAddr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://writer:8081", peerAddr)

	peers, err := disc.Peers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "http://f1:8081", peers[0].Address)
	assert.Equal(t, config.RoleFollower, peers[0].Role)
}

func TestWriterPeerAddrFallsBackToWriterAddr(t *testing.T) {
	ctx := context.Background()
	disc := NewStaticDiscovery(config.ClusterConfig{WriterAddr: "http://writer:8080"})

	addr, err := disc.WriterPeerAddr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://writer:8080", addr)

	_, err = NewStaticDiscovery(config.ClusterConfig{}).WriterAddr(ctx)
	assert.Error(t, err)
}

func TestForwardCarriesTokenAndReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/commit", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"title":"x"}`, string(body))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"OK"}`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	status, body, err := c.Forward(context.Background(), srv.URL, "/commit", "tok", "application/json", []byte(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"OK"}`, string(body))
}

func TestForwardRelaysWriterErrorsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("kaputt"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	status, body, err := c.Forward(context.Background(), srv.URL, "/commit", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "kaputt", string(body))
}

func TestNotifyPullHitsBothEndpoints(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	require.NoError(t, c.NotifyPull(context.Background(), srv.URL))
	assert.Equal(t, []string{"/pull", "/pull-db"}, paths)
}

func TestNotifyPullFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	assert.Error(t, c.NotifyPull(context.Background(), srv.URL))
}

func TestFetchMetaDBStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-db", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte("snapshot-bytes"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	rc, err := c.FetchMetaDB(context.Background(), srv.URL)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-bytes", string(data))
}

func TestFetchMetaDBRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.FetchMetaDB(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestApplyChangePostsOperation(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/db", r.URL.Path)
		got, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	require.NoError(t, c.ApplyChange(context.Background(), srv.URL, []byte(`{"op":"create_user"}`)))
	assert.JSONEq(t, `{"op":"create_user"}`, string(got))
}
