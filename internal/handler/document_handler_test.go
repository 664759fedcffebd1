package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offenes-grundbuch/registry/internal/index"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pdf"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/service"
)

type stubDocumentService struct {
	docs    map[string][]byte
	history map[string][]models.Commit
	hits    []index.Hit
}

var _ service.DocumentService = (*stubDocumentService)(nil)

func (s *stubDocumentService) Get(ctx context.Context, key models.DocumentKey) ([]byte, error) {
	if content, ok := s.docs[key.String()]; ok {
		return content, nil
	}
	return nil, apperr.NotFound("Grundbuchblatt " + key.String())
}

func (s *stubDocumentService) History(ctx context.Context, key models.DocumentKey) ([]models.Commit, error) {
	if commits, ok := s.history[key.String()]; ok {
		return commits, nil
	}
	return nil, apperr.NotFound("Grundbuchblatt " + key.String())
}

func (s *stubDocumentService) Search(ctx context.Context, terms string) ([]index.Hit, error) {
	return s.hits, nil
}

// serve routes the request through chi so URL parameters resolve.
func serveDoc(h *DocumentHandler, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/download/doc/{amtsgericht}/{bezirk}/{blatt}", h.Download)
	r.Get("/download/pdf/{amtsgericht}/{bezirk}/{blatt}", h.DownloadPDF)
	r.Get("/search/{term}", h.Search)
	r.Get("/history/{amtsgericht}/{bezirk}/{blatt}", h.History)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestDownloadReturnsRawDocument(t *testing.T) {
	svc := &stubDocumentService{docs: map[string][]byte{
		"Prenzlau/Seelübbe/42": []byte(`{"a": 1}`),
	}}
	h := NewDocumentHandler(svc, pdf.Unavailable{}, testLogger())

	rec := serveDoc(h, http.MethodGet, "/download/doc/Prenzlau/Seelübbe/42")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"a": 1}`, rec.Body.String())
}

func TestDownloadUnknownDocumentIsPlain404(t *testing.T) {
	h := NewDocumentHandler(&stubDocumentService{}, pdf.Unavailable{}, testLogger())

	rec := serveDoc(h, http.MethodGet, "/download/doc/Prenzlau/Seelübbe/42")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed Blatt numbers 404 the same way.
	rec = serveDoc(h, http.MethodGet, "/download/doc/Prenzlau/Seelübbe/zero")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serveDoc(h, http.MethodGet, "/download/doc/Prenzlau/Seelübbe/0")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadPDFWithoutRendererIs500(t *testing.T) {
	svc := &stubDocumentService{docs: map[string][]byte{
		"Prenzlau/Seelübbe/42": []byte(`{"a":1}`),
	}}
	h := NewDocumentHandler(svc, pdf.Unavailable{}, testLogger())

	rec := serveDoc(h, http.MethodGet, "/download/pdf/Prenzlau/Seelübbe/42")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSearchReturnsHits(t *testing.T) {
	svc := &stubDocumentService{hits: []index.Hit{
		{Land: "BB", Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 42, Snippet: "…Mustermann…"},
	}}
	h := NewDocumentHandler(svc, pdf.Unavailable{}, testLogger())

	rec := serveDoc(h, http.MethodGet, "/search/Mustermann")

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "ok", env.Status)
	var hits []index.Hit
	require.NoError(t, json.Unmarshal(env.Data, &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, 42, hits[0].Blatt)
}

func TestHistoryUnknownDocumentIsEnvelopeError(t *testing.T) {
	h := NewDocumentHandler(&stubDocumentService{}, pdf.Unavailable{}, testLogger())

	rec := serveDoc(h, http.MethodGet, "/history/Prenzlau/Seelübbe/42")

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Code)
	assert.Equal(t, apperr.CodeNotFound, *env.Code)
}
