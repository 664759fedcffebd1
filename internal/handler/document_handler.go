package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pdf"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/pkg/response"
	"github.com/offenes-grundbuch/registry/internal/service"
)

// DocumentHandler serves document reads: downloads, search and history.
type DocumentHandler struct {
	docs     service.DocumentService
	renderer pdf.Renderer
	logger   *slog.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(docs service.DocumentService, renderer pdf.Renderer, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, renderer: renderer, logger: logger}
}

// keyFromURL extracts the document key from the route parameters.
func keyFromURL(r *http.Request) (models.DocumentKey, error) {
	blatt, err := strconv.Atoi(chi.URLParam(r, "blatt"))
	if err != nil || blatt < 1 {
		return models.DocumentKey{}, apperr.Validation("Ungültige Blattnummer: " + chi.URLParam(r, "blatt"))
	}
	return models.DocumentKey{
		Amtsgericht: chi.URLParam(r, "amtsgericht"),
		Bezirk:      chi.URLParam(r, "bezirk"),
		Blatt:       blatt,
	}, nil
}

// Download returns the canonical document bytes, or a plain 404.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromURL(r)
	if err != nil {
		response.NotFound(w)
		return
	}

	content, err := h.docs.Get(r.Context(), key)
	if err != nil {
		response.NotFound(w)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(content)
}

// DownloadPDF renders the document as PDF. Rendering failures surface as
// a plain 500.
func (h *DocumentHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromURL(r)
	if err != nil {
		response.NotFound(w)
		return
	}

	content, err := h.docs.Get(r.Context(), key)
	if err != nil {
		response.NotFound(w)
		return
	}

	rendered, err := h.renderer.Render(r.Context(), models.Document{DocumentKey: key, Body: content})
	if err != nil {
		if !errors.Is(err, pdf.ErrUnavailable) {
			h.logger.Error("pdf rendering failed", "key", key.String(), "error", err)
		}
		http.Error(w, "pdf rendering failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Write(rendered)
}

// Search returns index hits for the search term.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	hits, err := h.docs.Search(r.Context(), chi.URLParam(r, "term"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, hits)
}

// History returns the commits touching one document, newest first.
func (h *DocumentHandler) History(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromURL(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	commits, err := h.docs.History(r.Context(), key)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, commits)
}
