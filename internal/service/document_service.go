package service

import (
	"context"
	"errors"

	"github.com/offenes-grundbuch/registry/internal/canonical"
	"github.com/offenes-grundbuch/registry/internal/docstore"
	"github.com/offenes-grundbuch/registry/internal/index"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

// DocumentService serves reads over the local document tree. Reads never
// touch the writer; every node answers from its own replica.
type DocumentService interface {
	// Get returns the canonical bytes of a document.
	Get(ctx context.Context, key models.DocumentKey) ([]byte, error)
	// History returns the commits touching a document, newest first.
	History(ctx context.Context, key models.DocumentKey) ([]models.Commit, error)
	// Search returns documents matching the given terms.
	Search(ctx context.Context, terms string) ([]index.Hit, error)
}

type documentService struct {
	districts repository.DistrictRepository
	docs      *docstore.Store
	index     index.Index
}

// NewDocumentService creates the read-side document service.
func NewDocumentService(districts repository.DistrictRepository, docs *docstore.Store, ix index.Index) DocumentService {
	return &documentService{districts: districts, docs: docs, index: ix}
}

func (s *documentService) Get(ctx context.Context, key models.DocumentKey) ([]byte, error) {
	path, err := s.resolvePath(ctx, key)
	if err != nil {
		return nil, err
	}
	content, err := s.docs.ReadDoc(path)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("Grundbuchblatt " + key.String())
	}
	if err != nil {
		return nil, apperr.Storage("Dokument konnte nicht gelesen werden", err)
	}
	return content, nil
}

func (s *documentService) History(ctx context.Context, key models.DocumentKey) ([]models.Commit, error) {
	path, err := s.resolvePath(ctx, key)
	if err != nil {
		return nil, err
	}
	commits, err := s.docs.History(path)
	if err != nil {
		return nil, apperr.Storage("Historie konnte nicht gelesen werden", err)
	}
	if len(commits) == 0 {
		return nil, apperr.NotFound("Grundbuchblatt " + key.String())
	}
	return commits, nil
}

func (s *documentService) Search(ctx context.Context, terms string) ([]index.Hit, error) {
	hits, err := s.index.Query(ctx, terms)
	if err != nil {
		return nil, apperr.Storage("Suche fehlgeschlagen", err)
	}
	return hits, nil
}

func (s *documentService) resolvePath(ctx context.Context, key models.DocumentKey) (string, error) {
	land, err := s.districts.ResolveLand(ctx, key.Amtsgericht, key.Bezirk)
	if errors.Is(err, repository.ErrAmbiguousBezirk) {
		return "", apperr.BadDistrict(key.Amtsgericht, key.Bezirk)
	}
	if err != nil {
		return "", apperr.Storage("Bezirksauflösung fehlgeschlagen", err)
	}
	if land == "" {
		return "", apperr.BadDistrict(key.Amtsgericht, key.Bezirk)
	}
	return canonical.DocumentPath(land, key.Amtsgericht, key.Bezirk, key.Blatt), nil
}

var _ DocumentService = (*documentService)(nil)
