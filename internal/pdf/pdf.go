// Package pdf defines the document PDF rendering collaborator.
package pdf

import (
	"context"
	"errors"

	"github.com/offenes-grundbuch/registry/internal/models"
)

// ErrUnavailable is returned when no renderer is configured.
var ErrUnavailable = errors.New("pdf rendering not available")

// Renderer renders one document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, doc models.Document) ([]byte, error)
}

// Unavailable is the null renderer used when no rendering backend is
// configured; every render fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Render(context.Context, models.Document) ([]byte, error) {
	return nil, ErrUnavailable
}

var _ Renderer = Unavailable{}
