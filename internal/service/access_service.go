package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

// AccessService manages access requests filed by external parties and
// their admin decisions.
type AccessService interface {
	Create(ctx context.Context, req *models.AccessRequest) error
	ListPending(ctx context.Context) ([]*models.AccessRequest, error)
	Grant(ctx context.Context, actor *models.User, id uuid.UUID) error
	Deny(ctx context.Context, actor *models.User, id uuid.UUID) error
}

type accessService struct {
	access repository.AccessRequestRepository
	logger *slog.Logger
}

// NewAccessService creates the access request service.
func NewAccessService(access repository.AccessRequestRepository, logger *slog.Logger) AccessService {
	return &accessService{access: access, logger: logger}
}

// Create files a pending request. Anyone may file one; decisions require
// an admin.
func (s *accessService) Create(ctx context.Context, req *models.AccessRequest) error {
	if req.Name == "" || req.Justification == "" {
		return apperr.Validation("Name und Begründung sind erforderlich")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return apperr.Validation("Ungültige E-Mail-Adresse: " + req.Email)
	}
	if len(req.Keys) == 0 {
		return apperr.Validation("Mindestens ein Grundbuchblatt ist erforderlich")
	}

	if err := s.access.Create(ctx, req); err != nil {
		return apperr.Storage("Antrag konnte nicht angelegt werden", err)
	}
	s.logger.Info("access request filed", "id", req.ID.String(), "email", req.Email)
	return nil
}

func (s *accessService) ListPending(ctx context.Context) ([]*models.AccessRequest, error) {
	reqs, err := s.access.ListByState(ctx, models.AccessPending)
	if err != nil {
		return nil, apperr.Storage("Anträge konnten nicht gelesen werden", err)
	}
	return reqs, nil
}

func (s *accessService) Grant(ctx context.Context, actor *models.User, id uuid.UUID) error {
	return s.decide(ctx, actor, id, models.AccessGranted)
}

func (s *accessService) Deny(ctx context.Context, actor *models.User, id uuid.UUID) error {
	return s.decide(ctx, actor, id, models.AccessDenied)
}

func (s *accessService) decide(ctx context.Context, actor *models.User, id uuid.UUID, state models.AccessRequestState) error {
	if actor == nil {
		return apperr.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return apperr.ErrForbidden
	}

	err := s.access.SetState(ctx, id, state, actor.Email, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("Offener Antrag " + id.String())
	}
	if err != nil {
		return apperr.Storage("Antrag konnte nicht entschieden werden", err)
	}
	s.logger.Info("access request decided",
		"id", id.String(), "state", string(state), "actor", actor.Email)
	return nil
}

var _ AccessService = (*accessService)(nil)
