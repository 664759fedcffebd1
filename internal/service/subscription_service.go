package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"net/url"

	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

// SubscriptionService manages notification subscriptions on a
// write-capable node.
type SubscriptionService interface {
	Create(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, kind models.SubscriptionKind, target string, key models.DocumentKey) error
	ListByKey(ctx context.Context, key models.DocumentKey) ([]*models.Subscription, error)
}

type subscriptionService struct {
	subs      repository.SubscriptionRepository
	districts repository.DistrictRepository
	logger    *slog.Logger
}

// NewSubscriptionService creates the subscription service.
func NewSubscriptionService(subs repository.SubscriptionRepository, districts repository.DistrictRepository, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{subs: subs, districts: districts, logger: logger}
}

// Create validates the target against the kind and the key against the
// district namespace, then registers the subscription. Repeating the same
// subscription stays a single row.
func (s *subscriptionService) Create(ctx context.Context, sub *models.Subscription) error {
	if err := validateTarget(sub.Kind, sub.Target); err != nil {
		return err
	}

	land, err := s.districts.ResolveLand(ctx, sub.Amtsgericht, sub.Bezirk)
	if errors.Is(err, repository.ErrAmbiguousBezirk) || (err == nil && land == "") {
		return apperr.BadDistrict(sub.Amtsgericht, sub.Bezirk)
	}
	if err != nil {
		return apperr.Storage("Bezirksauflösung fehlgeschlagen", err)
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return apperr.Storage("Benachrichtigung konnte nicht angelegt werden", err)
	}
	s.logger.Info("subscription created",
		"kind", string(sub.Kind), "key", sub.Key().String())
	return nil
}

// Delete removes a subscription. Unknown subscriptions are a no-op.
func (s *subscriptionService) Delete(ctx context.Context, kind models.SubscriptionKind, target string, key models.DocumentKey) error {
	if !kind.Valid() {
		return apperr.Validation("Unbekannte Benachrichtigungsart: " + string(kind))
	}
	if err := s.subs.Delete(ctx, kind, target, key); err != nil {
		return apperr.Storage("Benachrichtigung konnte nicht gelöscht werden", err)
	}
	return nil
}

func (s *subscriptionService) ListByKey(ctx context.Context, key models.DocumentKey) ([]*models.Subscription, error) {
	subs, err := s.subs.ListByKey(ctx, key)
	if err != nil {
		return nil, apperr.Storage("Benachrichtigungen konnten nicht gelesen werden", err)
	}
	return subs, nil
}

// validateTarget checks that the target fits the delivery channel: a mail
// address for email subscriptions, an absolute http(s) URL for webhooks.
func validateTarget(kind models.SubscriptionKind, target string) error {
	switch kind {
	case models.SubscriptionEmail:
		if _, err := mail.ParseAddress(target); err != nil {
			return apperr.Validation("Ungültige E-Mail-Adresse: " + target)
		}
	case models.SubscriptionWebhook:
		u, err := url.Parse(target)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			return apperr.Validation("Ungültige Webhook-URL: " + target)
		}
	default:
		return apperr.Validation("Unbekannte Benachrichtigungsart: " + string(kind))
	}
	return nil
}

var _ SubscriptionService = (*subscriptionService)(nil)
