package repository

import (
	"context"
	"time"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
)

// SubscriptionRepository defines the interface for subscription
// bookkeeping.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, kind models.SubscriptionKind, target string, key models.DocumentKey) error
	ListByKey(ctx context.Context, key models.DocumentKey) ([]*models.Subscription, error)
	List(ctx context.Context) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db *database.Meta
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(db *database.Meta) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionColumns = `id, kind, target, amtsgericht, bezirk, blatt, reference, created_at`

// Create inserts a subscription. The identical subscription inserted twice
// stays a single row.
func (r *subscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Writer().ExecContext(ctx,
		`INSERT INTO subscriptions (kind, target, amtsgericht, bezirk, blatt, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, target, amtsgericht, bezirk, blatt) DO UPDATE SET reference = excluded.reference`,
		string(sub.Kind), sub.Target, sub.Amtsgericht, sub.Bezirk, sub.Blatt, sub.Reference, sub.CreatedAt)
	return err
}

// Delete removes the subscription identified by its unique tuple.
func (r *subscriptionRepo) Delete(ctx context.Context, kind models.SubscriptionKind, target string, key models.DocumentKey) error {
	_, err := r.db.Writer().ExecContext(ctx,
		`DELETE FROM subscriptions
		 WHERE kind = ? AND target = ? AND amtsgericht = ? AND bezirk = ? AND blatt = ?`,
		string(kind), target, key.Amtsgericht, key.Bezirk, key.Blatt)
	return err
}

// ListByKey retrieves all subscriptions of one document key.
func (r *subscriptionRepo) ListByKey(ctx context.Context, key models.DocumentKey) ([]*models.Subscription, error) {
	rows, err := r.db.Reader().QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE amtsgericht = ? AND bezirk = ? AND blatt = ?`,
		key.Amtsgericht, key.Bezirk, key.Blatt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// List retrieves all subscriptions.
func (r *subscriptionRepo) List(ctx context.Context) ([]*models.Subscription, error) {
	rows, err := r.db.Reader().QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func scanSubscriptions(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	for rows.Next() {
		var s models.Subscription
		var kind string
		if err := rows.Scan(&s.ID, &kind, &s.Target, &s.Amtsgericht, &s.Bezirk, &s.Blatt, &s.Reference, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Kind = models.SubscriptionKind(kind)
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

var _ SubscriptionRepository = (*subscriptionRepo)(nil)
