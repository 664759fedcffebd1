package models

import "time"

// SubscriptionKind selects the delivery channel for a subscription.
type SubscriptionKind string

const (
	SubscriptionEmail   SubscriptionKind = "email"
	SubscriptionWebhook SubscriptionKind = "webhook"
)

// Valid reports whether k is a known subscription kind.
func (k SubscriptionKind) Valid() bool {
	return k == SubscriptionEmail || k == SubscriptionWebhook
}

// Subscription registers interest in commits touching one document key.
// Target is an email address or a webhook URL depending on Kind. Reference
// is an optional free-text Aktenzeichen echoed back in every delivery.
type Subscription struct {
	ID          int64            `json:"id" db:"id"`
	Kind        SubscriptionKind `json:"kind" db:"kind"`
	Target      string           `json:"target" db:"target"`
	Amtsgericht string           `json:"amtsgericht" db:"amtsgericht"`
	Bezirk      string           `json:"bezirk" db:"bezirk"`
	Blatt       int              `json:"blatt" db:"blatt"`
	Reference   *string          `json:"reference,omitempty" db:"reference"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// Key returns the document key the subscription watches.
func (s *Subscription) Key() DocumentKey {
	return DocumentKey{Amtsgericht: s.Amtsgericht, Bezirk: s.Bezirk, Blatt: s.Blatt}
}
