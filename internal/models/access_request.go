package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessRequestState is the decision state of an access request.
type AccessRequestState string

const (
	AccessPending AccessRequestState = "pending"
	AccessGranted AccessRequestState = "granted"
	AccessDenied  AccessRequestState = "denied"
)

// AccessRequest is a request by an external party for access to one or more
// documents. State changes record the deciding actor and timestamp.
type AccessRequest struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	Name          string             `json:"name" db:"name"`
	Email         string             `json:"email" db:"email"`
	Category      string             `json:"category" db:"category"`
	Justification string             `json:"justification" db:"justification"`
	Keys          []DocumentKey      `json:"keys" db:"keys"`
	State         AccessRequestState `json:"state" db:"state"`
	DecidedBy     *string            `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt     *time.Time         `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}
