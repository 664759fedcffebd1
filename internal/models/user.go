package models

import (
	"time"

	"github.com/google/uuid"
)

// Role describes what a user account may do.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleGuest  Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleGuest:
		return true
	}
	return false
}

// User represents a registry account. Accounts are created by admins and
// authenticate with email + password; signatures are bound to the account
// through registered public keys.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PublicKey is an OpenPGP public key registered for a user. The fingerprint
// is the lowercase hex of the key's canonical hash and must be unique per
// owner email.
type PublicKey struct {
	Email       string    `json:"email" db:"email"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	KeyData     []byte    `json:"key_data" db:"key_data"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
