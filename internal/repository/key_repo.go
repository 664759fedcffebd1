package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
)

// KeyRepository defines the interface for public key operations.
// Signature verification on behalf of an email requires a key registered
// under exactly that email.
type KeyRepository interface {
	Upsert(ctx context.Context, key *models.PublicKey) error
	Get(ctx context.Context, email, fingerprint string) (*models.PublicKey, error)
	ListByEmail(ctx context.Context, email string) ([]*models.PublicKey, error)
	Delete(ctx context.Context, email, fingerprint string) error
}

type keyRepo struct {
	db *database.Meta
}

// NewKeyRepository creates a new public key repository.
func NewKeyRepository(db *database.Meta) KeyRepository {
	return &keyRepo{db: db}
}

// Upsert inserts a key or replaces the stored key bytes for the same
// (email, fingerprint).
func (r *keyRepo) Upsert(ctx context.Context, key *models.PublicKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Writer().ExecContext(ctx,
		`INSERT INTO public_keys (email, fingerprint, key_data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (email, fingerprint) DO UPDATE SET key_data = excluded.key_data`,
		key.Email, key.Fingerprint, key.KeyData, key.CreatedAt)
	return err
}

// Get retrieves the key registered for (email, fingerprint).
func (r *keyRepo) Get(ctx context.Context, email, fingerprint string) (*models.PublicKey, error) {
	var k models.PublicKey
	err := r.db.Reader().QueryRowContext(ctx,
		`SELECT email, fingerprint, key_data, created_at FROM public_keys
		 WHERE email = ? AND fingerprint = ?`, email, fingerprint).
		Scan(&k.Email, &k.Fingerprint, &k.KeyData, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListByEmail retrieves all keys registered for an email.
func (r *keyRepo) ListByEmail(ctx context.Context, email string) ([]*models.PublicKey, error) {
	rows, err := r.db.Reader().QueryContext(ctx,
		`SELECT email, fingerprint, key_data, created_at FROM public_keys
		 WHERE email = ? ORDER BY created_at`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.PublicKey
	for rows.Next() {
		var k models.PublicKey
		if err := rows.Scan(&k.Email, &k.Fingerprint, &k.KeyData, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// Delete removes one registered key.
func (r *keyRepo) Delete(ctx context.Context, email, fingerprint string) error {
	_, err := r.db.Writer().ExecContext(ctx,
		`DELETE FROM public_keys WHERE email = ? AND fingerprint = ?`, email, fingerprint)
	return err
}

var _ KeyRepository = (*keyRepo)(nil)
