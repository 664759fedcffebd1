package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/offenes-grundbuch/registry/internal/database"
)

// SettingsRepository stores node configuration key-value pairs that are
// replicated with the MetaStore snapshot.
type SettingsRepository interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

type settingsRepo struct {
	db *database.Meta
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *database.Meta) SettingsRepository {
	return &settingsRepo{db: db}
}

// Set stores a value, replacing any previous one.
func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Writer().ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Get retrieves a value; the second result reports presence.
func (r *settingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Reader().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

var _ SettingsRepository = (*settingsRepo)(nil)
