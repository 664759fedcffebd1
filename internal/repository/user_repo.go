// Package repository provides data access layer implementations over the
// MetaStore file. Mutations are idempotent on their unique keys so commit
// retries do not fail.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
)

// UserRepository defines the interface for user account operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	ChangeRole(ctx context.Context, email string, role models.Role) error
	// Delete removes the user and cascades to sessions, public keys and
	// email subscriptions bound to the user's address.
	Delete(ctx context.Context, email string) error
}

type userRepo struct {
	db *database.Meta
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *database.Meta) UserRepository {
	return &userRepo{db: db}
}

// Create inserts a user; repeating the insert for the same email updates
// name, role and password hash in place.
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE
		SET name = excluded.name, role = excluded.role, password_hash = excluded.password_hash`

	_, err := r.db.Writer().ExecContext(ctx, query,
		user.ID, user.Email, user.Name, string(user.Role), user.PasswordHash, user.CreatedAt)
	return err
}

const userColumns = `id, email, name, role, password_hash, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.Reader().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetByID retrieves a user by id.
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.db.Reader().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// List retrieves all users ordered by email.
func (r *userRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.Reader().QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = models.Role(role)
		users = append(users, &u)
	}
	return users, rows.Err()
}

// ChangeRole updates a user's role.
func (r *userRepo) ChangeRole(ctx context.Context, email string, role models.Role) error {
	res, err := r.db.Writer().ExecContext(ctx,
		`UPDATE users SET role = ? WHERE email = ?`, string(role), email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", email, sql.ErrNoRows)
	}
	return nil
}

// Delete removes the user and everything keyed to it. Deleting an unknown
// email is a no-op so retries stay clean.
func (r *userRepo) Delete(ctx context.Context, email string) error {
	tx, err := r.db.Writer().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Sessions fall with the user row through the FK cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM public_keys WHERE email = ?`, email); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE kind = 'email' AND target = ?`, email); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, email); err != nil {
		return err
	}
	return tx.Commit()
}

var _ UserRepository = (*userRepo)(nil)
