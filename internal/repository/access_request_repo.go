package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
)

// AccessRequestRepository defines the interface for access request
// operations.
type AccessRequestRepository interface {
	Create(ctx context.Context, req *models.AccessRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AccessRequest, error)
	ListByState(ctx context.Context, state models.AccessRequestState) ([]*models.AccessRequest, error)
	// SetState records a decision; a request that is no longer pending is
	// left unchanged and the call reports sql.ErrNoRows.
	SetState(ctx context.Context, id uuid.UUID, state models.AccessRequestState, actor string, at time.Time) error
}

type accessRequestRepo struct {
	db *database.Meta
}

// NewAccessRequestRepository creates a new access request repository.
func NewAccessRequestRepository(db *database.Meta) AccessRequestRepository {
	return &accessRequestRepo{db: db}
}

// Create inserts a pending access request. Repeating the insert for the
// same id is a no-op.
func (r *accessRequestRepo) Create(ctx context.Context, req *models.AccessRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.State == "" {
		req.State = models.AccessPending
	}

	keys, err := json.Marshal(req.Keys)
	if err != nil {
		return fmt.Errorf("marshal request keys: %w", err)
	}

	_, err = r.db.Writer().ExecContext(ctx,
		`INSERT INTO access_requests (id, name, email, category, justification, keys, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		req.ID, req.Name, req.Email, req.Category, req.Justification, string(keys), string(req.State), req.CreatedAt)
	return err
}

const accessRequestColumns = `id, name, email, category, justification, keys, state, decided_by, decided_at, created_at`

func scanAccessRequest(scan func(...any) error) (*models.AccessRequest, error) {
	var a models.AccessRequest
	var keys, state string
	err := scan(&a.ID, &a.Name, &a.Email, &a.Category, &a.Justification, &keys, &state, &a.DecidedBy, &a.DecidedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keys), &a.Keys); err != nil {
		return nil, fmt.Errorf("unmarshal request keys: %w", err)
	}
	a.State = models.AccessRequestState(state)
	return &a, nil
}

// GetByID retrieves an access request.
func (r *accessRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AccessRequest, error) {
	row := r.db.Reader().QueryRowContext(ctx,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE id = ?`, id)
	req, err := scanAccessRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// ListByState retrieves access requests in a given state, oldest first.
func (r *accessRequestRepo) ListByState(ctx context.Context, state models.AccessRequestState) ([]*models.AccessRequest, error) {
	rows, err := r.db.Reader().QueryContext(ctx,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE state = ? ORDER BY created_at`,
		string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*models.AccessRequest
	for rows.Next() {
		req, err := scanAccessRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// SetState grants or denies a pending request.
func (r *accessRequestRepo) SetState(ctx context.Context, id uuid.UUID, state models.AccessRequestState, actor string, at time.Time) error {
	res, err := r.db.Writer().ExecContext(ctx,
		`UPDATE access_requests SET state = ?, decided_by = ?, decided_at = ?
		 WHERE id = ? AND state = 'pending'`,
		string(state), actor, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("access request %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

var _ AccessRequestRepository = (*accessRequestRepo)(nil)
