package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
)

// ErrAmbiguousBezirk is returned by a wildcard lookup that matches more
// than one Amtsgericht.
var ErrAmbiguousBezirk = errors.New("bezirk exists under more than one amtsgericht")

// DistrictRepository defines the interface for district namespace
// operations.
type DistrictRepository interface {
	Create(ctx context.Context, district *models.District) error
	CreateBatch(ctx context.Context, districts []models.District) error
	Delete(ctx context.Context, amtsgericht, bezirk string) error
	DeleteBatch(ctx context.Context, districts []models.District) error
	// ResolveLand returns the Land of (amtsgericht, bezirk), or "" when no
	// district row matches. An empty amtsgericht is a wildcard matching
	// any Amtsgericht carrying the bezirk; an ambiguous wildcard fails.
	ResolveLand(ctx context.Context, amtsgericht, bezirk string) (string, error)
	List(ctx context.Context) ([]models.District, error)
}

type districtRepo struct {
	db *database.Meta
}

// NewDistrictRepository creates a new district repository.
func NewDistrictRepository(db *database.Meta) DistrictRepository {
	return &districtRepo{db: db}
}

// Create inserts a district; repeating the insert updates the Land.
func (r *districtRepo) Create(ctx context.Context, district *models.District) error {
	_, err := r.db.Writer().ExecContext(ctx,
		`INSERT INTO districts (land, amtsgericht, bezirk) VALUES (?, ?, ?)
		 ON CONFLICT (amtsgericht, bezirk) DO UPDATE SET land = excluded.land`,
		district.Land, district.Amtsgericht, district.Bezirk)
	return err
}

// CreateBatch inserts districts in one transaction.
func (r *districtRepo) CreateBatch(ctx context.Context, districts []models.District) error {
	tx, err := r.db.Writer().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO districts (land, amtsgericht, bezirk) VALUES (?, ?, ?)
		 ON CONFLICT (amtsgericht, bezirk) DO UPDATE SET land = excluded.land`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range districts {
		if _, err := stmt.ExecContext(ctx, d.Land, d.Amtsgericht, d.Bezirk); err != nil {
			return fmt.Errorf("insert district %s/%s: %w", d.Amtsgericht, d.Bezirk, err)
		}
	}
	return tx.Commit()
}

// Delete removes one district row. Unknown rows are a no-op.
func (r *districtRepo) Delete(ctx context.Context, amtsgericht, bezirk string) error {
	_, err := r.db.Writer().ExecContext(ctx,
		`DELETE FROM districts WHERE amtsgericht = ? AND bezirk = ?`, amtsgericht, bezirk)
	return err
}

// DeleteBatch removes districts in one transaction.
func (r *districtRepo) DeleteBatch(ctx context.Context, districts []models.District) error {
	tx, err := r.db.Writer().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range districts {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM districts WHERE amtsgericht = ? AND bezirk = ?`,
			d.Amtsgericht, d.Bezirk); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ResolveLand looks up the Land for a document key's district.
func (r *districtRepo) ResolveLand(ctx context.Context, amtsgericht, bezirk string) (string, error) {
	if amtsgericht == "" {
		rows, err := r.db.Reader().QueryContext(ctx,
			`SELECT DISTINCT land FROM districts WHERE bezirk = ?`, bezirk)
		if err != nil {
			return "", err
		}
		defer rows.Close()

		var land string
		n := 0
		for rows.Next() {
			if err := rows.Scan(&land); err != nil {
				return "", err
			}
			n++
		}
		if err := rows.Err(); err != nil {
			return "", err
		}
		if n > 1 {
			return "", ErrAmbiguousBezirk
		}
		return land, nil
	}

	var land string
	err := r.db.Reader().QueryRowContext(ctx,
		`SELECT land FROM districts WHERE amtsgericht = ? AND bezirk = ?`,
		amtsgericht, bezirk).Scan(&land)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return land, nil
}

// List retrieves all districts ordered by (land, amtsgericht, bezirk).
func (r *districtRepo) List(ctx context.Context) ([]models.District, error) {
	rows, err := r.db.Reader().QueryContext(ctx,
		`SELECT land, amtsgericht, bezirk FROM districts ORDER BY land, amtsgericht, bezirk`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var districts []models.District
	for rows.Next() {
		var d models.District
		if err := rows.Scan(&d.Land, &d.Amtsgericht, &d.Bezirk); err != nil {
			return nil, err
		}
		districts = append(districts, d)
	}
	return districts, rows.Err()
}

var _ DistrictRepository = (*districtRepo)(nil)
