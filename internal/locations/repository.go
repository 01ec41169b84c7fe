// Package locations manages teaching locations. Same archive/restore/purge
// lifecycle as the offering catalog.
package locations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studiobook/backend/internal/models"
	"github.com/studiobook/backend/pkg/database"
)

// pgForeignKeyViolation is the SQLSTATE for a foreign key violation.
const pgForeignKeyViolation = "23503"

// Repository provides location persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates a location repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a repository bound to the transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const locationColumns = `id, organization_id, name, address, deleted_at, created_at, updated_at`

func scanLocation(row pgx.Row) (*models.Location, error) {
	var l models.Location
	err := row.Scan(&l.ID, &l.OrganizationID, &l.Name, &l.Address,
		&l.DeletedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new location for the organization.
func (r *Repository) Create(ctx context.Context, l *models.Location) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO locations (organization_id, name, address)
		VALUES ($1, $2, $3)
		RETURNING `+locationColumns,
		l.OrganizationID, l.Name, l.Address)
	created, err := scanLocation(row)
	if err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	*l = *created
	return nil
}

// GetByID fetches one location, excluding archived rows unless asked.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Location, error) {
	q := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	l, err := scanLocation(r.db.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return l, nil
}

// List returns the organization's locations by name.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, includeDeleted bool) ([]*models.Location, error) {
	q := `SELECT ` + locationColumns + ` FROM locations WHERE organization_id = $1`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	q += ` ORDER BY name`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []*models.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Update changes name and address. Returns false when missing or archived.
func (r *Repository) Update(ctx context.Context, l *models.Location) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE locations SET name = $1, address = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL`,
		l.Name, l.Address, l.ID)
	if err != nil {
		return false, fmt.Errorf("update location: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Archive soft-deletes the location.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE locations SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("archive location: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Restore clears the archive marker.
func (r *Repository) Restore(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE locations SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("restore location: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeArchivedBefore hard-deletes locations archived before the cutoff, row
// by row. A location still referenced by appointments fails its own DELETE on
// the foreign key and is counted as blocked; the remaining candidates still
// purge.
func (r *Repository) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (deleted, blocked int64, err error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM locations WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("list purge candidates: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, 0, fmt.Errorf("scan purge candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	for _, id := range ids {
		if _, err := r.db.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				blocked++
				continue
			}
			return deleted, blocked, fmt.Errorf("purge location %s: %w", id, err)
		}
		deleted++
	}
	return deleted, blocked, nil
}
