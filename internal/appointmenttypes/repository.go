// Package appointmenttypes manages the bookable offering catalog. Offerings
// are archived (soft delete) rather than deleted so existing appointments keep
// their references, and purged by the retention job once the window lapses.
package appointmenttypes

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

// Repository provides appointment type persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an appointment type repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a repository bound to the transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const typeColumns = `id, organization_id, name, duration_min, price_cents, deleted_at, created_at, updated_at`

func scanType(row pgx.Row) (*models.AppointmentType, error) {
	var t models.AppointmentType
	err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.DurationMin, &t.PriceCents,
		&t.DeletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new offering for the organization.
func (r *Repository) Create(ctx context.Context, t *models.AppointmentType) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointment_types (organization_id, name, duration_min, price_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING `+typeColumns,
		t.OrganizationID, t.Name, t.DurationMin, t.PriceCents)
	created, err := scanType(row)
	if err != nil {
		return fmt.Errorf("create appointment type: %w", err)
	}
	*t = *created
	return nil
}

// GetByID fetches one offering. Archived rows are excluded unless
// includeDeleted is set.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.AppointmentType, error) {
	q := `SELECT ` + typeColumns + ` FROM appointment_types WHERE id = $1`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	t, err := scanType(r.db.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment type: %w", err)
	}
	return t, nil
}

// List returns the organization's offerings, newest first. Archived rows are
// excluded unless includeDeleted is set.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, includeDeleted bool) ([]*models.AppointmentType, error) {
	q := `SELECT ` + typeColumns + ` FROM appointment_types WHERE organization_id = $1`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("list appointment types: %w", err)
	}
	defer rows.Close()

	var out []*models.AppointmentType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update changes the offering's editable fields. Returns false when the row
// is missing or archived.
func (r *Repository) Update(ctx context.Context, t *models.AppointmentType) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointment_types
		SET name = $1, duration_min = $2, price_cents = $3, updated_at = NOW()
		WHERE id = $4 AND deleted_at IS NULL`,
		t.Name, t.DurationMin, t.PriceCents, t.ID)
	if err != nil {
		return false, fmt.Errorf("update appointment type: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Archive soft-deletes the offering. Returns false when already archived or
// missing.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointment_types SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("archive appointment type: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Restore clears the archive marker. Returns false when the row is not
// archived.
func (r *Repository) Restore(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointment_types SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("restore appointment type: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeArchivedBefore hard-deletes offerings archived before the cutoff.
// Deletion is row by row: an archived offering still referenced by
// appointments fails its own DELETE on the foreign key and is counted as
// blocked without touching the other candidates. Used by the retention job;
// runs without tenant scoping.
func (r *Repository) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (deleted, blocked int64, err error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM appointment_types WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
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
		if _, err := r.db.Exec(ctx, `DELETE FROM appointment_types WHERE id = $1`, id); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				blocked++
				continue
			}
			return deleted, blocked, fmt.Errorf("purge appointment type %s: %w", id, err)
		}
		deleted++
	}
	return deleted, blocked, nil
}
