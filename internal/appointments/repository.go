// Package appointments manages booked lessons. Appointments hold a
// restrict-style reference to the instructor membership, so they are what
// blocks a membership purge, and carry a version column for optimistic
// locking on concurrent edits.
package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studiobook/backend/internal/models"
	"github.com/studiobook/backend/pkg/database"
)

// ErrVersionConflict indicates a concurrent update won: the caller's version
// no longer matches the stored row.
var ErrVersionConflict = errors.New("appointment version conflict")

// Repository provides appointment persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an appointment repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a repository bound to the transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const appointmentColumns = `id, organization_id, appointment_type_id, instructor_id, location_id,
	starts_at, ends_at, status, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.ID, &a.OrganizationID, &a.AppointmentTypeID, &a.InstructorID, &a.LocationID,
		&a.StartsAt, &a.EndsAt, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new appointment at version 1.
func (r *Repository) Create(ctx context.Context, a *models.Appointment) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (organization_id, appointment_type_id, instructor_id, location_id, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+appointmentColumns,
		a.OrganizationID, a.AppointmentTypeID, a.InstructorID, a.LocationID,
		a.StartsAt, a.EndsAt, models.AppointmentStatusScheduled)
	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	*a = *created
	return nil
}

// GetByID fetches one appointment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// ListByOrganization returns upcoming-first appointments, optionally filtered
// by instructor.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID, instructorID *uuid.UUID) ([]*models.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE organization_id = $1`
	args := []any{orgID}
	if instructorID != nil {
		q += ` AND instructor_id = $2`
		args = append(args, *instructorID)
	}
	q += ` ORDER BY starts_at`
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields guarded by the version check. The stored
// row must still be at a.Version; on success the version increments and the
// fresh row is written back into a. A lost race returns ErrVersionConflict,
// distinguished from a missing row by a second lookup.
func (r *Repository) Update(ctx context.Context, a *models.Appointment) error {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_type_id = $1, instructor_id = $2, location_id = $3,
		    starts_at = $4, ends_at = $5, status = $6,
		    version = version + 1, updated_at = NOW()
		WHERE id = $7 AND version = $8
		RETURNING `+appointmentColumns,
		a.AppointmentTypeID, a.InstructorID, a.LocationID,
		a.StartsAt, a.EndsAt, a.Status, a.ID, a.Version)
	updated, err := scanAppointment(row)
	if err == pgx.ErrNoRows {
		existing, gErr := r.GetByID(ctx, a.ID)
		if gErr != nil {
			return gErr
		}
		if existing == nil {
			return pgx.ErrNoRows
		}
		return fmt.Errorf("%w: row at version %d, caller at %d", ErrVersionConflict, existing.Version, a.Version)
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	*a = *updated
	return nil
}

// Cancel transitions a scheduled appointment to cancelled, bypassing the
// version check: cancellation wins over concurrent edits.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.AppointmentStatusCancelled, id, models.AppointmentStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountBookedForInstructor counts scheduled appointments held by a membership.
// Used to explain restricted membership deletes.
func (r *Repository) CountBookedForInstructor(ctx context.Context, instructorID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments WHERE instructor_id = $1 AND status = $2`,
		instructorID, models.AppointmentStatusScheduled).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count booked appointments: %w", err)
	}
	return n, nil
}
