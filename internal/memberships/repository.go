package memberships

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

const (
	pgForeignKeyViolation = "23503"
)

// Repository handles membership persistence. Tenant-facing call sites run it
// inside a tenancy transaction via WithTx so the row-level policies apply;
// the sync worker uses the pool directly under a policy-exempt role.
type Repository struct {
	db database.Querier
}

// NewRepository creates a memberships repository over the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const membershipColumns = `id, user_id, organization_id, role, status, removed_at, removed_by, created_at, updated_at`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &m.Status,
		&m.RemovedAt, &m.RemovedBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert creates or reactivates the membership for (user, organization) with
// the given role. The unique natural key makes replayed creation events a
// single effect.
func (r *Repository) Upsert(ctx context.Context, userID, orgID uuid.UUID, role string) (*models.Membership, error) {
	const q = `INSERT INTO memberships (user_id, organization_id, role, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (user_id, organization_id) DO UPDATE
			SET role = EXCLUDED.role, status = 'active', removed_at = NULL, removed_by = NULL, updated_at = NOW()
		RETURNING ` + membershipColumns
	return scanMembership(r.db.QueryRow(ctx, q, userID, orgID, role))
}

// UpdateRole sets the role on an existing membership by natural key. Missing
// rows are reported as not-updated (false) rather than an error.
func (r *Repository) UpdateRole(ctx context.Context, userID, orgID uuid.UUID, role string) (bool, error) {
	const q = `UPDATE memberships SET role = $3, updated_at = NOW()
		WHERE user_id = $1 AND organization_id = $2`
	tag, err := r.db.Exec(ctx, q, userID, orgID, role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveByNaturalKey soft-deletes the active membership for (user,
// organization). Already-removed rows are untouched, so a replayed deletion
// event keeps the original removal timestamp.
func (r *Repository) RemoveByNaturalKey(ctx context.Context, userID, orgID uuid.UUID, actor string) error {
	const q = `UPDATE memberships
		SET status = 'removed', removed_at = NOW(), removed_by = $3, updated_at = NOW()
		WHERE user_id = $1 AND organization_id = $2 AND status = 'active'`
	_, err := r.db.Exec(ctx, q, userID, orgID, actor)
	return err
}

// GetByID returns a membership by id. includeRemoved is explicit: call sites
// that can see removed rows must say so.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, includeRemoved bool) (*models.Membership, error) {
	q := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`
	if !includeRemoved {
		q += ` AND status = 'active'`
	}
	return scanMembership(r.db.QueryRow(ctx, q, id))
}

// ListByOrganization returns an organization's memberships, newest first.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID, includeRemoved bool) ([]*models.Membership, error) {
	q := `SELECT ` + membershipColumns + ` FROM memberships WHERE organization_id = $1`
	if !includeRemoved {
		q += ` AND status = 'active'`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &m.Status,
			&m.RemovedAt, &m.RemovedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// MarkRemoved transitions a membership to removed with the given actor.
func (r *Repository) MarkRemoved(ctx context.Context, id uuid.UUID, actor string, at time.Time) error {
	const q = `UPDATE memberships
		SET status = 'removed', removed_at = $2, removed_by = $3, updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id, at, actor)
	return err
}

// MarkActive transitions a membership back to active, clearing the removal
// bookkeeping.
func (r *Repository) MarkActive(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE memberships
		SET status = 'active', removed_at = NULL, removed_by = NULL, updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id)
	return err
}

// HardDelete permanently deletes a membership. Qualifications and
// availability cascade; appointments restrict, which surfaces as
// ErrRestrictedDelete.
func (r *Repository) HardDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("membership %s: %w", id, ErrRestrictedDelete)
		}
		return err
	}
	return nil
}

// ListExpiredRemoved returns removed memberships whose removal predates the
// cutoff, i.e. the purge candidates.
func (r *Repository) ListExpiredRemoved(ctx context.Context, cutoff time.Time) ([]*models.Membership, error) {
	const q = `SELECT ` + membershipColumns + ` FROM memberships
		WHERE status = 'removed' AND removed_at < $1
		ORDER BY removed_at ASC`
	rows, err := r.db.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &m.Status,
			&m.RemovedAt, &m.RemovedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}
