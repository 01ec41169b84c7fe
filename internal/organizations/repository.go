package organizations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studiobook/backend/internal/models"
)

// Repository handles organization persistence. Sync writes go through the
// upsert methods so replayed events have exactly one effect.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertByExternalID creates or updates an organization keyed by the identity
// provider's organization id. Re-activation on upsert undoes a prior soft
// delete, which is the correct outcome when the provider re-sends a create.
func (r *Repository) UpsertByExternalID(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (external_id, name, slug, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (external_id) DO UPDATE
			SET name = EXCLUDED.name, slug = EXCLUDED.slug, status = 'active', updated_at = NOW()
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, org.ExternalID, org.Name, org.Slug).
		Scan(&org.ID, &org.Status, &org.CreatedAt, &org.UpdatedAt)
}

// SoftDeleteByExternalID marks an organization deleted. Unknown external ids
// are a no-op so deletion events replay cleanly.
func (r *Repository) SoftDeleteByExternalID(ctx context.Context, externalID string) error {
	const q = `UPDATE organizations SET status = 'deleted', updated_at = NOW() WHERE external_id = $1`
	_, err := r.pool.Exec(ctx, q, externalID)
	return err
}

// GetByExternalID returns an active organization by its provider id, or nil
// when absent.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*models.Organization, error) {
	const q = `SELECT id, external_id, name, slug, status, created_at, updated_at
		FROM organizations WHERE external_id = $1 AND status = 'active'`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, externalID).
		Scan(&org.ID, &org.ExternalID, &org.Name, &org.Slug, &org.Status, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetByID returns an organization by internal id, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT id, external_id, name, slug, status, created_at, updated_at
		FROM organizations WHERE id = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&org.ID, &org.ExternalID, &org.Name, &org.Slug, &org.Status, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// SlugTaken reports whether a slug is already in use.
func (r *Repository) SlugTaken(ctx context.Context, slug string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)`
	var taken bool
	err := r.pool.QueryRow(ctx, q, slug).Scan(&taken)
	return taken, err
}
