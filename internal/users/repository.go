package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studiobook/backend/internal/models"
)

// Repository handles user persistence. Users are owned by the identity
// provider; sync writes go through the upsert methods.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertByExternalID creates or updates a user keyed by the identity
// provider's user id.
func (r *Repository) UpsertByExternalID(ctx context.Context, user *models.User) error {
	const q = `INSERT INTO users (external_id, email, full_name, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (external_id) DO UPDATE
			SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, status = 'active', updated_at = NOW()
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, user.ExternalID, user.Email, user.FullName).
		Scan(&user.ID, &user.Status, &user.CreatedAt, &user.UpdatedAt)
}

// SoftDeleteByExternalID marks a user deleted. Unknown ids are a no-op so
// deletion events replay cleanly.
func (r *Repository) SoftDeleteByExternalID(ctx context.Context, externalID string) error {
	const q = `UPDATE users SET status = 'deleted', updated_at = NOW() WHERE external_id = $1`
	_, err := r.pool.Exec(ctx, q, externalID)
	return err
}

// GetByExternalID returns an active user by provider id, or nil when absent.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	const q = `SELECT id, external_id, email, full_name, status, created_at, updated_at
		FROM users WHERE external_id = $1 AND status = 'active'`
	var u models.User
	err := r.pool.QueryRow(ctx, q, externalID).
		Scan(&u.ID, &u.ExternalID, &u.Email, &u.FullName, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateFullName updates the display name of an active user.
func (r *Repository) UpdateFullName(ctx context.Context, externalID, fullName string) (*models.User, error) {
	const q = `UPDATE users SET full_name = $2, updated_at = NOW()
		WHERE external_id = $1 AND status = 'active'
		RETURNING id, external_id, email, full_name, status, created_at, updated_at`
	var u models.User
	err := r.pool.QueryRow(ctx, q, externalID, fullName).
		Scan(&u.ID, &u.ExternalID, &u.Email, &u.FullName, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
