package webhooks

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studiobook/backend/internal/models"
)

// Repository handles the webhook_events idempotency ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhook ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertPending records receipt of an event and returns its current status.
// A re-delivered event keeps its existing row (and status), so the caller can
// short-circuit events that already completed.
func (r *Repository) UpsertPending(ctx context.Context, eventID, eventType string, payload json.RawMessage) (models.WebhookEventStatus, error) {
	const q = `INSERT INTO webhook_events (event_id, event_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE SET updated_at = NOW()
		RETURNING status`
	var status models.WebhookEventStatus
	err := r.pool.QueryRow(ctx, q, eventID, eventType, payload).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

// GetByEventID returns the ledger row for an event id, or nil when absent.
func (r *Repository) GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	const q = `SELECT id, event_id, event_type, payload, status, attempts, last_error, processed_at, created_at, updated_at
		FROM webhook_events WHERE event_id = $1`
	var e models.WebhookEvent
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&e.ID, &e.EventID, &e.EventType, &e.Payload,
		&e.Status, &e.Attempts, &e.LastError, &e.ProcessedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkCompleted records a successful processing attempt.
func (r *Repository) MarkCompleted(ctx context.Context, eventID string) error {
	const q = `UPDATE webhook_events
		SET status = 'completed', attempts = attempts + 1, last_error = '', processed_at = NOW(), updated_at = NOW()
		WHERE event_id = $1`
	_, err := r.pool.Exec(ctx, q, eventID)
	return err
}

// MarkFailed records a failed processing attempt with its error. The row
// stays in the ledger for audit and manual replay.
func (r *Repository) MarkFailed(ctx context.Context, eventID, lastError string) error {
	const q = `UPDATE webhook_events
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE event_id = $1`
	_, err := r.pool.Exec(ctx, q, eventID, lastError)
	return err
}
