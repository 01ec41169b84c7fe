package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus is the processing status of a ledgered event.
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusCompleted WebhookEventStatus = "completed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is one inbound identity-provider event. EventID is the
// provider's unique id and serves as the idempotency key. Rows are kept as an
// audit ledger and are never deleted by normal flow.
type WebhookEvent struct {
	ID          uuid.UUID          `json:"id"`
	EventID     string             `json:"event_id"`
	EventType   string             `json:"event_type"`
	Payload     json.RawMessage    `json:"payload"`
	Status      WebhookEventStatus `json:"status"`
	Attempts    int                `json:"attempts"`
	LastError   string             `json:"last_error,omitempty"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
