package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studiobook/backend/internal/models"
	"github.com/studiobook/backend/pkg/queue"
	"github.com/studiobook/backend/pkg/response"
)

// Envelope is the wire shape of an identity-provider webhook delivery. ID is
// the provider's unique event id and serves as the idempotency key.
type Envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Ledger records event receipt for idempotent processing. Implemented by
// *Repository.
type Ledger interface {
	UpsertPending(ctx context.Context, eventID, eventType string, payload json.RawMessage) (models.WebhookEventStatus, error)
}

// Enqueuer dispatches a ledgered event for durable asynchronous processing.
// Implemented by *queue.Queue.
type Enqueuer interface {
	EnqueueIdentityEvent(ctx context.Context, payload queue.IdentityEventPayload) error
}

// InlineProcessor applies one ledgered event synchronously. Used when no
// queue is configured (single-process deployments).
type InlineProcessor interface {
	Process(ctx context.Context, eventID string) error
}

// Handler receives identity-provider webhooks: verify signature, ledger the
// event, then hand it to the durable processor.
type Handler struct {
	verifier *Verifier
	ledger   Ledger
	enqueue  Enqueuer
	inline   InlineProcessor
	logger   *zap.Logger
}

// NewHandler creates a webhook gateway handler. enqueue may be nil, in which
// case events are processed inline via the processor.
func NewHandler(verifier *Verifier, ledger Ledger, enqueue Enqueuer, inline InlineProcessor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{verifier: verifier, ledger: ledger, enqueue: enqueue, inline: inline, logger: logger}
}

// Receive handles POST /webhooks/identity. Responds 2xx on accept whether the
// event was enqueued, processed inline, or already processed; the external
// sender only ever sees the HTTP status.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	// Signature check comes before anything touches the payload.
	if err := h.verifier.Verify(
		c.GetHeader(HeaderID),
		c.GetHeader(HeaderTimestamp),
		c.GetHeader(HeaderSignature),
		body,
	); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		response.Unauthorized(c, "invalid signature")
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}
	if env.ID == "" || env.Type == "" {
		response.BadRequest(c, "id and type required")
		return
	}

	status, err := h.ledger.UpsertPending(c.Request.Context(), env.ID, env.Type, body)
	if err != nil {
		h.logger.Error("ledger upsert failed", zap.Error(err), zap.String("event_id", env.ID))
		response.Internal(c, "failed to record event")
		return
	}
	if status == models.WebhookEventStatusCompleted {
		// Re-delivery of a finished event: acknowledge without effects.
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "already_processed"})
		return
	}

	if h.enqueue != nil {
		if err := h.enqueue.EnqueueIdentityEvent(c.Request.Context(), queue.IdentityEventPayload{EventID: env.ID}); err != nil {
			h.logger.Error("enqueue failed", zap.Error(err), zap.String("event_id", env.ID))
			response.Internal(c, "failed to enqueue event")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"success": true, "status": "enqueued"})
		return
	}

	if err := h.inline.Process(c.Request.Context(), env.ID); err != nil {
		h.logger.Error("inline processing failed", zap.Error(err), zap.String("event_id", env.ID))
		// The ledger holds the failure; still 2xx so the provider does not
		// hammer a payload that needs operator attention.
		c.JSON(http.StatusOK, gin.H{"success": false, "status": "failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "processed"})
}
