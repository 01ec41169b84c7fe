package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiobook/backend/internal/models"
	"github.com/studiobook/backend/pkg/queue"
)

type fakeLedger struct {
	statuses map[string]models.WebhookEventStatus
	upserts  int
}

func (f *fakeLedger) UpsertPending(_ context.Context, eventID, _ string, _ json.RawMessage) (models.WebhookEventStatus, error) {
	f.upserts++
	if s, ok := f.statuses[eventID]; ok {
		return s, nil
	}
	f.statuses[eventID] = models.WebhookEventStatusPending
	return models.WebhookEventStatusPending, nil
}

type fakeEnqueuer struct {
	enqueued []string
}

func (f *fakeEnqueuer) EnqueueIdentityEvent(_ context.Context, p queue.IdentityEventPayload) error {
	f.enqueued = append(f.enqueued, p.EventID)
	return nil
}

func newWebhookRouter(t *testing.T, ledger Ledger, enq Enqueuer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v, err := NewVerifier(testSecret, 5*time.Minute)
	require.NoError(t, err)
	h := NewHandler(v, ledger, enq, nil, nil)
	r := gin.New()
	r.POST("/webhooks/identity", h.Receive)
	return r
}

func deliver(t *testing.T, r *gin.Engine, body []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhooks/identity", bytes.NewReader(body))
	if signed {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set(HeaderID, "msg_1")
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, signTestPayload(t, "msg_1", ts, body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveRejectsUnsignedDelivery(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]models.WebhookEventStatus{}}
	enq := &fakeEnqueuer{}
	r := newWebhookRouter(t, ledger, enq)

	w := deliver(t, r, []byte(`{"id":"evt_1","type":"user.created","data":{}}`), false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	// Nothing may happen before the signature check.
	assert.Zero(t, ledger.upserts)
	assert.Empty(t, enq.enqueued)
}

func TestReceiveLedgersAndEnqueues(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]models.WebhookEventStatus{}}
	enq := &fakeEnqueuer{}
	r := newWebhookRouter(t, ledger, enq)

	w := deliver(t, r, []byte(`{"id":"evt_1","type":"user.created","data":{"id":"user_1"}}`), true)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"evt_1"}, enq.enqueued)
}

func TestReceiveRedeliveryOfCompletedEvent(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]models.WebhookEventStatus{
		"evt_1": models.WebhookEventStatusCompleted,
	}}
	enq := &fakeEnqueuer{}
	r := newWebhookRouter(t, ledger, enq)

	w := deliver(t, r, []byte(`{"id":"evt_1","type":"user.created","data":{}}`), true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already_processed")
	assert.Empty(t, enq.enqueued)
}

func TestReceiveRejectsMissingEnvelopeFields(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]models.WebhookEventStatus{}}
	r := newWebhookRouter(t, ledger, &fakeEnqueuer{})

	w := deliver(t, r, []byte(`{"type":"user.created"}`), true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
