// Package worker runs the background consumer that drains the identity event
// queue and applies each event through the sync processor.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studiobook/backend/pkg/queue"
)

// EventProcessor applies one ledgered identity event. Implemented by
// sync.Processor.
type EventProcessor interface {
	Process(ctx context.Context, eventID string) error
}

// IdentityWorker consumes identity event jobs: dequeue, process, retry on
// failure with the queue's whole-unit budget and DLQ fallback.
type IdentityWorker struct {
	queue     *queue.Queue
	processor EventProcessor
	logger    *zap.Logger
}

// NewIdentityWorker creates an identity event worker.
func NewIdentityWorker(q *queue.Queue, processor EventProcessor, logger *zap.Logger) *IdentityWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityWorker{queue: q, processor: processor, logger: logger}
}

// handle executes one job.
func (w *IdentityWorker) handle(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeIdentityEvent {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.IdentityEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.EventID == "" {
		return fmt.Errorf("job %s has no event id", job.ID)
	}
	return w.processor.Process(ctx, payload.EventID)
}

// Run starts the worker loop: dequeue, process, retry on error. Returns when
// ctx is cancelled.
func (w *IdentityWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("identity worker stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("identity worker stopping")
				return
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := w.handle(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := w.queue.Retry(ctx, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
