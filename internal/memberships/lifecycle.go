package memberships

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studiobook/backend/internal/models"
)

var (
	// ErrNotFound means the membership does not exist (or is not visible).
	ErrNotFound = errors.New("membership not found")
	// ErrAlreadyRemoved means Remove was called on a removed membership.
	ErrAlreadyRemoved = errors.New("membership already removed")
	// ErrNotRemoved means Restore was called on an active membership.
	ErrNotRemoved = errors.New("membership is not removed")
	// ErrExpired means the retention window has elapsed; the membership can
	// no longer be restored.
	ErrExpired = errors.New("retention window expired")
	// ErrRestrictedDelete means a dependent with a restrict-style foreign key
	// (booked appointments) blocks the hard delete.
	ErrRestrictedDelete = errors.New("delete blocked by dependent records")
)

// Store is the persistence surface the lifecycle manager needs. Implemented
// by *Repository; tests use fakes.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID, includeRemoved bool) (*models.Membership, error)
	MarkRemoved(ctx context.Context, id uuid.UUID, actor string, at time.Time) error
	MarkActive(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
	ListExpiredRemoved(ctx context.Context, cutoff time.Time) ([]*models.Membership, error)
}

// Lifecycle implements the membership soft-delete state machine: active →
// removed on removal, removed → active on restore within the grace window,
// removed → purged by the scheduled cleanup once the window elapses.
type Lifecycle struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewLifecycle creates a lifecycle manager with the given retention window.
func NewLifecycle(store Store, retentionDays int, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger,
	}
}

// Remove transitions active → removed, stamping removedAt and the acting
// user. Dependent qualification and availability records are untouched so a
// later restore is lossless. Removing an already-removed membership is an
// explicit ErrAlreadyRemoved.
func (l *Lifecycle) Remove(ctx context.Context, id uuid.UUID, actor string) error {
	m, err := l.store.GetByID(ctx, id, true)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	if m.Status == models.MembershipStatusRemoved {
		return ErrAlreadyRemoved
	}
	return l.store.MarkRemoved(ctx, id, actor, l.now())
}

// Restore transitions removed → active, clearing the removal bookkeeping.
// Fails with ErrExpired once the retention window has elapsed.
func (l *Lifecycle) Restore(ctx context.Context, id uuid.UUID) error {
	m, err := l.store.GetByID(ctx, id, true)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	if m.Status != models.MembershipStatusRemoved || m.RemovedAt == nil {
		return ErrNotRemoved
	}
	if l.now().Sub(*m.RemovedAt) > l.retention {
		return ErrExpired
	}
	return l.store.MarkActive(ctx, id)
}

// PermanentlyDelete hard-deletes a removed membership, cascading to its
// dependents. Active memberships are never purged. A restrict-style
// dependent surfaces as ErrRestrictedDelete; those records must be reassigned
// or resolved manually first.
func (l *Lifecycle) PermanentlyDelete(ctx context.Context, id uuid.UUID) error {
	m, err := l.store.GetByID(ctx, id, true)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	if m.Status != models.MembershipStatusRemoved {
		return ErrNotRemoved
	}
	return l.store.HardDelete(ctx, id)
}

// PurgeReport summarises one ScheduledPurge run.
type PurgeReport struct {
	DeletedCount    int `json:"deleted_count"`
	TotalCandidates int `json:"total_candidates"`
}

// ScheduledPurge finds removed memberships past the retention window and
// permanently deletes each. Per-item failures (restrict constraints) are
// logged and skipped; they never abort the batch.
func (l *Lifecycle) ScheduledPurge(ctx context.Context) (PurgeReport, error) {
	cutoff := l.now().Add(-l.retention)
	candidates, err := l.store.ListExpiredRemoved(ctx, cutoff)
	if err != nil {
		return PurgeReport{}, err
	}
	report := PurgeReport{TotalCandidates: len(candidates)}
	for _, m := range candidates {
		if err := l.store.HardDelete(ctx, m.ID); err != nil {
			l.logger.Warn("membership purge skipped",
				zap.String("membership_id", m.ID.String()),
				zap.Error(err))
			continue
		}
		report.DeletedCount++
	}
	return report, nil
}

// Urgency classifies how close a removed membership is to permanent purge.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyWarning  Urgency = "warning"
	UrgencyNormal   Urgency = "normal"
)

// ClassifyUrgency buckets the remaining grace period: critical at three days
// or less, warning at seven or less, normal otherwise.
func ClassifyUrgency(removedAt, now time.Time, retentionDays int) Urgency {
	remaining := float64(retentionDays) - now.Sub(removedAt).Hours()/24
	switch {
	case remaining <= 3:
		return UrgencyCritical
	case remaining <= 7:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}
