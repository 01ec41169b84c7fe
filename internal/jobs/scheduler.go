// Package jobs runs the scheduled maintenance work: the daily retention
// purges for removed memberships and archived catalog rows.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/studiobook/backend/internal/appointmenttypes"
	"github.com/studiobook/backend/internal/locations"
	"github.com/studiobook/backend/internal/memberships"
)

// Each entity family purges on its own daily schedule, staggered off the
// hour. robfig/cron v1 specs carry a seconds field.
const (
	membershipPurgeSpec = "0 10 3 * * *"
	typePurgeSpec       = "0 30 3 * * *"
	locationPurgeSpec   = "0 50 3 * * *"
)

// jobTimeout bounds one purge run.
const jobTimeout = 10 * time.Minute

// membershipPurger is the membership retention surface. Implemented by
// memberships.Lifecycle.
type membershipPurger interface {
	ScheduledPurge(ctx context.Context) (memberships.PurgeReport, error)
}

// catalogPurger is the archived-row retention surface. Implemented by the
// appointment type and location repositories.
type catalogPurger interface {
	PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (deleted, blocked int64, err error)
}

// Scheduler owns the cron loop. Purges run directly against the pool-backed
// repositories so every row deletes in its own implicit transaction: a
// restrict-FK failure on one candidate never poisons the rest of the batch.
// The worker's connection role crosses tenants, so no tenant variables are
// set here.
type Scheduler struct {
	cron          *cron.Cron
	memberships   membershipPurger
	types         catalogPurger
	locations     catalogPurger
	retentionDays int
	logger        *zap.Logger
}

// NewScheduler creates the maintenance scheduler.
func NewScheduler(membershipRepo *memberships.Repository, typeRepo *appointmenttypes.Repository, locationRepo *locations.Repository, retentionDays int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:          cron.New(),
		memberships:   memberships.NewLifecycle(membershipRepo, retentionDays, logger),
		types:         typeRepo,
		locations:     locationRepo,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start registers one cron entry per entity family and begins the loop.
func (s *Scheduler) Start() error {
	entries := []struct {
		spec string
		run  func()
	}{
		{membershipPurgeSpec, s.runMembershipPurge},
		{typePurgeSpec, s.runTypePurge},
		{locationPurgeSpec, s.runLocationPurge},
	}
	for _, e := range entries {
		if err := s.cron.AddFunc(e.spec, e.run); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("retention scheduler started", zap.Int("retention_days", s.retentionDays))
	return nil
}

// Stop halts the cron loop. Running jobs finish on their own contexts.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("retention scheduler stopped")
}

func (s *Scheduler) runMembershipPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := s.memberships.ScheduledPurge(ctx)
	if err != nil {
		s.logger.Error("membership purge failed", zap.Error(err))
		return
	}
	s.logger.Info("membership purge completed",
		zap.Int("deleted", report.DeletedCount),
		zap.Int("candidates", report.TotalCandidates))
}

func (s *Scheduler) runTypePurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	deleted, blocked, err := s.types.PurgeArchivedBefore(ctx, s.cutoff())
	if err != nil {
		s.logger.Error("appointment type purge failed", zap.Error(err))
		return
	}
	s.logger.Info("appointment type purge completed",
		zap.Int64("deleted", deleted), zap.Int64("blocked", blocked))
}

func (s *Scheduler) runLocationPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	deleted, blocked, err := s.locations.PurgeArchivedBefore(ctx, s.cutoff())
	if err != nil {
		s.logger.Error("location purge failed", zap.Error(err))
		return
	}
	s.logger.Info("location purge completed",
		zap.Int64("deleted", deleted), zap.Int64("blocked", blocked))
}

func (s *Scheduler) cutoff() time.Time {
	return time.Now().AddDate(0, 0, -s.retentionDays)
}
