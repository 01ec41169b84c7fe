// Package sync applies identity-provider change events to the local
// relational store. Processing is idempotent: the webhook ledger supplies an
// at-most-once-effect guarantee on top of the transport's at-least-once
// delivery, and every handler upserts by natural key so replays converge.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studiobook/backend/internal/identity"
	"github.com/studiobook/backend/internal/models"
	"github.com/studiobook/backend/internal/webhooks"
)

// ErrDependencyNotReady marks a transient ordering failure: a membership
// event arrived before its referenced user or organization. Retryable.
var ErrDependencyNotReady = errors.New("dependency not ready")

// Ledger is the idempotency ledger surface. Implemented by
// webhooks.Repository.
type Ledger interface {
	GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	MarkCompleted(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, lastError string) error
}

// UserStore is the user persistence surface. Implemented by
// users.Repository.
type UserStore interface {
	UpsertByExternalID(ctx context.Context, user *models.User) error
	SoftDeleteByExternalID(ctx context.Context, externalID string) error
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
}

// OrgStore is the organization persistence surface. Implemented by
// organizations.Repository.
type OrgStore interface {
	UpsertByExternalID(ctx context.Context, org *models.Organization) error
	SoftDeleteByExternalID(ctx context.Context, externalID string) error
	GetByExternalID(ctx context.Context, externalID string) (*models.Organization, error)
}

// MembershipStore is the membership persistence surface. Implemented by
// memberships.Repository.
type MembershipStore interface {
	Upsert(ctx context.Context, userID, orgID uuid.UUID, role string) (*models.Membership, error)
	UpdateRole(ctx context.Context, userID, orgID uuid.UUID, role string) (bool, error)
	RemoveByNaturalKey(ctx context.Context, userID, orgID uuid.UUID, actor string) error
}

// removedBySync is recorded as the acting party for sync-driven removals.
const removedBySync = "identity-sync"

// Processor applies one ledgered event at a time. Per event:
// check ledger → already completed? return early : process → mark
// completed/failed. A failure is re-thrown so the queue retries the whole
// unit; the membership dependency wait is a smaller loop nested inside one
// attempt.
type Processor struct {
	ledger      Ledger
	users       UserStore
	orgs        OrgStore
	memberships MembershipStore

	depAttempts int
	depBackoff  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	logger *zap.Logger
}

// NewProcessor creates an event processor. depAttempts/depBackoff bound the
// membership dependency wait (attempts at base, base*2, base*4, ...).
func NewProcessor(ledger Ledger, users UserStore, orgs OrgStore, memberships MembershipStore, depAttempts int, depBackoff time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if depAttempts <= 0 {
		depAttempts = 5
	}
	if depBackoff <= 0 {
		depBackoff = time.Second
	}
	return &Processor{
		ledger:      ledger,
		users:       users,
		orgs:        orgs,
		memberships: memberships,
		depAttempts: depAttempts,
		depBackoff:  depBackoff,
		sleep:       sleepCtx,
		logger:      logger,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Process applies the ledgered event with the given id.
func (p *Processor) Process(ctx context.Context, eventID string) error {
	ev, err := p.ledger.GetByEventID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	if ev == nil {
		return fmt.Errorf("event %s not in ledger", eventID)
	}
	if ev.Status == models.WebhookEventStatusCompleted {
		p.logger.Debug("event already processed", zap.String("event_id", eventID))
		return nil
	}

	if err := p.apply(ctx, ev); err != nil {
		if errors.Is(err, identity.ErrUnhandledEventType) {
			// Types we never subscribed to complete as no-ops.
			p.logger.Debug("unhandled event type completed as no-op",
				zap.String("event_id", eventID), zap.String("type", ev.EventType))
			return p.ledger.MarkCompleted(ctx, eventID)
		}
		if mErr := p.ledger.MarkFailed(ctx, eventID, err.Error()); mErr != nil {
			p.logger.Error("mark failed errored", zap.Error(mErr), zap.String("event_id", eventID))
		}
		return fmt.Errorf("process event %s: %w", eventID, err)
	}

	if err := p.ledger.MarkCompleted(ctx, eventID); err != nil {
		return fmt.Errorf("mark completed %s: %w", eventID, err)
	}
	p.logger.Info("event processed", zap.String("event_id", eventID), zap.String("type", ev.EventType))
	return nil
}

func (p *Processor) apply(ctx context.Context, ev *models.WebhookEvent) error {
	var env webhooks.Envelope
	if err := json.Unmarshal(ev.Payload, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	event, err := identity.ParseEvent(ev.EventType, env.Data)
	if err != nil {
		return err
	}

	switch e := event.(type) {
	case identity.UserUpserted:
		u := &models.User{ExternalID: e.User.ID, Email: e.User.Email, FullName: e.User.FullName}
		return p.users.UpsertByExternalID(ctx, u)
	case identity.UserDeleted:
		return p.users.SoftDeleteByExternalID(ctx, e.UserID)
	case identity.OrgUpserted:
		org := &models.Organization{ExternalID: e.Org.ID, Name: e.Org.Name, Slug: e.Org.Slug}
		return p.orgs.UpsertByExternalID(ctx, org)
	case identity.OrgDeleted:
		return p.orgs.SoftDeleteByExternalID(ctx, e.OrgID)
	case identity.MembershipCreated:
		return p.applyMembershipCreated(ctx, e.Membership)
	case identity.MembershipRoleUpdated:
		return p.applyMembershipRoleUpdated(ctx, e.Membership)
	case identity.MembershipDeleted:
		return p.applyMembershipDeleted(ctx, e.Membership)
	default:
		return fmt.Errorf("%w: %T", identity.ErrUnhandledEventType, event)
	}
}

// applyMembershipCreated waits for both referenced rows to exist before
// creating the membership, because the transport does not order deliveries:
// the membership event routinely beats the user or organization event.
func (p *Processor) applyMembershipCreated(ctx context.Context, m identity.MembershipPayload) error {
	user, org, err := p.waitForRefs(ctx, m.UserID, m.OrgID)
	if err != nil {
		return err
	}
	_, err = p.memberships.Upsert(ctx, user.ID, org.ID, identity.MapRole(m.Role))
	return err
}

func (p *Processor) applyMembershipRoleUpdated(ctx context.Context, m identity.MembershipPayload) error {
	user, org, err := p.waitForRefs(ctx, m.UserID, m.OrgID)
	if err != nil {
		return err
	}
	updated, err := p.memberships.UpdateRole(ctx, user.ID, org.ID, identity.MapRole(m.Role))
	if err != nil {
		return err
	}
	if !updated {
		// Update before create: converge by upserting.
		_, err = p.memberships.Upsert(ctx, user.ID, org.ID, identity.MapRole(m.Role))
	}
	return err
}

func (p *Processor) applyMembershipDeleted(ctx context.Context, m identity.MembershipPayload) error {
	user, err := p.users.GetByExternalID(ctx, m.UserID)
	if err != nil {
		return err
	}
	org, err := p.orgs.GetByExternalID(ctx, m.OrgID)
	if err != nil {
		return err
	}
	if user == nil || org == nil {
		// Nothing local to remove; the referenced entity never synced or is
		// already gone.
		return nil
	}
	return p.memberships.RemoveByNaturalKey(ctx, user.ID, org.ID, removedBySync)
}

// waitForRefs re-checks BOTH dependencies each attempt: either one may be the
// laggard, and the first to appear can vanish again under soft delete.
func (p *Processor) waitForRefs(ctx context.Context, userExternalID, orgExternalID string) (*models.User, *models.Organization, error) {
	delay := p.depBackoff
	for attempt := 1; ; attempt++ {
		user, err := p.users.GetByExternalID(ctx, userExternalID)
		if err != nil {
			return nil, nil, err
		}
		org, err := p.orgs.GetByExternalID(ctx, orgExternalID)
		if err != nil {
			return nil, nil, err
		}
		if user != nil && org != nil {
			return user, org, nil
		}
		if attempt >= p.depAttempts {
			return nil, nil, fmt.Errorf("%w: user=%s present=%t org=%s present=%t after %d attempts",
				ErrDependencyNotReady, userExternalID, user != nil, orgExternalID, org != nil, attempt)
		}
		p.logger.Debug("membership dependency not ready, backing off",
			zap.String("user", userExternalID), zap.String("org", orgExternalID),
			zap.Int("attempt", attempt), zap.Duration("delay", delay))
		if err := p.sleep(ctx, delay); err != nil {
			return nil, nil, err
		}
		delay *= 2
	}
}
