package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiobook/backend/internal/models"
)

type fakeLedger struct {
	events    map[string]*models.WebhookEvent
	completed []string
	failed    map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{events: make(map[string]*models.WebhookEvent), failed: make(map[string]string)}
}

func (l *fakeLedger) add(eventID, eventType string, data any, status models.WebhookEventStatus) {
	raw, _ := json.Marshal(data)
	body, _ := json.Marshal(map[string]json.RawMessage{
		"id":   json.RawMessage(`"` + eventID + `"`),
		"type": json.RawMessage(`"` + eventType + `"`),
		"data": raw,
	})
	l.events[eventID] = &models.WebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Payload:   body,
		Status:    status,
	}
}

func (l *fakeLedger) GetByEventID(_ context.Context, eventID string) (*models.WebhookEvent, error) {
	return l.events[eventID], nil
}

func (l *fakeLedger) MarkCompleted(_ context.Context, eventID string) error {
	l.completed = append(l.completed, eventID)
	l.events[eventID].Status = models.WebhookEventStatusCompleted
	return nil
}

func (l *fakeLedger) MarkFailed(_ context.Context, eventID, lastError string) error {
	l.failed[eventID] = lastError
	l.events[eventID].Status = models.WebhookEventStatusFailed
	return nil
}

type fakeUsers struct {
	byExternalID map[string]*models.User
	// appearAfter delays visibility until the Nth lookup of that id.
	appearAfter map[string]int
	lookups     map[string]int
	upserts     []*models.User
	softDeleted []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byExternalID: make(map[string]*models.User),
		appearAfter:  make(map[string]int),
		lookups:      make(map[string]int),
	}
}

func (f *fakeUsers) UpsertByExternalID(_ context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.upserts = append(f.upserts, user)
	f.byExternalID[user.ExternalID] = user
	return nil
}

func (f *fakeUsers) SoftDeleteByExternalID(_ context.Context, externalID string) error {
	f.softDeleted = append(f.softDeleted, externalID)
	delete(f.byExternalID, externalID)
	return nil
}

func (f *fakeUsers) GetByExternalID(_ context.Context, externalID string) (*models.User, error) {
	f.lookups[externalID]++
	if after, ok := f.appearAfter[externalID]; ok && f.lookups[externalID] < after {
		return nil, nil
	}
	return f.byExternalID[externalID], nil
}

type fakeOrgs struct {
	byExternalID map[string]*models.Organization
	upserts      []*models.Organization
	softDeleted  []string
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{byExternalID: make(map[string]*models.Organization)}
}

func (f *fakeOrgs) UpsertByExternalID(_ context.Context, org *models.Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	f.upserts = append(f.upserts, org)
	f.byExternalID[org.ExternalID] = org
	return nil
}

func (f *fakeOrgs) SoftDeleteByExternalID(_ context.Context, externalID string) error {
	f.softDeleted = append(f.softDeleted, externalID)
	delete(f.byExternalID, externalID)
	return nil
}

func (f *fakeOrgs) GetByExternalID(_ context.Context, externalID string) (*models.Organization, error) {
	return f.byExternalID[externalID], nil
}

type upsertCall struct {
	userID, orgID uuid.UUID
	role          string
}

type fakeMemberships struct {
	upserts          []upsertCall
	roleUpdates      []upsertCall
	roleUpdateExists bool
	removals         []upsertCall
}

func (f *fakeMemberships) Upsert(_ context.Context, userID, orgID uuid.UUID, role string) (*models.Membership, error) {
	f.upserts = append(f.upserts, upsertCall{userID, orgID, role})
	return &models.Membership{ID: uuid.New(), UserID: userID, OrganizationID: orgID, Role: role}, nil
}

func (f *fakeMemberships) UpdateRole(_ context.Context, userID, orgID uuid.UUID, role string) (bool, error) {
	f.roleUpdates = append(f.roleUpdates, upsertCall{userID, orgID, role})
	return f.roleUpdateExists, nil
}

func (f *fakeMemberships) RemoveByNaturalKey(_ context.Context, userID, orgID uuid.UUID, actor string) error {
	f.removals = append(f.removals, upsertCall{userID, orgID, actor})
	return nil
}

type env struct {
	ledger      *fakeLedger
	users       *fakeUsers
	orgs        *fakeOrgs
	memberships *fakeMemberships
	sleeps      []time.Duration
	proc        *Processor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ledger:      newFakeLedger(),
		users:       newFakeUsers(),
		orgs:        newFakeOrgs(),
		memberships: &fakeMemberships{},
	}
	e.proc = NewProcessor(e.ledger, e.users, e.orgs, e.memberships, 5, time.Second, nil)
	e.proc.sleep = func(_ context.Context, d time.Duration) error {
		e.sleeps = append(e.sleeps, d)
		return nil
	}
	return e
}

func TestProcessUserCreated(t *testing.T) {
	e := newEnv(t)
	e.ledger.add("evt_1", "user.created", map[string]string{
		"id": "user_abc", "email_address": "ana@example.com", "full_name": "Ana Costa",
	}, models.WebhookEventStatusPending)

	require.NoError(t, e.proc.Process(context.Background(), "evt_1"))

	require.Len(t, e.users.upserts, 1)
	assert.Equal(t, "user_abc", e.users.upserts[0].ExternalID)
	assert.Equal(t, "ana@example.com", e.users.upserts[0].Email)
	assert.Equal(t, []string{"evt_1"}, e.ledger.completed)
}

func TestProcessCompletedEventIsNoOp(t *testing.T) {
	e := newEnv(t)
	e.ledger.add("evt_done", "user.created", map[string]string{"id": "user_abc"}, models.WebhookEventStatusCompleted)

	require.NoError(t, e.proc.Process(context.Background(), "evt_done"))

	assert.Empty(t, e.users.upserts)
	assert.Empty(t, e.ledger.completed, "already-completed events are not re-marked")
}

func TestProcessUnknownEventID(t *testing.T) {
	e := newEnv(t)
	err := e.proc.Process(context.Background(), "evt_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in ledger")
}

func TestProcessUnhandledTypeCompletesAsNoOp(t *testing.T) {
	e := newEnv(t)
	e.ledger.add("evt_sms", "sms.created", map[string]string{"id": "sms_1"}, models.WebhookEventStatusPending)

	require.NoError(t, e.proc.Process(context.Background(), "evt_sms"))

	assert.Equal(t, []string{"evt_sms"}, e.ledger.completed)
	assert.Empty(t, e.ledger.failed)
}

func TestProcessMalformedPayloadFails(t *testing.T) {
	e := newEnv(t)
	e.ledger.add("evt_bad", "user.created", map[string]string{"email_address": "x@example.com"}, models.WebhookEventStatusPending)

	err := e.proc.Process(context.Background(), "evt_bad")
	require.Error(t, err)
	assert.Contains(t, e.ledger.failed["evt_bad"], "missing user id")
	assert.Empty(t, e.ledger.completed)
}

func TestProcessMembershipCreatedWaitsForDependencies(t *testing.T) {
	e := newEnv(t)
	user := &models.User{ID: uuid.New(), ExternalID: "user_late"}
	e.users.byExternalID["user_late"] = user
	e.users.appearAfter["user_late"] = 3 // visible on the third poll
	org := &models.Organization{ID: uuid.New(), ExternalID: "org_1"}
	e.orgs.byExternalID["org_1"] = org

	e.ledger.add("evt_m1", "organizationMembership.created", map[string]string{
		"user_id": "user_late", "organization_id": "org_1", "role": "org:admin",
	}, models.WebhookEventStatusPending)

	require.NoError(t, e.proc.Process(context.Background(), "evt_m1"))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, e.sleeps, "backoff doubles per attempt")
	require.Len(t, e.memberships.upserts, 1)
	assert.Equal(t, user.ID, e.memberships.upserts[0].userID)
	assert.Equal(t, org.ID, e.memberships.upserts[0].orgID)
	assert.Equal(t, models.RoleSuperAdmin, e.memberships.upserts[0].role)
	assert.Equal(t, []string{"evt_m1"}, e.ledger.completed)
}

func TestProcessMembershipCreatedDependencyExhausted(t *testing.T) {
	e := newEnv(t)
	e.orgs.byExternalID["org_1"] = &models.Organization{ID: uuid.New(), ExternalID: "org_1"}

	e.ledger.add("evt_m2", "organizationMembership.created", map[string]string{
		"user_id": "user_never", "organization_id": "org_1", "role": "org:member",
	}, models.WebhookEventStatusPending)

	err := e.proc.Process(context.Background(), "evt_m2")
	require.ErrorIs(t, err, ErrDependencyNotReady)

	assert.Len(t, e.sleeps, 4, "five attempts mean four backoff sleeps")
	assert.Empty(t, e.memberships.upserts)
	assert.Contains(t, e.ledger.failed["evt_m2"], "dependency not ready")
}

func TestProcessMembershipUpdatedFallsBackToUpsert(t *testing.T) {
	e := newEnv(t)
	user := &models.User{ID: uuid.New(), ExternalID: "user_1"}
	org := &models.Organization{ID: uuid.New(), ExternalID: "org_1"}
	e.users.byExternalID["user_1"] = user
	e.orgs.byExternalID["org_1"] = org
	e.memberships.roleUpdateExists = false

	e.ledger.add("evt_m3", "organizationMembership.updated", map[string]string{
		"user_id": "user_1", "organization_id": "org_1", "role": "org:member",
	}, models.WebhookEventStatusPending)

	require.NoError(t, e.proc.Process(context.Background(), "evt_m3"))

	require.Len(t, e.memberships.roleUpdates, 1)
	require.Len(t, e.memberships.upserts, 1, "missing row converges via upsert")
	assert.Equal(t, models.RoleStaff, e.memberships.upserts[0].role)
}

func TestProcessMembershipDeletedMissingRefsIsNoOp(t *testing.T) {
	e := newEnv(t)
	e.ledger.add("evt_m4", "organizationMembership.deleted", map[string]string{
		"user_id": "user_gone", "organization_id": "org_gone", "role": "org:member",
	}, models.WebhookEventStatusPending)

	require.NoError(t, e.proc.Process(context.Background(), "evt_m4"))

	assert.Empty(t, e.memberships.removals)
	assert.Equal(t, []string{"evt_m4"}, e.ledger.completed)
}

func TestProcessMembershipDeleted(t *testing.T) {
	e := newEnv(t)
	user := &models.User{ID: uuid.New(), ExternalID: "user_1"}
	org := &models.Organization{ID: uuid.New(), ExternalID: "org_1"}
	e.users.byExternalID["user_1"] = user
	e.orgs.byExternalID["org_1"] = org

	e.ledger.add("evt_m5", "organizationMembership.deleted", map[string]string{
		"user_id": "user_1", "organization_id": "org_1", "role": "org:member",
	}, models.WebhookEventStatusPending)

	require.NoError(t, e.proc.Process(context.Background(), "evt_m5"))

	require.Len(t, e.memberships.removals, 1)
	assert.Equal(t, removedBySync, e.memberships.removals[0].role)
}

func TestProcessOrgDeleted(t *testing.T) {
	e := newEnv(t)
	e.orgs.byExternalID["org_1"] = &models.Organization{ID: uuid.New(), ExternalID: "org_1"}
	e.ledger.add("evt_o1", "organization.deleted", map[string]string{"id": "org_1"}, models.WebhookEventStatusPending)

	require.NoError(t, e.proc.Process(context.Background(), "evt_o1"))

	assert.Equal(t, []string{"org_1"}, e.orgs.softDeleted)
}
