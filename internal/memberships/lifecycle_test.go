package memberships

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiobook/backend/internal/models"
)

// fakeStore keeps memberships in memory and simulates restrict constraints.
type fakeStore struct {
	rows    map[uuid.UUID]*models.Membership
	blocked map[uuid.UUID]bool // ids whose hard delete hits a restrict FK
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[uuid.UUID]*models.Membership{}, blocked: map[uuid.UUID]bool{}}
}

func (f *fakeStore) add(status models.MembershipStatus, removedAt *time.Time) uuid.UUID {
	id := uuid.New()
	f.rows[id] = &models.Membership{
		ID:     id,
		Status: status,
		Role:   models.RoleStaff,
	}
	f.rows[id].RemovedAt = removedAt
	return id
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID, includeRemoved bool) (*models.Membership, error) {
	m, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	if !includeRemoved && m.Status == models.MembershipStatusRemoved {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) MarkRemoved(_ context.Context, id uuid.UUID, actor string, at time.Time) error {
	m := f.rows[id]
	m.Status = models.MembershipStatusRemoved
	m.RemovedAt = &at
	m.RemovedBy = &actor
	return nil
}

func (f *fakeStore) MarkActive(_ context.Context, id uuid.UUID) error {
	m := f.rows[id]
	m.Status = models.MembershipStatusActive
	m.RemovedAt = nil
	m.RemovedBy = nil
	return nil
}

func (f *fakeStore) HardDelete(_ context.Context, id uuid.UUID) error {
	if f.blocked[id] {
		return ErrRestrictedDelete
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeStore) ListExpiredRemoved(_ context.Context, cutoff time.Time) ([]*models.Membership, error) {
	var out []*models.Membership
	for _, m := range f.rows {
		if m.Status == models.MembershipStatusRemoved && m.RemovedAt != nil && m.RemovedAt.Before(cutoff) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newLifecycleAt(store Store, now time.Time) *Lifecycle {
	l := NewLifecycle(store, 30, nil)
	l.now = func() time.Time { return now }
	return l
}

func daysAgo(now time.Time, d int) *time.Time {
	t := now.AddDate(0, 0, -d)
	return &t
}

func TestRemoveActiveMembership(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	id := store.add(models.MembershipStatusActive, nil)

	l := newLifecycleAt(store, now)
	require.NoError(t, l.Remove(context.Background(), id, "user_admin"))

	m := store.rows[id]
	assert.Equal(t, models.MembershipStatusRemoved, m.Status)
	require.NotNil(t, m.RemovedAt)
	assert.Equal(t, "user_admin", *m.RemovedBy)
}

func TestRemoveAlreadyRemoved(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	id := store.add(models.MembershipStatusRemoved, daysAgo(now, 2))

	l := newLifecycleAt(store, now)
	assert.ErrorIs(t, l.Remove(context.Background(), id, "user_admin"), ErrAlreadyRemoved)
}

func TestRemoveMissing(t *testing.T) {
	l := newLifecycleAt(newFakeStore(), time.Now())
	assert.ErrorIs(t, l.Remove(context.Background(), uuid.New(), "user_admin"), ErrNotFound)
}

func TestRestoreWithinWindow(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	id := store.add(models.MembershipStatusRemoved, daysAgo(now, 29))

	l := newLifecycleAt(store, now)
	require.NoError(t, l.Restore(context.Background(), id))
	m := store.rows[id]
	assert.Equal(t, models.MembershipStatusActive, m.Status)
	assert.Nil(t, m.RemovedAt)
	assert.Nil(t, m.RemovedBy)
}

func TestRestoreExpired(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	id := store.add(models.MembershipStatusRemoved, daysAgo(now, 31))

	l := newLifecycleAt(store, now)
	assert.ErrorIs(t, l.Restore(context.Background(), id), ErrExpired)
}

func TestRestoreActiveMembership(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	id := store.add(models.MembershipStatusActive, nil)

	l := newLifecycleAt(store, now)
	assert.ErrorIs(t, l.Restore(context.Background(), id), ErrNotRemoved)
}

func TestPermanentlyDeleteRequiresRemoved(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	active := store.add(models.MembershipStatusActive, nil)
	removed := store.add(models.MembershipStatusRemoved, daysAgo(now, 5))

	l := newLifecycleAt(store, now)
	assert.ErrorIs(t, l.PermanentlyDelete(context.Background(), active), ErrNotRemoved)
	require.NoError(t, l.PermanentlyDelete(context.Background(), removed))
	_, exists := store.rows[removed]
	assert.False(t, exists)
}

func TestPermanentlyDeleteBlockedByRestrict(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	id := store.add(models.MembershipStatusRemoved, daysAgo(now, 5))
	store.blocked[id] = true

	l := newLifecycleAt(store, now)
	assert.ErrorIs(t, l.PermanentlyDelete(context.Background(), id), ErrRestrictedDelete)
}

func TestScheduledPurge(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	expired1 := store.add(models.MembershipStatusRemoved, daysAgo(now, 40))
	expired2 := store.add(models.MembershipStatusRemoved, daysAgo(now, 31))
	blocked := store.add(models.MembershipStatusRemoved, daysAgo(now, 35))
	store.blocked[blocked] = true
	inWindow := store.add(models.MembershipStatusRemoved, daysAgo(now, 10))
	active := store.add(models.MembershipStatusActive, nil)

	l := newLifecycleAt(store, now)
	report, err := l.ScheduledPurge(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalCandidates)
	assert.Equal(t, 2, report.DeletedCount)

	_, ok1 := store.rows[expired1]
	_, ok2 := store.rows[expired2]
	assert.False(t, ok1)
	assert.False(t, ok2)

	// Blocked candidate survives, in-window removal survives, and active
	// memberships are never touched.
	_, okBlocked := store.rows[blocked]
	_, okInWindow := store.rows[inWindow]
	_, okActive := store.rows[active]
	assert.True(t, okBlocked)
	assert.True(t, okInWindow)
	assert.True(t, okActive)
}

func TestClassifyUrgency(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		removedAgo int
		want       Urgency
	}{
		{"just removed", 1, UrgencyNormal},
		{"eight days left", 22, UrgencyNormal},
		{"seven days left", 23, UrgencyWarning},
		{"four days left", 26, UrgencyWarning},
		{"three days left", 27, UrgencyCritical},
		{"expired", 31, UrgencyCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removedAt := now.AddDate(0, 0, -tt.removedAgo)
			assert.Equal(t, tt.want, ClassifyUrgency(removedAt, now, 30))
		})
	}
}
