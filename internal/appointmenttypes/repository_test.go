package appointmenttypes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB returns canned candidate ids for Query and fails Exec for the ids in
// blockedByFK with a foreign key violation.
type fakeDB struct {
	candidates  []uuid.UUID
	blockedByFK map[uuid.UUID]bool
	execArgs    []uuid.UUID
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	id := args[0].(uuid.UUID)
	f.execArgs = append(f.execArgs, id)
	if f.blockedByFK[id] {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: pgForeignKeyViolation}
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &idRows{ids: f.candidates}, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

type idRows struct {
	ids []uuid.UUID
	pos int
}

func (r *idRows) Next() bool {
	r.pos++
	return r.pos <= len(r.ids)
}

func (r *idRows) Scan(dest ...any) error {
	*dest[0].(*uuid.UUID) = r.ids[r.pos-1]
	return nil
}

func (r *idRows) Close()                                       {}
func (r *idRows) Err() error                                   { return nil }
func (r *idRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *idRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *idRows) Values() ([]any, error)                       { return nil, nil }
func (r *idRows) RawValues() [][]byte                          { return nil }
func (r *idRows) Conn() *pgx.Conn                              { return nil }

func TestPurgeSkipsCandidatesBlockedByAppointments(t *testing.T) {
	// Each candidate is deleted in its own statement, so a foreign key
	// violation on one does not abort the rest of the batch.
	kept := uuid.New()
	db := &fakeDB{
		candidates:  []uuid.UUID{uuid.New(), kept, uuid.New()},
		blockedByFK: map[uuid.UUID]bool{kept: true},
	}
	repo := &Repository{db: db}

	deleted, blocked, err := repo.PurgeArchivedBefore(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, int64(1), blocked)
	assert.Equal(t, db.candidates, db.execArgs, "every candidate gets its own delete attempt")
}

func TestPurgeWithNoCandidates(t *testing.T) {
	repo := &Repository{db: &fakeDB{}}

	deleted, blocked, err := repo.PurgeArchivedBefore(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Zero(t, blocked)
	assert.Empty(t, repo.db.(*fakeDB).execArgs)
}
