package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puckline/puckline/db"
	"github.com/puckline/puckline/errors"
	pucktest "github.com/puckline/puckline/internal/testing"
)

func setupAuditStore(t *testing.T) *Store {
	t.Helper()
	database := pucktest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, nil))
	return NewStore(database, nil)
}

func TestRecord_SequenceIsMonotonic(t *testing.T) {
	store := setupAuditStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		seq, err := store.Record(ctx, Entry{
			ActorID:  "alice",
			Action:   "view_entity",
			Target:   "Player",
			Decision: OutcomeAllow,
		})
		require.NoError(t, err)
		assert.Greater(t, seq, last)
		last = seq
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestQuery_Filters(t *testing.T) {
	store := setupAuditStore(t)
	ctx := context.Background()

	entries := []Entry{
		{ActorID: "alice", Action: "view_entity", Target: "Player", Decision: OutcomeAllow},
		{ActorID: "bob", Action: "view_entity", Target: "Player.contract_details", Decision: OutcomeDeny},
		{ActorID: "alice", Action: ActionSchemaActivate, Target: "version:2", Decision: OutcomeActivated, SchemaVersion: 2},
	}
	for _, e := range entries {
		_, err := store.Record(ctx, e)
		require.NoError(t, err)
	}

	byActor, err := store.Query(ctx, Filter{Actor: "alice"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byTarget, err := store.Query(ctx, Filter{Target: "Player.contract_details"})
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, "bob", byTarget[0].ActorID)

	limited, err := store.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, OutcomeActivated, limited[0].Decision, "newest first")
}

func TestQuery_SinceUntil(t *testing.T) {
	store := setupAuditStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.Record(ctx, Entry{
			ActorID: "alice", Action: "view_entity", Target: "Player",
			Decision: OutcomeAllow, OccurredAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	got, err := store.Query(ctx, Filter{Since: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.Query(ctx, Filter{Since: base.Add(30 * time.Minute), Until: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestQuery_AfterSeqTailsOldestFirst(t *testing.T) {
	store := setupAuditStore(t)
	ctx := context.Background()

	var seqs []int64
	for i := 0; i < 4; i++ {
		seq, err := store.Record(ctx, Entry{
			ActorID: "alice", Action: "view_entity", Target: "Player", Decision: OutcomeAllow,
		})
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	got, err := store.Query(ctx, Filter{AfterSeq: seqs[1]})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, seqs[2], got[0].Seq, "tail reads oldest first")
	assert.Equal(t, seqs[3], got[1].Seq)
}

func TestRecord_WriteFailureIsMarked(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnError(errors.New("database or disk is full"))

	store := NewStore(mockDB, nil)
	_, err = store.Record(context.Background(), Entry{
		ActorID: "alice", Action: "view_entity", Target: "Player", Decision: OutcomeDeny,
	})
	assert.True(t, errors.Is(err, ErrWriteFailure), "expected ErrWriteFailure, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTx_WriteFailureIsMarked(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnError(errors.New("database or disk is full"))
	mock.ExpectRollback()

	tx, err := mockDB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	store := NewStore(mockDB, nil)
	_, err = store.RecordTx(context.Background(), tx, Entry{
		ActorID: "alice", Action: ActionSchemaActivate, Target: "version:2", Decision: OutcomeActivated,
	})
	assert.True(t, errors.Is(err, ErrWriteFailure), "expected ErrWriteFailure, got: %v", err)
}
