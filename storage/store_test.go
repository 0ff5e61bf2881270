package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/db"
	"github.com/puckline/puckline/errors"
	pucktest "github.com/puckline/puckline/internal/testing"
	"github.com/puckline/puckline/schema"
)

func setupStore(t *testing.T) (*Store, *audit.Store, *sql.DB) {
	t.Helper()
	database := pucktest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, nil))

	auditStore := audit.NewStore(database, nil)
	return NewStore(database, auditStore, nil), auditStore, database
}

func scoutingDoc() *schema.Document {
	nonNull := false
	return &schema.Document{
		Format:    "1.0.0",
		Namespace: "scouting",
		ObjectTypes: []schema.DocObject{
			{Name: "Player", Properties: []schema.DocProperty{
				{Name: "nhl_id", Kind: schema.KindInteger, Required: true, Nullable: &nonNull},
				{Name: "position", Kind: schema.KindString, Enum: []string{"C", "LW", "RW", "D", "G"}},
				{Name: "contract_details", Kind: schema.KindString},
			}},
			{Name: "Team", Properties: []schema.DocProperty{
				{Name: "name", Kind: schema.KindString, Required: true},
			}},
		},
		LinkTypes: []schema.DocLink{
			{Name: "plays_for", Source: "Player", Target: "Team", Cardinality: schema.OneToMany},
		},
		ActionTypes: []string{"view_entity", "edit_property"},
	}
}

func TestCreateDraft_RoundTrip(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	version, err := store.CreateDraft(ctx, scoutingDoc(), "alice")
	require.NoError(t, err)
	assert.Equal(t, schema.VersionDraft, version.State)
	assert.Equal(t, "scouting", version.Namespace)
	assert.Equal(t, "alice", version.CreatedBy)
	assert.NotEmpty(t, version.ContentHash)

	snap, err := store.Snapshot(ctx, version.ID)
	require.NoError(t, err)

	player, ok := snap.ObjectType("Player")
	require.True(t, ok)
	require.Len(t, player.Properties, 3)

	nhlID, ok := player.Property("nhl_id")
	require.True(t, ok)
	assert.Equal(t, schema.KindInteger, nhlID.Kind)
	assert.True(t, nhlID.Required)
	assert.False(t, nhlID.Nullable)

	position, ok := player.Property("position")
	require.True(t, ok)
	assert.Equal(t, []string{"C", "LW", "RW", "D", "G"}, position.Enum)
	assert.True(t, position.Nullable, "nullable defaults to true")

	link, ok := snap.LinkType("plays_for")
	require.True(t, ok)
	assert.Equal(t, "Player", link.Source)
	assert.Equal(t, "Team", link.Target)
	assert.Equal(t, schema.OneToMany, link.Cardinality)

	assert.True(t, snap.HasAction("view_entity"))
	assert.False(t, snap.HasAction("delete_entity"))
}

func TestCreateDraft_WritesAuditEntry(t *testing.T) {
	store, auditStore, _ := setupStore(t)
	ctx := context.Background()

	version, err := store.CreateDraft(ctx, scoutingDoc(), "alice")
	require.NoError(t, err)

	entries, err := auditStore.Query(ctx, audit.Filter{Actor: "alice"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionSchemaLoad, entries[0].Action)
	assert.Equal(t, audit.OutcomeApplied, entries[0].Decision)
	assert.Equal(t, version.ID, entries[0].SchemaVersion)
}

func TestActivate_PromotesAndDemotes(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	first, err := store.CreateDraft(ctx, scoutingDoc(), "alice")
	require.NoError(t, err)
	_, err = store.Activate(ctx, first.ID, "alice")
	require.NoError(t, err)

	second := scoutingDoc()
	second.ObjectTypes[0].Properties = append(second.ObjectTypes[0].Properties,
		schema.DocProperty{Name: "shoots", Kind: schema.KindString})
	draft, err := store.CreateDraft(ctx, second, "alice")
	require.NoError(t, err)
	_, err = store.Activate(ctx, draft.ID, "alice")
	require.NoError(t, err)

	versions, err := store.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	var active, superseded int
	for _, v := range versions {
		switch v.State {
		case schema.VersionActive:
			active++
			assert.Equal(t, draft.ID, v.ID)
			assert.NotNil(t, v.ActivatedAt)
		case schema.VersionSuperseded:
			superseded++
			assert.Equal(t, first.ID, v.ID)
		}
	}
	assert.Equal(t, 1, active, "exactly one version may be active")
	assert.Equal(t, 1, superseded)
}

func TestActivate_SupersededVersionCannotReturn(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	first, err := store.CreateDraft(ctx, scoutingDoc(), "alice")
	require.NoError(t, err)
	_, err = store.Activate(ctx, first.ID, "alice")
	require.NoError(t, err)

	second := scoutingDoc()
	second.Namespace = "scouting2"
	draft, err := store.CreateDraft(ctx, second, "alice")
	require.NoError(t, err)
	_, err = store.Activate(ctx, draft.ID, "alice")
	require.NoError(t, err)

	_, err = store.Activate(ctx, first.ID, "alice")
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestActivate_NotFound(t *testing.T) {
	store, _, _ := setupStore(t)
	_, err := store.Activate(context.Background(), 999, "alice")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestActivate_ConcurrentSameDraft(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	draft, err := store.CreateDraft(ctx, scoutingDoc(), "alice")
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Activate(ctx, draft.ID, "alice")
		}(i)
	}
	wg.Wait()

	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		// The loser's error matches both taxonomy entries.
		assert.True(t, errors.Is(err, ErrVersionConflict), "expected ErrVersionConflict, got: %v", err)
		assert.ErrorIs(t, err, ErrVersionAlreadyActive)
	}
	assert.Equal(t, 1, winners, "exactly one activation may win")

	snap, err := store.ActiveSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, snap.VersionID())
}

func TestActiveSnapshot_NoneActive(t *testing.T) {
	store, _, _ := setupStore(t)
	_, err := store.ActiveSnapshot(context.Background())
	assert.True(t, errors.IsNotFoundError(err))
}

func TestActiveSnapshot_PointerFastPath(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	draft, err := store.CreateDraft(ctx, scoutingDoc(), "alice")
	require.NoError(t, err)
	activated, err := store.Activate(ctx, draft.ID, "alice")
	require.NoError(t, err)

	snap, err := store.ActiveSnapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, activated, snap, "activation publishes the snapshot pointer")
}

func TestFindActiveByContentHash(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	doc := scoutingDoc()
	hash, err := doc.ContentHash()
	require.NoError(t, err)

	// Draft only: hash lookup matches the active version, not drafts.
	draft, err := store.CreateDraft(ctx, doc, "alice")
	require.NoError(t, err)
	id, err := store.FindActiveByContentHash(ctx, hash)
	require.NoError(t, err)
	assert.Zero(t, id)

	_, err = store.Activate(ctx, draft.ID, "alice")
	require.NoError(t, err)
	id, err = store.FindActiveByContentHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, id)
}

// failingRecorder simulates an unavailable audit store.
type failingRecorder struct{}

func (failingRecorder) RecordTx(ctx context.Context, tx *sql.Tx, e audit.Entry) (int64, error) {
	return 0, errors.Mark(errors.New("disk full"), audit.ErrWriteFailure)
}

func TestActivate_AbortsWhenAuditUnavailable(t *testing.T) {
	database := pucktest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, nil))
	ctx := context.Background()

	healthy := NewStore(database, audit.NewStore(database, nil), nil)
	draft, err := healthy.CreateDraft(ctx, scoutingDoc(), "alice")
	require.NoError(t, err)

	broken := NewStore(database, failingRecorder{}, nil)
	_, err = broken.Activate(ctx, draft.ID, "alice")
	assert.True(t, errors.Is(err, audit.ErrWriteFailure), "expected audit.ErrWriteFailure, got: %v", err)

	// The rolled-back transaction left the version a draft.
	version, err := healthy.Version(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.VersionDraft, version.State)
}

func TestCreateDraft_AbortsWhenAuditUnavailable(t *testing.T) {
	database := pucktest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, nil))
	ctx := context.Background()

	broken := NewStore(database, failingRecorder{}, nil)
	_, err := broken.CreateDraft(ctx, scoutingDoc(), "alice")
	assert.True(t, errors.Is(err, audit.ErrWriteFailure), "expected audit.ErrWriteFailure, got: %v", err)

	versions, err := broken.ListVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions, "aborted draft must leave no rows behind")
}
