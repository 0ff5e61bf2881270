package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/db"
	"github.com/puckline/puckline/errors"
	pucktest "github.com/puckline/puckline/internal/testing"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/storage"
)

const baseDoc = `
format: "1.0.0"
namespace: scouting
object_types:
  - name: Player
    properties:
      - name: nhl_id
        kind: integer
        required: true
      - name: position
        kind: string
        enum: [C, LW, RW, D, G]
  - name: Team
    properties:
      - name: name
        kind: string
link_types:
  - name: plays_for
    source: Player
    target: Team
    cardinality: one_to_many
action_types:
  - view_entity
`

func setupLoader(t *testing.T) (*Loader, *audit.Store, *storage.Store) {
	t.Helper()
	database := pucktest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, nil))

	auditStore := audit.NewStore(database, nil)
	schemaStore := storage.NewStore(database, auditStore, nil)
	return New(schemaStore, auditStore, nil), auditStore, schemaStore
}

func TestLoad_RequiresActor(t *testing.T) {
	ldr, _, _ := setupLoader(t)
	_, err := ldr.Load(context.Background(), []byte(baseDoc), Options{})
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestLoad_CreatesDraft(t *testing.T) {
	ldr, _, store := setupLoader(t)
	ctx := context.Background()

	result, err := ldr.Load(ctx, []byte(baseDoc), Options{Actor: "alice"})
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.False(t, result.Activated)

	version, err := store.Version(ctx, result.VersionID)
	require.NoError(t, err)
	assert.Equal(t, schema.VersionDraft, version.State)
}

func TestLoad_Activate(t *testing.T) {
	ldr, _, store := setupLoader(t)
	ctx := context.Background()

	result, err := ldr.Load(ctx, []byte(baseDoc), Options{Actor: "alice", Activate: true})
	require.NoError(t, err)
	assert.True(t, result.Activated)

	snap, err := store.ActiveSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.VersionID, snap.VersionID())
}

func TestLoad_ValidationErrorItemized(t *testing.T) {
	ldr, _, _ := setupLoader(t)

	bad := `
format: "1.0.0"
namespace: scouting
object_types:
  - name: Player
    properties:
      - name: mood
        kind: vibes
      - name: mood
        kind: string
`
	_, err := ldr.Load(context.Background(), []byte(bad), Options{Actor: "alice"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.GreaterOrEqual(t, len(vErr.Violations), 2, "all violations reported in one pass")
}

func TestLoad_IdempotentReload(t *testing.T) {
	ldr, auditStore, _ := setupLoader(t)
	ctx := context.Background()

	first, err := ldr.Load(ctx, []byte(baseDoc), Options{Actor: "alice", Activate: true})
	require.NoError(t, err)

	// Same semantics, different formatting and ordering.
	reordered := `
format: "1.0.0"
namespace: scouting
action_types: [view_entity]
object_types:
  - name: Team
    properties:
      - name: name
        kind: string
  - name: Player
    properties:
      - name: position
        kind: string
        enum: [C, LW, RW, D, G]
      - name: nhl_id
        kind: integer
        required: true
link_types:
  - name: plays_for
    source: Player
    target: Team
    cardinality: one_to_many
`
	second, err := ldr.Load(ctx, []byte(reordered), Options{Actor: "bob"})
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.VersionID, second.VersionID)

	// The no-op load is still audited.
	entries, err := auditStore.Query(ctx, audit.Filter{Actor: "bob"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeUnchanged, entries[0].Decision)
}

func TestLoad_MigrateRejectsIncompatibleChange(t *testing.T) {
	ldr, _, _ := setupLoader(t)
	ctx := context.Background()

	_, err := ldr.Load(ctx, []byte(baseDoc), Options{Actor: "alice", Activate: true})
	require.NoError(t, err)

	// Drops the Team type while plays_for still references it, removes
	// a property, and narrows the position enum.
	breaking := `
format: "1.0.0"
namespace: scouting
object_types:
  - name: Player
    properties:
      - name: position
        kind: string
        enum: [C, D]
action_types:
  - view_entity
`
	_, err = ldr.Load(ctx, []byte(breaking), Options{Actor: "alice", Migrate: true})
	var cErr *CompatibilityError
	require.ErrorAs(t, err, &cErr)

	codes := make(map[string]bool)
	for _, issue := range cErr.Issues {
		codes[issue.Code] = true
	}
	assert.True(t, codes["type_removed"])
	assert.True(t, codes["property_removed"])
	assert.True(t, codes["enum_narrowed"])
}

func TestLoad_ForceDowngradesToWarnings(t *testing.T) {
	ldr, _, _ := setupLoader(t)
	ctx := context.Background()

	_, err := ldr.Load(ctx, []byte(baseDoc), Options{Actor: "alice", Activate: true})
	require.NoError(t, err)

	breaking := `
format: "1.0.0"
namespace: scouting
object_types:
  - name: Player
    properties:
      - name: nhl_id
        kind: string
action_types:
  - view_entity
`
	result, err := ldr.Load(ctx, []byte(breaking), Options{Actor: "alice", Migrate: true, Force: true})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings, "forced incompatibilities are surfaced, not swallowed")
}

func TestLoad_MigrateWithoutActiveVersion(t *testing.T) {
	ldr, _, _ := setupLoader(t)

	// Nothing to be compatible with; migrate mode is a no-op.
	result, err := ldr.Load(context.Background(), []byte(baseDoc), Options{Actor: "alice", Migrate: true})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
}

func TestCheckCompatibility_CardinalityTightened(t *testing.T) {
	active := schema.NewSnapshot(
		schema.SchemaVersion{ID: 1, State: schema.VersionActive},
		[]schema.ObjectType{{Name: "Player"}, {Name: "Team"}},
		[]schema.LinkType{{Name: "plays_for", Source: "Player", Target: "Team", Cardinality: schema.ManyToMany}},
		nil,
	)
	doc := &schema.Document{
		Format:      "1.0.0",
		Namespace:   "scouting",
		ObjectTypes: []schema.DocObject{{Name: "Player"}, {Name: "Team"}},
		LinkTypes: []schema.DocLink{
			{Name: "plays_for", Source: "Player", Target: "Team", Cardinality: schema.OneToOne},
		},
	}

	issues := checkCompatibility(active, doc)
	require.Len(t, issues, 1)
	assert.Equal(t, "cardinality_tightened", issues[0].Code)
}

func TestCheckCompatibility_RequiredAdded(t *testing.T) {
	active := schema.NewSnapshot(
		schema.SchemaVersion{ID: 1, State: schema.VersionActive},
		[]schema.ObjectType{{Name: "Player", Properties: []schema.Property{
			{Name: "nhl_id", Kind: schema.KindInteger},
		}}},
		nil, nil,
	)
	doc := &schema.Document{
		Format:    "1.0.0",
		Namespace: "scouting",
		ObjectTypes: []schema.DocObject{{Name: "Player", Properties: []schema.DocProperty{
			{Name: "nhl_id", Kind: schema.KindInteger},
			{Name: "position", Kind: schema.KindString, Required: true},
		}}},
	}

	issues := checkCompatibility(active, doc)
	require.Len(t, issues, 1)
	assert.Equal(t, "required_added", issues[0].Code)
}
