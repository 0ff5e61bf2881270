package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	return NewSnapshot(
		SchemaVersion{ID: 7, State: VersionActive, Namespace: "scouting"},
		[]ObjectType{
			{Name: "Player", Properties: []Property{
				{Name: "nhl_id", Kind: KindInteger, Required: true, Nullable: false},
				{Name: "position", Kind: KindString, Nullable: true, Enum: []string{"C", "LW", "RW", "D", "G"}},
				{Name: "signed_at", Kind: KindTimestamp, Nullable: true},
				{Name: "team", Kind: KindReference, Nullable: true, RefType: "Team"},
			}},
			{Name: "Team", Properties: []Property{
				{Name: "name", Kind: KindString, Required: true},
			}},
		},
		[]LinkType{
			{Name: "plays_for", Source: "Player", Target: "Team", Cardinality: OneToMany},
			{Name: "captained_by", Source: "Team", Target: "Player", Cardinality: OneToOne},
			{Name: "rivals", Source: "Team", Target: "Team", Cardinality: ManyToMany, Bidirectional: true},
		},
		[]ActionType{{Name: "view_entity"}, {Name: "edit_property"}},
	)
}

func violationCodes(violations []Violation) []string {
	codes := make([]string, 0, len(violations))
	for _, v := range violations {
		codes = append(codes, v.Code)
	}
	return codes
}

func TestValidateDocument_CollectsAllViolations(t *testing.T) {
	doc := &Document{
		Format:    "1.0.0",
		Namespace: "scouting",
		ObjectTypes: []DocObject{
			{Name: "Player", Properties: []DocProperty{
				{Name: "nhl_id", Kind: KindInteger},
				{Name: "nhl_id", Kind: KindInteger}, // duplicate
				{Name: "mood", Kind: "vibes"},       // unknown kind
			}},
			{Name: "Player"}, // duplicate type
		},
		LinkTypes: []DocLink{
			{Name: "plays_for", Source: "Player", Target: "Ghost", Cardinality: OneToMany},
		},
	}

	violations := ValidateDocument(doc)
	codes := violationCodes(violations)
	assert.Contains(t, codes, CodeDuplicateName)
	assert.Contains(t, codes, CodeUnknownKind)
	assert.Contains(t, codes, CodeUnknownRef)
	assert.GreaterOrEqual(t, len(violations), 4, "validation must report every violation, not stop at the first")
}

func TestValidateDocument_ReferenceConstraints(t *testing.T) {
	tests := []struct {
		name string
		prop DocProperty
		want string
	}{
		{"reference needs ref_type", DocProperty{Name: "team", Kind: KindReference}, CodeMissingField},
		{"ref_type must resolve", DocProperty{Name: "team", Kind: KindReference, RefType: "Ghost"}, CodeUnknownRef},
		{"ref_type only on references", DocProperty{Name: "n", Kind: KindString, RefType: "Player"}, CodeBadConstraint},
		{"enum only on strings", DocProperty{Name: "n", Kind: KindInteger, Enum: []string{"1"}}, CodeBadConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{
				Format:      "1.0.0",
				Namespace:   "x",
				ObjectTypes: []DocObject{{Name: "Player", Properties: []DocProperty{tt.prop}}},
			}
			assert.Contains(t, violationCodes(ValidateDocument(doc)), tt.want)
		})
	}
}

func TestValidateDocument_Valid(t *testing.T) {
	doc, err := ParseDocument([]byte(playerDoc))
	require.NoError(t, err)
	assert.Empty(t, ValidateDocument(doc))
}

func TestValidateInstance(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name   string
		values map[string]any
		want   []string // expected violation codes, empty = conforming
	}{
		{
			"conforming payload",
			map[string]any{"nhl_id": 8478402, "position": "C", "signed_at": "2026-07-01T00:00:00Z"},
			nil,
		},
		{
			"missing required",
			map[string]any{"position": "C"},
			[]string{CodeMissingRequired},
		},
		{
			"wrong kind",
			map[string]any{"nhl_id": "not-a-number"},
			[]string{CodeWrongKind},
		},
		{
			"json number is integral",
			map[string]any{"nhl_id": float64(8478402)},
			nil,
		},
		{
			"json number with fraction",
			map[string]any{"nhl_id": 84.5},
			[]string{CodeWrongKind},
		},
		{
			"enum violation",
			map[string]any{"nhl_id": 1, "position": "goalie"},
			[]string{CodeEnumViolation},
		},
		{
			"null on non-nullable",
			map[string]any{"nhl_id": nil},
			[]string{CodeNullViolation},
		},
		{
			"null on nullable",
			map[string]any{"nhl_id": 1, "position": nil},
			nil,
		},
		{
			"undeclared property",
			map[string]any{"nhl_id": 1, "skates": "fast"},
			[]string{CodeUnknownProperty},
		},
		{
			"bad timestamp",
			map[string]any{"nhl_id": 1, "signed_at": "yesterday"},
			[]string{CodeWrongKind},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateInstance(snap, "Player", tt.values)
			if len(tt.want) == 0 {
				assert.Empty(t, violations)
				return
			}
			assert.Equal(t, tt.want, violationCodes(violations))
		})
	}
}

func TestValidateInstance_UnknownType(t *testing.T) {
	violations := ValidateInstance(testSnapshot(), "Zamboni", map[string]any{})
	require.Len(t, violations, 1)
	assert.Equal(t, CodeUnknownType, violations[0].Code)
}

func TestValidateInstance_TimeValue(t *testing.T) {
	violations := ValidateInstance(testSnapshot(), "Player",
		map[string]any{"nhl_id": 1, "signed_at": time.Now()})
	assert.Empty(t, violations)
}

func TestValidateLink(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name                 string
		link, source, target string
		srcDeg, tgtDeg       int
		want                 []string
	}{
		{"one_to_many ok", "plays_for", "Player", "Team", 5, 0, nil},
		{"one_to_many target taken", "plays_for", "Player", "Team", 0, 1, []string{CodeCardinality}},
		{"one_to_one ok", "captained_by", "Team", "Player", 0, 0, nil},
		{"one_to_one source taken", "captained_by", "Team", "Player", 1, 0, []string{CodeCardinality}},
		{"one_to_one both taken", "captained_by", "Team", "Player", 1, 1, []string{CodeCardinality, CodeCardinality}},
		{"endpoint mismatch", "plays_for", "Team", "Player", 0, 0, []string{CodeEndpointType}},
		{"bidirectional reverse ok", "rivals", "Team", "Team", 3, 3, nil},
		{"unknown link", "coached_by", "Player", "Team", 0, 0, []string{CodeUnknownLink}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateLink(snap, tt.link, tt.source, tt.target, tt.srcDeg, tt.tgtDeg)
			if len(tt.want) == 0 {
				assert.Empty(t, violations)
				return
			}
			assert.Equal(t, tt.want, violationCodes(violations))
		})
	}
}
