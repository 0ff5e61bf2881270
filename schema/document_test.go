package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const playerDoc = `
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
      - name: contract_details
        kind: string
  - name: Team
    properties:
      - name: name
        kind: string
        required: true
link_types:
  - name: plays_for
    source: Player
    target: Team
    cardinality: one_to_many
action_types:
  - view_entity
  - edit_property
`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(playerDoc))
	require.NoError(t, err)

	assert.Equal(t, "scouting", doc.Namespace)
	require.Len(t, doc.ObjectTypes, 2)
	assert.Equal(t, "Player", doc.ObjectTypes[0].Name)
	require.Len(t, doc.ObjectTypes[0].Properties, 3)
	assert.Equal(t, KindInteger, doc.ObjectTypes[0].Properties[0].Kind)
	assert.True(t, doc.ObjectTypes[0].Properties[0].Required)

	require.Len(t, doc.LinkTypes, 1)
	assert.Equal(t, OneToMany, doc.LinkTypes[0].Cardinality)
	assert.Equal(t, []string{"view_entity", "edit_property"}, doc.ActionTypes)
}

func TestParseDocument_BadYAML(t *testing.T) {
	_, err := ParseDocument([]byte("object_types: [}"))
	assert.Error(t, err)
}

func TestParseDocument_FormatGate(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{"current", "1.0.0", false},
		{"minor bump", "1.3.0", false},
		{"next major", "2.0.0", true},
		{"garbage", "not-a-version", true},
		{"missing", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "format: \"" + tt.format + "\"\nnamespace: x\nobject_types:\n  - name: T\n"
			if tt.format == "" {
				raw = "namespace: x\nobject_types:\n  - name: T\n"
			}
			_, err := ParseDocument([]byte(raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContentHash_IgnoresDeclarationOrder(t *testing.T) {
	a := &Document{
		Format:    "1.0.0",
		Namespace: "scouting",
		ObjectTypes: []DocObject{
			{Name: "Team", Properties: []DocProperty{{Name: "name", Kind: KindString}}},
			{Name: "Player", Properties: []DocProperty{
				{Name: "position", Kind: KindString},
				{Name: "nhl_id", Kind: KindInteger},
			}},
		},
		ActionTypes: []string{"edit_property", "view_entity"},
	}
	b := &Document{
		Format:    "1.0.0",
		Namespace: "scouting",
		ObjectTypes: []DocObject{
			{Name: "Player", Properties: []DocProperty{
				{Name: "nhl_id", Kind: KindInteger},
				{Name: "position", Kind: KindString},
			}},
			{Name: "Team", Properties: []DocProperty{{Name: "name", Kind: KindString}}},
		},
		ActionTypes: []string{"view_entity", "edit_property"},
	}

	ha, err := a.ContentHash()
	require.NoError(t, err)
	hb, err := b.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "hash must not depend on declaration order")
}

func TestContentHash_SensitiveToContent(t *testing.T) {
	doc, err := ParseDocument([]byte(playerDoc))
	require.NoError(t, err)
	h1, err := doc.ContentHash()
	require.NoError(t, err)

	doc.ObjectTypes[0].Properties[0].Required = false
	h2, err := doc.ContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
