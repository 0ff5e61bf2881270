// Package schema defines the ontology model: versioned object types,
// properties, link types, and action types, plus the pure validator
// that checks documents and instance payloads against a schema snapshot.
package schema

import "time"

// VersionState is the lifecycle state of a SchemaVersion.
type VersionState string

const (
	VersionDraft      VersionState = "draft"
	VersionActive     VersionState = "active"
	VersionSuperseded VersionState = "superseded"
)

// TypeState is the lifecycle state of an ObjectType within its version.
type TypeState string

const (
	TypeActive     TypeState = "active"
	TypeDeprecated TypeState = "deprecated"
)

// DataKind is the closed set of primitive property kinds plus a
// reference kind pointing to another ObjectType by name.
type DataKind string

const (
	KindString    DataKind = "string"
	KindInteger   DataKind = "integer"
	KindFloat     DataKind = "float"
	KindBoolean   DataKind = "boolean"
	KindTimestamp DataKind = "timestamp"
	KindReference DataKind = "reference"
)

// KnownKind reports whether k is one of the supported data kinds.
func KnownKind(k DataKind) bool {
	switch k {
	case KindString, KindInteger, KindFloat, KindBoolean, KindTimestamp, KindReference:
		return true
	}
	return false
}

// Cardinality constrains how many edges a LinkType permits per endpoint.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// KnownCardinality reports whether c is one of the supported cardinalities.
func KnownCardinality(c Cardinality) bool {
	switch c {
	case OneToOne, OneToMany, ManyToMany:
		return true
	}
	return false
}

// SchemaVersion identifies one immutable snapshot of the full
// type/property/link/action definition set. Ids increase monotonically;
// exactly one version is active at a time.
type SchemaVersion struct {
	ID          int64        `json:"id"`
	State       VersionState `json:"state"`
	ContentHash string       `json:"content_hash"`
	Namespace   string       `json:"namespace"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	ActivatedAt *time.Time   `json:"activated_at,omitempty"`
}

// ObjectType is a named entity kind (e.g. "Player", "Game") owned by
// exactly one SchemaVersion.
type ObjectType struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	State      TypeState  `json:"state"`
	Properties []Property `json:"properties"`
}

// Property is a typed attribute scoped to one ObjectType.
// Never shared across object types.
type Property struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     DataKind `json:"kind"`
	Required bool     `json:"required"`
	Nullable bool     `json:"nullable"`
	Enum     []string `json:"enum,omitempty"`
	RefType  string   `json:"ref_type,omitempty"` // target type name when Kind == KindReference
}

// Property returns the property with the given name, if present.
func (ot *ObjectType) Property(name string) (Property, bool) {
	for _, p := range ot.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// LinkType is a named, directed, cardinality-constrained relationship
// between two ObjectTypes. Symmetric relationships are modeled as a
// single LinkType with Bidirectional set, never as a mirrored pair.
type LinkType struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Source        string      `json:"source"`
	Target        string      `json:"target"`
	Cardinality   Cardinality `json:"cardinality"`
	Bidirectional bool        `json:"bidirectional"`
}

// ActionType is a named operation subject to authorization
// (read/write/delete/execute-query). Not tied to a single ObjectType.
type ActionType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
