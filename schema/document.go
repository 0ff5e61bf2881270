package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/puckline/puckline/errors"
)

// SupportedFormats is the semver range of schema document formats this
// build understands. Major bumps signal incompatible document layouts.
const SupportedFormats = ">=1.0.0 <2.0.0"

// Document is the declarative schema document accepted by the loader.
// It is the on-disk (YAML) representation of one SchemaVersion.
type Document struct {
	Format      string         `yaml:"format" json:"format"`
	Namespace   string         `yaml:"namespace" json:"namespace"`
	ObjectTypes []DocObject    `yaml:"object_types" json:"object_types"`
	LinkTypes   []DocLink      `yaml:"link_types,omitempty" json:"link_types,omitempty"`
	ActionTypes []string       `yaml:"action_types,omitempty" json:"action_types,omitempty"`
}

// DocObject declares one ObjectType.
type DocObject struct {
	Name       string        `yaml:"name" json:"name"`
	Deprecated bool          `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
	Properties []DocProperty `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// DocProperty declares one Property of an ObjectType.
type DocProperty struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     DataKind `yaml:"kind" json:"kind"`
	Required bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Nullable *bool    `yaml:"nullable,omitempty" json:"nullable,omitempty"` // nil = nullable
	Enum     []string `yaml:"enum,omitempty" json:"enum,omitempty"`
	RefType  string   `yaml:"ref_type,omitempty" json:"ref_type,omitempty"`
}

// DocLink declares one LinkType.
type DocLink struct {
	Name          string      `yaml:"name" json:"name"`
	Source        string      `yaml:"source" json:"source"`
	Target        string      `yaml:"target" json:"target"`
	Cardinality   Cardinality `yaml:"cardinality" json:"cardinality"`
	Bidirectional bool        `yaml:"bidirectional,omitempty" json:"bidirectional,omitempty"`
}

// ParseDocument decodes a YAML schema document and gates its declared
// format version against SupportedFormats. Structural and referential
// validation is a separate pass (ValidateDocument).
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode schema document")
	}

	if doc.Format == "" {
		return nil, errors.New("schema document missing 'format' field")
	}
	ver, err := semver.NewVersion(doc.Format)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid format version %q", doc.Format)
	}
	supported, err := semver.NewConstraint(SupportedFormats)
	if err != nil {
		return nil, errors.Wrap(err, "parse supported format constraint")
	}
	if !supported.Check(ver) {
		return nil, errors.Newf("unsupported schema document format %q (supported: %s)",
			doc.Format, SupportedFormats)
	}

	return &doc, nil
}

// Canonical returns a deterministic JSON rendering of the document:
// object types, properties, links, and actions sorted by name, all
// formatting normalized. Two documents with the same semantics always
// produce the same canonical bytes, which makes the content hash a
// reliable idempotency key for loads.
func (d *Document) Canonical() ([]byte, error) {
	c := *d

	c.ObjectTypes = append([]DocObject(nil), d.ObjectTypes...)
	for i, ot := range c.ObjectTypes {
		props := append([]DocProperty(nil), ot.Properties...)
		sort.Slice(props, func(a, b int) bool { return props[a].Name < props[b].Name })
		c.ObjectTypes[i].Properties = props
	}
	sort.Slice(c.ObjectTypes, func(a, b int) bool { return c.ObjectTypes[a].Name < c.ObjectTypes[b].Name })

	c.LinkTypes = append([]DocLink(nil), d.LinkTypes...)
	sort.Slice(c.LinkTypes, func(a, b int) bool { return c.LinkTypes[a].Name < c.LinkTypes[b].Name })

	c.ActionTypes = append([]string(nil), d.ActionTypes...)
	sort.Strings(c.ActionTypes)

	return json.Marshal(c)
}

// ContentHash returns the hex sha256 of the canonical document.
func (d *Document) ContentHash() (string, error) {
	canonical, err := d.Canonical()
	if err != nil {
		return "", errors.Wrap(err, "canonicalize document")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ObjectType returns the declared object type with the given name.
func (d *Document) ObjectType(name string) (*DocObject, bool) {
	for i := range d.ObjectTypes {
		if d.ObjectTypes[i].Name == name {
			return &d.ObjectTypes[i], true
		}
	}
	return nil, false
}
