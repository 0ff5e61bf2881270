package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/schema"
)

// Document is the declarative policy document accepted by `policy load`.
type Document struct {
	Policies []DocPolicy `yaml:"policies"`
}

// DocPolicy declares one SecurityPolicy.
type DocPolicy struct {
	Name     string    `yaml:"name"`
	Enabled  *bool     `yaml:"enabled,omitempty"` // nil = enabled
	Priority int       `yaml:"priority,omitempty"`
	Rules    []DocRule `yaml:"rules"`
}

// DocRule declares one PolicyRule.
type DocRule struct {
	Target string         `yaml:"target"`
	Action string         `yaml:"action"`
	Effect Effect         `yaml:"effect"`
	Actors ActorPredicate `yaml:"actors,omitempty"`
}

// ValidationError reports policy document problems, itemized.
type ValidationError struct {
	Violations []schema.Violation
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy document invalid: %d violation(s)", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	return b.String()
}

// ParseDocument decodes a YAML policy document.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode policy document")
	}
	return &doc, nil
}

// ValidateDocument checks the document structurally and resolves every
// rule target and action against the snapshot. Every rule's target
// must resolve to an existing object type, property, or link type in
// the schema it will be evaluated against, or be the explicit wildcard.
func ValidateDocument(doc *Document, snap *schema.Snapshot) []schema.Violation {
	var out []schema.Violation

	if len(doc.Policies) == 0 {
		out = append(out, schema.Violation{
			Code: schema.CodeMissingField, Path: "policies",
			Message: "at least one policy is required"})
	}

	seen := make(map[string]bool, len(doc.Policies))
	for i, p := range doc.Policies {
		path := fmt.Sprintf("policies[%d]", i)
		if p.Name == "" {
			out = append(out, schema.Violation{
				Code: schema.CodeMissingField, Path: path + ".name",
				Message: "policy name is required"})
			continue
		}
		path = "policies." + p.Name
		if seen[p.Name] {
			out = append(out, schema.Violation{
				Code: schema.CodeDuplicateName, Path: path,
				Message: "duplicate policy name"})
		}
		seen[p.Name] = true

		if len(p.Rules) == 0 {
			out = append(out, schema.Violation{
				Code: schema.CodeMissingField, Path: path + ".rules",
				Message: "policy declares no rules"})
		}

		for j, r := range p.Rules {
			rpath := fmt.Sprintf("%s.rules[%d]", path, j)
			out = append(out, validateRule(rpath, r, snap)...)
		}
	}

	return out
}

func validateRule(path string, r DocRule, snap *schema.Snapshot) []schema.Violation {
	var out []schema.Violation

	if r.Effect != Allow && r.Effect != Deny {
		out = append(out, schema.Violation{
			Code: schema.CodeBadConstraint, Path: path + ".effect",
			Message: fmt.Sprintf("effect must be allow or deny, got %q", r.Effect)})
	}
	if r.Action == "" {
		out = append(out, schema.Violation{
			Code: schema.CodeMissingField, Path: path + ".action",
			Message: "rule action is required"})
	} else if snap != nil && !snap.HasAction(r.Action) {
		out = append(out, schema.Violation{
			Code: schema.CodeUnknownRef, Path: path + ".action",
			Message: fmt.Sprintf("action type %q is not declared in schema version %d", r.Action, snap.VersionID())})
	}
	if r.Target == "" {
		out = append(out, schema.Violation{
			Code: schema.CodeMissingField, Path: path + ".target",
			Message: "rule target is required"})
		return out
	}

	if snap == nil {
		return out
	}

	target := ParseTarget(r.Target)
	switch target.Kind {
	case TargetWildcard:
		// always resolves
	case TargetObjectType:
		if _, ok := snap.ObjectType(target.Name); !ok {
			out = append(out, schema.Violation{
				Code: schema.CodeUnknownRef, Path: path + ".target",
				Message: fmt.Sprintf("object type %q does not exist in schema version %d", target.Name, snap.VersionID())})
		}
	case TargetProperty:
		parts := strings.SplitN(target.Name, ".", 2)
		if _, ok := snap.ResolveProperty(parts[0], parts[1]); !ok {
			out = append(out, schema.Violation{
				Code: schema.CodeUnknownRef, Path: path + ".target",
				Message: fmt.Sprintf("property %q does not exist in schema version %d", target.Name, snap.VersionID())})
		}
	case TargetLinkType:
		if _, ok := snap.LinkType(target.Name); !ok {
			out = append(out, schema.Violation{
				Code: schema.CodeUnknownRef, Path: path + ".target",
				Message: fmt.Sprintf("link type %q does not exist in schema version %d", target.Name, snap.VersionID())})
		}
	}

	return out
}
