package schema

import (
	"fmt"
	"time"
)

// Violation is one itemized validation failure. Validators collect
// every detectable violation in a single pass rather than stopping at
// the first, so administrative callers always see the full list.
type Violation struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Path, v.Message, v.Code)
}

// Violation codes.
const (
	CodeMissingField    = "missing_field"
	CodeDuplicateName   = "duplicate_name"
	CodeUnknownKind     = "unknown_kind"
	CodeUnknownRef      = "unknown_ref"
	CodeBadConstraint   = "bad_constraint"
	CodeUnknownType     = "unknown_type"
	CodeUnknownProperty = "unknown_property"
	CodeUnknownLink     = "unknown_link"
	CodeMissingRequired = "missing_required"
	CodeWrongKind       = "wrong_kind"
	CodeEnumViolation   = "enum_violation"
	CodeNullViolation   = "null_violation"
	CodeCardinality     = "cardinality_violation"
	CodeEndpointType    = "endpoint_type_mismatch"
)

// ValidateDocument checks a declared schema document for internal
// consistency: structural problems first (required fields, duplicate
// names within scope), then referential ones (property references and
// link endpoints resolve to object types declared in the same
// document). Pure function of the document; no I/O.
func ValidateDocument(doc *Document) []Violation {
	var out []Violation

	declared := make(map[string]bool, len(doc.ObjectTypes))

	if doc.Namespace == "" {
		out = append(out, Violation{CodeMissingField, "namespace", "namespace is required"})
	}
	if len(doc.ObjectTypes) == 0 {
		out = append(out, Violation{CodeMissingField, "object_types", "at least one object type is required"})
	}

	for i, ot := range doc.ObjectTypes {
		path := fmt.Sprintf("object_types[%d]", i)
		if ot.Name == "" {
			out = append(out, Violation{CodeMissingField, path + ".name", "object type name is required"})
			continue
		}
		path = "object_types." + ot.Name
		if declared[ot.Name] {
			out = append(out, Violation{CodeDuplicateName, path, "duplicate object type name"})
		}
		declared[ot.Name] = true

		seenProps := make(map[string]bool, len(ot.Properties))
		for j, p := range ot.Properties {
			ppath := fmt.Sprintf("%s.properties[%d]", path, j)
			if p.Name == "" {
				out = append(out, Violation{CodeMissingField, ppath + ".name", "property name is required"})
				continue
			}
			ppath = path + ".properties." + p.Name
			if seenProps[p.Name] {
				out = append(out, Violation{CodeDuplicateName, ppath, "duplicate property name within object type"})
			}
			seenProps[p.Name] = true

			if !KnownKind(p.Kind) {
				out = append(out, Violation{CodeUnknownKind, ppath + ".kind",
					fmt.Sprintf("unknown data kind %q", p.Kind)})
			}
			if p.Kind == KindReference && p.RefType == "" {
				out = append(out, Violation{CodeMissingField, ppath + ".ref_type",
					"reference property must declare ref_type"})
			}
			if p.Kind != KindReference && p.RefType != "" {
				out = append(out, Violation{CodeBadConstraint, ppath + ".ref_type",
					"ref_type is only valid for reference properties"})
			}
			if len(p.Enum) > 0 && p.Kind != KindString {
				out = append(out, Violation{CodeBadConstraint, ppath + ".enum",
					"enumerated values are only valid for string properties"})
			}
		}
	}

	// Referential pass: every reference kind and link endpoint must
	// resolve to an object type declared in this document.
	for _, ot := range doc.ObjectTypes {
		for _, p := range ot.Properties {
			if p.Kind == KindReference && p.RefType != "" && !declared[p.RefType] {
				out = append(out, Violation{CodeUnknownRef,
					"object_types." + ot.Name + ".properties." + p.Name + ".ref_type",
					fmt.Sprintf("reference target %q is not declared", p.RefType)})
			}
		}
	}

	seenLinks := make(map[string]bool, len(doc.LinkTypes))
	for i, lt := range doc.LinkTypes {
		path := fmt.Sprintf("link_types[%d]", i)
		if lt.Name == "" {
			out = append(out, Violation{CodeMissingField, path + ".name", "link type name is required"})
			continue
		}
		path = "link_types." + lt.Name
		key := lt.Name + "|" + lt.Source + "|" + lt.Target
		if seenLinks[key] {
			out = append(out, Violation{CodeDuplicateName, path, "duplicate (name, source, target) link type"})
		}
		seenLinks[key] = true

		if !KnownCardinality(lt.Cardinality) {
			out = append(out, Violation{CodeUnknownKind, path + ".cardinality",
				fmt.Sprintf("unknown cardinality %q", lt.Cardinality)})
		}
		if lt.Source == "" {
			out = append(out, Violation{CodeMissingField, path + ".source", "link source is required"})
		} else if !declared[lt.Source] {
			out = append(out, Violation{CodeUnknownRef, path + ".source",
				fmt.Sprintf("source type %q is not declared", lt.Source)})
		}
		if lt.Target == "" {
			out = append(out, Violation{CodeMissingField, path + ".target", "link target is required"})
		} else if !declared[lt.Target] {
			out = append(out, Violation{CodeUnknownRef, path + ".target",
				fmt.Sprintf("target type %q is not declared", lt.Target)})
		}
	}

	seenActions := make(map[string]bool, len(doc.ActionTypes))
	for _, a := range doc.ActionTypes {
		if seenActions[a] {
			out = append(out, Violation{CodeDuplicateName, "action_types." + a, "duplicate action type"})
		}
		seenActions[a] = true
	}

	return out
}

// ValidateInstance checks a property-value payload against the named
// object type in the snapshot. Returns nil when the payload conforms.
// Pure function of (payload, snapshot); no side effects, no I/O.
func ValidateInstance(snap *Snapshot, typeName string, values map[string]any) []Violation {
	ot, ok := snap.ObjectType(typeName)
	if !ok {
		return []Violation{{CodeUnknownType, typeName,
			fmt.Sprintf("object type %q does not exist in schema version %d", typeName, snap.VersionID())}}
	}

	var out []Violation

	for _, p := range ot.Properties {
		v, present := values[p.Name]
		path := typeName + "." + p.Name

		if !present {
			if p.Required {
				out = append(out, Violation{CodeMissingRequired, path, "required property is missing"})
			}
			continue
		}
		if v == nil {
			if !p.Nullable {
				out = append(out, Violation{CodeNullViolation, path, "property is not nullable"})
			}
			continue
		}
		if !kindMatches(p.Kind, v) {
			out = append(out, Violation{CodeWrongKind, path,
				fmt.Sprintf("expected %s, got %T", p.Kind, v)})
			continue
		}
		if len(p.Enum) > 0 {
			sv, _ := v.(string)
			if !contains(p.Enum, sv) {
				out = append(out, Violation{CodeEnumViolation, path,
					fmt.Sprintf("value %q is not in the enumerated set", sv)})
			}
		}
	}

	for name := range values {
		if _, ok := ot.Property(name); !ok {
			out = append(out, Violation{CodeUnknownProperty, typeName + "." + name,
				"property is not declared on this object type"})
		}
	}

	return out
}

// ValidateLink checks a proposed edge against the named link type.
// sourceDegree and targetDegree are the counts of existing edges of
// this link type already attached to the proposed endpoints; the
// caller owns instance storage, so it supplies them.
func ValidateLink(snap *Snapshot, linkName, sourceType, targetType string, sourceDegree, targetDegree int) []Violation {
	lt, ok := snap.LinkType(linkName)
	if !ok {
		return []Violation{{CodeUnknownLink, linkName,
			fmt.Sprintf("link type %q does not exist in schema version %d", linkName, snap.VersionID())}}
	}

	var out []Violation

	forward := lt.Source == sourceType && lt.Target == targetType
	reverse := lt.Bidirectional && lt.Source == targetType && lt.Target == sourceType
	if !forward && !reverse {
		out = append(out, Violation{CodeEndpointType, linkName,
			fmt.Sprintf("link %q connects %s to %s, not %s to %s",
				linkName, lt.Source, lt.Target, sourceType, targetType)})
		return out
	}

	switch lt.Cardinality {
	case OneToOne:
		if sourceDegree > 0 {
			out = append(out, Violation{CodeCardinality, linkName,
				"one_to_one link: source already has an edge"})
		}
		if targetDegree > 0 {
			out = append(out, Violation{CodeCardinality, linkName,
				"one_to_one link: target already has an edge"})
		}
	case OneToMany:
		// One source fans out to many targets; each target accepts one edge.
		if targetDegree > 0 {
			out = append(out, Violation{CodeCardinality, linkName,
				"one_to_many link: target already has an incoming edge"})
		}
	case ManyToMany:
		// unconstrained
	}

	return out
}

func kindMatches(kind DataKind, v any) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindInteger:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			// JSON decoding yields float64 for all numbers; accept
			// integral values only.
			return n == float64(int64(n))
		case float32:
			return n == float32(int64(n))
		}
		return false
	case KindFloat:
		switch v.(type) {
		case float32, float64, int, int8, int16, int32, int64:
			return true
		}
		return false
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindTimestamp:
		switch t := v.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339, t)
			return err == nil
		}
		return false
	case KindReference:
		s, ok := v.(string)
		return ok && s != ""
	}
	return false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
