package loader

import (
	"fmt"

	"github.com/puckline/puckline/schema"
)

// Compatibility issue codes.
const (
	CodeTypeRemoved          = "type_removed"
	CodeTypeStillLinked      = "type_still_linked"
	CodePropertyRemoved      = "property_removed"
	CodeKindChanged          = "kind_changed"
	CodeEnumNarrowed         = "enum_narrowed"
	CodeRequiredAdded        = "required_added"
	CodeCardinalityTightened = "cardinality_tightened"
)

// checkCompatibility compares a proposed document against the active
// snapshot and collects changes that would silently break existing
// instances. Deprecating first and removing in a later version is the
// supported evolution path; direct removal is flagged.
func checkCompatibility(active *schema.Snapshot, doc *schema.Document) []schema.Violation {
	var out []schema.Violation

	for _, old := range active.ObjectTypes() {
		proposed, stillDeclared := doc.ObjectType(old.Name)
		if !stillDeclared {
			if old.State != schema.TypeDeprecated {
				out = append(out, schema.Violation{
					Code: CodeTypeRemoved, Path: "object_types." + old.Name,
					Message: "removes a non-deprecated object type"})
			}
			for _, lt := range active.LinkTypes() {
				if lt.Source == old.Name || lt.Target == old.Name {
					out = append(out, schema.Violation{
						Code: CodeTypeStillLinked, Path: "link_types." + lt.Name,
						Message: fmt.Sprintf("active link type still references removed type %q", old.Name)})
				}
			}
			continue
		}

		out = append(out, compareProperties(old, proposed)...)
	}

	for _, oldLink := range active.LinkTypes() {
		for _, newLink := range doc.LinkTypes {
			if newLink.Name != oldLink.Name {
				continue
			}
			if tightens(oldLink.Cardinality, newLink.Cardinality) {
				out = append(out, schema.Violation{
					Code: CodeCardinalityTightened, Path: "link_types." + oldLink.Name,
					Message: fmt.Sprintf("tightens cardinality from %s to %s; existing edges may violate it",
						oldLink.Cardinality, newLink.Cardinality)})
			}
		}
	}

	return out
}

func compareProperties(old schema.ObjectType, proposed *schema.DocObject) []schema.Violation {
	var out []schema.Violation

	declared := make(map[string]schema.DocProperty, len(proposed.Properties))
	for _, p := range proposed.Properties {
		declared[p.Name] = p
	}

	for _, oldProp := range old.Properties {
		path := "object_types." + old.Name + ".properties." + oldProp.Name
		newProp, kept := declared[oldProp.Name]
		if !kept {
			if oldProp.Required {
				out = append(out, schema.Violation{
					Code: CodePropertyRemoved, Path: path,
					Message: "removes a required property"})
			}
			continue
		}
		if newProp.Kind != oldProp.Kind {
			out = append(out, schema.Violation{
				Code: CodeKindChanged, Path: path,
				Message: fmt.Sprintf("changes data kind from %s to %s", oldProp.Kind, newProp.Kind)})
		}
		if narrowsEnum(oldProp.Enum, newProp.Enum) {
			out = append(out, schema.Violation{
				Code: CodeEnumNarrowed, Path: path,
				Message: "narrows the enumerated value set; existing values may become invalid"})
		}
	}

	for _, newProp := range proposed.Properties {
		if _, existed := old.Property(newProp.Name); !existed && newProp.Required {
			out = append(out, schema.Violation{
				Code: CodeRequiredAdded,
				Path: "object_types." + old.Name + ".properties." + newProp.Name,
				Message: "adds a required property to an existing type; existing instances lack it"})
		}
	}

	return out
}

// narrowsEnum reports whether the new enum excludes values the old one
// allowed. Adding a constraint where none existed narrows; removing
// the constraint entirely widens.
func narrowsEnum(old, new []string) bool {
	if len(new) == 0 {
		return false
	}
	if len(old) == 0 {
		return true
	}
	allowed := make(map[string]bool, len(new))
	for _, v := range new {
		allowed[v] = true
	}
	for _, v := range old {
		if !allowed[v] {
			return true
		}
	}
	return false
}

func tightens(old, new schema.Cardinality) bool {
	rank := map[schema.Cardinality]int{
		schema.OneToOne:   0,
		schema.OneToMany:  1,
		schema.ManyToMany: 2,
	}
	return rank[new] < rank[old]
}
