// Package policy implements rule-based access control over the
// ontology: named security policies whose rules bind (target, action,
// actor predicate) triples to allow/deny effects, and the engine that
// evaluates them with explicit-deny-wins semantics.
package policy

import (
	"strings"
	"time"
)

// Effect is a rule's outcome when it matches.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// TargetKind discriminates the target tagged union. Rule matching
// never duck-types across kinds: a rule on an object type does not
// govern that type's properties.
type TargetKind string

const (
	TargetObjectType TargetKind = "object_type"
	TargetProperty   TargetKind = "property"
	TargetLinkType   TargetKind = "link_type"
	TargetWildcard   TargetKind = "wildcard"
)

// TargetRef identifies what a rule or request points at.
// Property targets use "Type.property" names; link targets use the
// "link:" prefix; "*" is the explicit wildcard.
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	Name string     `json:"name"`
}

// ParseTarget interprets a textual target reference.
func ParseTarget(s string) TargetRef {
	switch {
	case s == "*":
		return TargetRef{Kind: TargetWildcard}
	case strings.HasPrefix(s, "link:"):
		return TargetRef{Kind: TargetLinkType, Name: strings.TrimPrefix(s, "link:")}
	case strings.Contains(s, "."):
		return TargetRef{Kind: TargetProperty, Name: s}
	default:
		return TargetRef{Kind: TargetObjectType, Name: s}
	}
}

// String renders the reference in the same form ParseTarget accepts.
func (t TargetRef) String() string {
	switch t.Kind {
	case TargetWildcard:
		return "*"
	case TargetLinkType:
		return "link:" + t.Name
	default:
		return t.Name
	}
}

// Matches reports whether a rule target covers a request target.
// Exact kind+name match, or rule-side wildcard.
func (t TargetRef) Matches(request TargetRef) bool {
	if t.Kind == TargetWildcard {
		return true
	}
	return t.Kind == request.Kind && t.Name == request.Name
}

// Actor is the authenticated caller context a predicate is evaluated
// against.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
	Teams []string `json:"teams,omitempty"`
}

// ActorPredicate selects actors by role, team affiliation, or explicit
// id list. An empty predicate matches every actor; otherwise any
// listed attribute match suffices.
type ActorPredicate struct {
	Roles    []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	Teams    []string `json:"teams,omitempty" yaml:"teams,omitempty"`
	ActorIDs []string `json:"actor_ids,omitempty" yaml:"actor_ids,omitempty"`
}

// String renders the predicate for CLI listings.
func (p ActorPredicate) String() string {
	var parts []string
	if len(p.ActorIDs) > 0 {
		parts = append(parts, "actors="+strings.Join(p.ActorIDs, ","))
	}
	if len(p.Roles) > 0 {
		parts = append(parts, "roles="+strings.Join(p.Roles, ","))
	}
	if len(p.Teams) > 0 {
		parts = append(parts, "teams="+strings.Join(p.Teams, ","))
	}
	if len(parts) == 0 {
		return "any actor"
	}
	return strings.Join(parts, " ")
}

// Matches evaluates the predicate against an actor's attributes.
func (p ActorPredicate) Matches(actor Actor) bool {
	if len(p.Roles) == 0 && len(p.Teams) == 0 && len(p.ActorIDs) == 0 {
		return true
	}
	for _, id := range p.ActorIDs {
		if id == actor.ID {
			return true
		}
	}
	for _, want := range p.Roles {
		for _, have := range actor.Roles {
			if want == have {
				return true
			}
		}
	}
	for _, want := range p.Teams {
		for _, have := range actor.Teams {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Rule binds a target and action to an effect for matching actors.
type Rule struct {
	ID        string         `json:"id"`
	Position  int            `json:"position"`
	Target    TargetRef      `json:"target"`
	Action    string         `json:"action"`
	Predicate ActorPredicate `json:"predicate"`
	Effect    Effect         `json:"effect"`
}

// Policy is a named, ordered container of rules. Priority orders
// policies during evaluation but never overrides explicit-deny-wins;
// it only sequences which allow rule gets reported as matched.
type Policy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Priority  int       `json:"priority"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Rules     []Rule    `json:"rules"`
}

// Decision is the outcome of one evaluation. MatchedRuleID is an
// opaque reference for debugging; the full rule contents are never
// returned, so one tenant's policy structure does not leak to another.
type Decision struct {
	Effect        Effect `json:"effect"`
	MatchedRuleID string `json:"matched_rule_id,omitempty"`
	Bypassed      bool   `json:"bypassed,omitempty"`
	SchemaVersion int64  `json:"schema_version"`
}

// Allowed is a convenience accessor.
func (d *Decision) Allowed() bool {
	return d.Effect == Allow
}
