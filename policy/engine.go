package policy

import (
	"context"

	"go.uber.org/zap"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/sym"
)

// SnapshotSource supplies the active schema snapshot.
// Satisfied by *storage.Store.
type SnapshotSource interface {
	ActiveSnapshot(ctx context.Context) (*schema.Snapshot, error)
}

// RuleSource supplies enabled policies in deterministic order.
// Satisfied by *Store.
type RuleSource interface {
	EnabledPolicies(ctx context.Context) ([]Policy, error)
}

// Engine evaluates access requests against enabled policies. Stateless
// between calls; evaluation is a pure function of (actor, action,
// target, active snapshot, enabled rules), which makes decisions
// deterministic and safely cacheable by callers.
type Engine struct {
	snapshots SnapshotSource
	rules     RuleSource
	audit     audit.Recorder
	bypass    map[string]bool
	logger    *zap.SugaredLogger
}

// NewEngine creates a policy engine. bypassActors is the explicit list
// of administrative actors that receive allow where the default deny
// would apply; it is configuration, never a default.
func NewEngine(snapshots SnapshotSource, rules RuleSource, rec audit.Recorder, bypassActors []string, logger *zap.SugaredLogger) *Engine {
	bypass := make(map[string]bool, len(bypassActors))
	for _, id := range bypassActors {
		bypass[id] = true
	}
	return &Engine{
		snapshots: snapshots,
		rules:     rules,
		audit:     rec,
		bypass:    bypass,
		logger:    logger,
	}
}

// Evaluate decides whether actor may perform action on target.
//
// Matching rules are partitioned into allow and deny sets; any
// satisfied deny rule wins regardless of policy priority, any
// satisfied allow rule wins otherwise, and the absence of a match
// resolves to deny (or the bypass exception). Every call appends
// exactly one audit entry; if the append fails the evaluation fails
// with it and no decision is returned (audit-or-abort).
func (e *Engine) Evaluate(ctx context.Context, actor Actor, action string, target string) (*Decision, error) {
	if actor.ID == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "evaluation requires an authenticated actor")
	}

	snap, err := e.snapshots.ActiveSnapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve active schema")
	}

	decision, err := e.decide(ctx, snap, actor, action, ParseTarget(target))
	if err != nil {
		return nil, err
	}
	decision.SchemaVersion = snap.VersionID()

	if _, err := e.audit.Record(ctx, audit.Entry{
		ActorID:       actor.ID,
		Action:        action,
		Target:        ParseTarget(target).String(),
		Decision:      string(decision.Effect),
		SchemaVersion: snap.VersionID(),
	}); err != nil {
		return nil, err
	}

	if e.logger != nil {
		e.logger.Debugw("Policy decision",
			"symbol", sym.Check,
			"actor_id", actor.ID,
			"action", action,
			"target", target,
			"decision", string(decision.Effect),
			"rule_id", decision.MatchedRuleID,
			"schema_version", snap.VersionID(),
		)
	}

	return decision, nil
}

func (e *Engine) decide(ctx context.Context, snap *schema.Snapshot, actor Actor, action string, target TargetRef) (*Decision, error) {
	policies, err := e.rules.EnabledPolicies(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load enabled policies")
	}

	// Requests against targets unknown to the active schema can never
	// be allowed by a resolvable rule; they fall through to default
	// deny and are still audited.
	targetKnown := e.targetResolves(snap, target)

	var firstDeny, firstAllow *Rule
	if targetKnown {
		for pi := range policies {
			for ri := range policies[pi].Rules {
				rule := &policies[pi].Rules[ri]
				if rule.Action != action {
					continue
				}
				if !rule.Target.Matches(target) {
					continue
				}
				if !rule.Predicate.Matches(actor) {
					continue
				}
				switch rule.Effect {
				case Deny:
					if firstDeny == nil {
						firstDeny = rule
					}
				case Allow:
					if firstAllow == nil {
						firstAllow = rule
					}
				}
			}
		}
	}

	switch {
	case firstDeny != nil:
		// Explicit-deny-wins, independent of priority ordering.
		return &Decision{Effect: Deny, MatchedRuleID: firstDeny.ID}, nil
	case firstAllow != nil:
		return &Decision{Effect: Allow, MatchedRuleID: firstAllow.ID}, nil
	case e.bypass[actor.ID]:
		// Explicit, auditable exception path. Never a default: only
		// replaces the no-match outcome, never an explicit deny.
		return &Decision{Effect: Allow, Bypassed: true}, nil
	default:
		return &Decision{Effect: Deny}, nil
	}
}

func (e *Engine) targetResolves(snap *schema.Snapshot, target TargetRef) bool {
	switch target.Kind {
	case TargetWildcard:
		return true
	case TargetObjectType:
		_, ok := snap.ObjectType(target.Name)
		return ok
	case TargetProperty:
		typeName, propName, ok := splitPropertyRef(target.Name)
		if !ok {
			return false
		}
		_, ok = snap.ResolveProperty(typeName, propName)
		return ok
	case TargetLinkType:
		_, ok := snap.LinkType(target.Name)
		return ok
	}
	return false
}

func splitPropertyRef(name string) (typeName, propName string, ok bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}
