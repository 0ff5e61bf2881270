// Package audit provides the append-only audit trail. Every policy
// decision and every schema mutation produces exactly one Entry; rows
// are never updated or deleted by the engine. The log is the sole
// source of truth for "who did what, when".
package audit

import (
	"context"
	"time"

	"github.com/puckline/puckline/errors"
)

// ErrWriteFailure marks any failure to append an audit entry. The
// triggering action (schema activation, policy evaluation) must abort
// rather than proceed un-audited: availability is traded for an
// unbroken accountability trail.
var ErrWriteFailure = errors.New("audit write failure")

// Mutation action names recorded alongside runtime action types.
const (
	ActionSchemaLoad     = "schema.load"
	ActionSchemaActivate = "schema.activate"
	ActionPolicyLoad     = "policy.load"
	ActionPolicyToggle   = "policy.toggle"
)

// Mutation outcomes recorded in the decision column alongside
// allow/deny evaluation results.
const (
	OutcomeAllow     = "allow"
	OutcomeDeny      = "deny"
	OutcomeApplied   = "applied"
	OutcomeActivated = "activated"
	OutcomeUnchanged = "unchanged"
)

// Entry is one immutable audit record. Seq is assigned by the store on
// append and increases monotonically.
type Entry struct {
	Seq           int64     `json:"seq"`
	ActorID       string    `json:"actor_id"`
	Action        string    `json:"action"`
	Target        string    `json:"target"`
	Decision      string    `json:"decision"`
	SchemaVersion int64     `json:"schema_version"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Filter narrows a Query. Zero values mean "no constraint". AfterSeq
// selects entries appended after a known sequence number and flips the
// result order to oldest-first, which is what a live tail wants.
type Filter struct {
	Actor    string
	Target   string
	Since    time.Time
	Until    time.Time
	AfterSeq int64
	Limit    int
}

// Recorder appends audit entries. Satisfied by *Store; callers that
// must couple an entry atomically with their own mutation use the
// transactional variant on *Store directly.
type Recorder interface {
	Record(ctx context.Context, e Entry) (int64, error)
}
