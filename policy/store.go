package policy

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/sym"
)

// ErrPolicyNotFound indicates the named policy does not exist.
var ErrPolicyNotFound = errors.New("policy not found")

// Query constants
const (
	policyInsertQuery = `
		INSERT INTO security_policies (id, name, enabled, priority, created_by)
		VALUES (?, ?, ?, ?, ?)`

	policyDeleteByNameQuery = `
		DELETE FROM security_policies WHERE name = ?`

	ruleDeleteByPolicyNameQuery = `
		DELETE FROM policy_rules WHERE policy_id IN
			(SELECT id FROM security_policies WHERE name = ?)`

	ruleInsertQuery = `
		INSERT INTO policy_rules (id, policy_id, position, target_kind, target_ref, action, actor_predicate, effect)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	policySelectQuery = `
		SELECT id, name, enabled, priority, created_by, created_at
		FROM security_policies ORDER BY priority, name`

	enabledPolicySelectQuery = `
		SELECT id, name, enabled, priority, created_by, created_at
		FROM security_policies WHERE enabled = 1 ORDER BY priority, name`

	rulesSelectQuery = `
		SELECT id, position, target_kind, target_ref, action, actor_predicate, effect
		FROM policy_rules WHERE policy_id = ? ORDER BY position`

	policyToggleQuery = `
		UPDATE security_policies SET enabled = ? WHERE name = ?`
)

// txRecorder appends an audit entry inside the caller's transaction.
type txRecorder interface {
	RecordTx(ctx context.Context, tx *sql.Tx, e audit.Entry) (int64, error)
}

// Store persists security policies and rules in SQLite.
type Store struct {
	db     *sql.DB
	audit  txRecorder
	logger *zap.SugaredLogger
}

// NewStore creates a policy store. Mutations are audited through rec
// in the same transaction as the change.
func NewStore(db *sql.DB, rec txRecorder, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, audit: rec, logger: logger}
}

// Apply replaces the named policies with the document's declarations.
// Policies not named in the document are left untouched; policies in
// the document are replaced wholesale (old rules deleted, new rules
// inserted) in one audited transaction.
func (s *Store) Apply(ctx context.Context, doc *Document, actor string, schemaVersion int64) error {
	if actor == "" {
		return errors.Wrap(errors.ErrUnauthorized, "policy load requires an authenticated actor")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin policy tx")
	}
	defer tx.Rollback()

	for _, p := range doc.Policies {
		if _, err := tx.ExecContext(ctx, ruleDeleteByPolicyNameQuery, p.Name); err != nil {
			return errors.Wrapf(err, "clear rules for policy %s", p.Name)
		}
		if _, err := tx.ExecContext(ctx, policyDeleteByNameQuery, p.Name); err != nil {
			return errors.Wrapf(err, "clear policy %s", p.Name)
		}

		policyID := uuid.New().String()
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		priority := p.Priority
		if priority == 0 {
			priority = 100
		}
		if _, err := tx.ExecContext(ctx, policyInsertQuery, policyID, p.Name, enabled, priority, actor); err != nil {
			return errors.Wrapf(err, "insert policy %s", p.Name)
		}

		for pos, r := range p.Rules {
			target := ParseTarget(r.Target)
			predicateJSON, err := json.Marshal(r.Actors)
			if err != nil {
				return errors.Wrapf(err, "marshal predicate for %s rule %d", p.Name, pos)
			}
			if _, err := tx.ExecContext(ctx, ruleInsertQuery,
				uuid.New().String(), policyID, pos,
				string(target.Kind), target.Name, r.Action,
				string(predicateJSON), string(r.Effect)); err != nil {
				return errors.Wrapf(err, "insert rule %d of policy %s", pos, p.Name)
			}
		}

		if _, err := s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:       actor,
			Action:        audit.ActionPolicyLoad,
			Target:        "policy:" + p.Name,
			Decision:      audit.OutcomeApplied,
			SchemaVersion: schemaVersion,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit policy load")
	}

	if s.logger != nil {
		s.logger.Infow("Policies applied",
			"symbol", sym.Policy,
			"count", len(doc.Policies),
			"actor_id", actor,
		)
	}

	return nil
}

// SetEnabled flips a policy's enabled flag, audited.
func (s *Store) SetEnabled(ctx context.Context, name string, enabled bool, actor string, schemaVersion int64) error {
	if actor == "" {
		return errors.Wrap(errors.ErrUnauthorized, "policy toggle requires an authenticated actor")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin toggle tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, policyToggleQuery, enabled, name)
	if err != nil {
		return errors.Wrapf(err, "toggle policy %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "toggle row count")
	}
	if n == 0 {
		return errors.Wrapf(ErrPolicyNotFound, "policy %q", name)
	}

	outcome := "disabled"
	if enabled {
		outcome = "enabled"
	}
	if _, err := s.audit.RecordTx(ctx, tx, audit.Entry{
		ActorID:       actor,
		Action:        audit.ActionPolicyToggle,
		Target:        "policy:" + name,
		Decision:      outcome,
		SchemaVersion: schemaVersion,
	}); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "commit toggle")
}

// EnabledPolicies returns all enabled policies with their rules,
// ordered by (priority, name) so evaluation is deterministic.
func (s *Store) EnabledPolicies(ctx context.Context) ([]Policy, error) {
	return s.selectPolicies(ctx, enabledPolicySelectQuery)
}

// ListPolicies returns all policies, enabled or not.
func (s *Store) ListPolicies(ctx context.Context) ([]Policy, error) {
	return s.selectPolicies(ctx, policySelectQuery)
}

func (s *Store) selectPolicies(ctx context.Context, query string) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "select policies")
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Enabled, &p.Priority, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan policy")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		rules, err := s.loadRules(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Rules = rules
	}
	return out, nil
}

func (s *Store) loadRules(ctx context.Context, policyID string) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, rulesSelectQuery, policyID)
	if err != nil {
		return nil, errors.Wrap(err, "select rules")
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		var kind, predicateJSON, effect string
		if err := rows.Scan(&r.ID, &r.Position, &kind, &r.Target.Name, &r.Action, &predicateJSON, &effect); err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}
		r.Target.Kind = TargetKind(kind)
		r.Effect = Effect(effect)
		if err := json.Unmarshal([]byte(predicateJSON), &r.Predicate); err != nil {
			return nil, errors.Wrapf(err, "decode predicate for rule %s", r.ID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
