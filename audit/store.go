package audit

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/sym"
)

// Query constants
const (
	entryInsertQuery = `
		INSERT INTO audit_log (actor_id, action, target_ref, decision, schema_version_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	entrySelectColumns = `id, actor_id, action, target_ref, decision, schema_version_id, occurred_at`
)

// Store appends and queries audit entries in SQLite. Appends are one
// INSERT each with the sequence allocated by the database, so
// concurrent evaluators never serialize on a store-level lock.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates a new audit store
func NewStore(db *sql.DB, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger}
}

// Record appends one entry and returns its sequence number. Any
// failure is marked ErrWriteFailure; the caller must treat it as fatal
// to the triggering action.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, entryInsertQuery,
		e.ActorID, e.Action, e.Target, e.Decision, e.SchemaVersion, e.OccurredAt)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "append audit entry"), ErrWriteFailure)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "audit sequence"), ErrWriteFailure)
	}

	if s.logger != nil {
		s.logger.Debugw("Audit entry recorded",
			"symbol", sym.Audit,
			"audit_seq", seq,
			"actor_id", e.ActorID,
			"action", e.Action,
			"target", e.Target,
			"decision", e.Decision,
		)
	}

	return seq, nil
}

// RecordTx appends one entry inside the caller's transaction. Used by
// schema activation so the audit row commits or rolls back atomically
// with the state transition.
func (s *Store) RecordTx(ctx context.Context, tx *sql.Tx, e Entry) (int64, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, entryInsertQuery,
		e.ActorID, e.Action, e.Target, e.Decision, e.SchemaVersion, e.OccurredAt)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "append audit entry in tx"), ErrWriteFailure)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "audit sequence"), ErrWriteFailure)
	}
	return seq, nil
}

// Query returns entries matching the filter, newest first. Read-only;
// never blocks writers (WAL mode allows concurrent readers).
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	if f.Actor != "" {
		conds = append(conds, "actor_id = ?")
		args = append(args, f.Actor)
	}
	if f.Target != "" {
		conds = append(conds, "target_ref = ?")
		args = append(args, f.Target)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.Until)
	}
	if f.AfterSeq > 0 {
		conds = append(conds, "id > ?")
		args = append(args, f.AfterSeq)
	}

	query := "SELECT " + entrySelectColumns + " FROM audit_log"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.AfterSeq > 0 {
		query += " ORDER BY id ASC"
	} else {
		query += " ORDER BY id DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query audit log")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.ActorID, &e.Action, &e.Target, &e.Decision, &e.SchemaVersion, &e.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "scan audit entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the total number of audit entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count audit entries")
	}
	return n, nil
}
