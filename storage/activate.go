package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/sym"
)

// Activate promotes a draft version to active and demotes the current
// active version to superseded, atomically. This is the engine's
// single serialization point: at most one activation is in flight, and
// the audit entry commits in the same transaction as the state change
// (audit-or-abort). Readers keep the previous snapshot until the
// pointer swap after commit, so none observes a torn schema.
func (s *Store) Activate(ctx context.Context, versionID int64, actor string) (*schema.Snapshot, error) {
	s.activateMu.Lock()
	defer s.activateMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin activation tx")
	}
	defer tx.Rollback()

	var state string
	err = tx.QueryRowContext(ctx, "SELECT state FROM schema_versions WHERE id = ?", versionID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrVersionNotFound, "version %d", versionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read version state")
	}

	switch schema.VersionState(state) {
	case schema.VersionActive:
		// The common loser outcome of an activation race: someone
		// already promoted this version. Carries both sentinels so
		// callers can match either taxonomy entry.
		return nil, errors.Mark(
			errors.Wrapf(ErrVersionAlreadyActive, "version %d", versionID),
			ErrVersionConflict)
	case schema.VersionSuperseded:
		return nil, errors.Wrapf(ErrVersionConflict,
			"version %d was superseded before activation", versionID)
	}

	if _, err := tx.ExecContext(ctx, demoteActiveQuery); err != nil {
		return nil, errors.Wrap(err, "demote active version")
	}

	res, err := tx.ExecContext(ctx, promoteDraftQuery, versionID)
	if err != nil {
		return nil, errors.Wrap(err, "promote draft version")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "promotion row count")
	}
	if n != 1 {
		return nil, errors.Wrapf(ErrVersionConflict, "version %d changed state during activation", versionID)
	}

	if _, err := s.audit.RecordTx(ctx, tx, audit.Entry{
		ActorID:       actor,
		Action:        audit.ActionSchemaActivate,
		Target:        fmt.Sprintf("version:%d", versionID),
		Decision:      audit.OutcomeActivated,
		SchemaVersion: versionID,
	}); err != nil {
		// Audit-or-abort: the rolled-back tx undoes the promotion.
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit activation")
	}

	snap, err := s.loadSnapshot(ctx, versionID)
	if err != nil {
		return nil, errors.Wrap(err, "load activated snapshot")
	}
	s.active.Store(snap)

	if s.logger != nil {
		s.logger.Infow("Schema version activated",
			"symbol", sym.Schema,
			"schema_version", versionID,
			"actor_id", actor,
		)
	}

	return snap, nil
}
