// Package storage provides the SQLite-backed schema store: durable
// persistence for schema versions and the entities they own, plus the
// single atomic activation operation that publishes a new version.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/sym"
)

var (
	// ErrVersionNotFound indicates the requested schema version does not exist.
	ErrVersionNotFound = errors.New("schema version not found")

	// ErrVersionAlreadyActive indicates the version is already the active one.
	ErrVersionAlreadyActive = errors.New("schema version already active")

	// ErrVersionConflict indicates a concurrent activation won the race.
	// One activation wins; the loser gets this, never a silent merge.
	ErrVersionConflict = errors.New("concurrent activation conflict")
)

// txRecorder appends an audit entry inside the caller's transaction.
// Satisfied by *audit.Store; a seam for audit-failure tests.
type txRecorder interface {
	RecordTx(ctx context.Context, tx *sql.Tx, e audit.Entry) (int64, error)
}

// Store is the schema store. All reads hand out immutable snapshots;
// the only mutable process-wide state is the atomically swapped
// pointer to the active snapshot, updated solely by Activate.
type Store struct {
	db     *sql.DB
	audit  txRecorder
	logger *zap.SugaredLogger

	activateMu sync.Mutex
	active     atomic.Pointer[schema.Snapshot]
}

// NewStore creates a schema store backed by db. Audit entries for
// activations are written through rec in the same transaction.
func NewStore(db *sql.DB, rec txRecorder, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, audit: rec, logger: logger}
}

// CreateDraft persists a validated document as a new draft version.
// All rows land in one transaction; a failed insert leaves nothing
// behind. The draft is invisible to readers until activated.
func (s *Store) CreateDraft(ctx context.Context, doc *schema.Document, actor string) (*schema.SchemaVersion, error) {
	hash, err := doc.ContentHash()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin draft tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, versionInsertQuery, string(schema.VersionDraft), hash, doc.Namespace, actor)
	if err != nil {
		return nil, errors.Wrap(err, "insert schema version")
	}
	versionID, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "draft version id")
	}

	typeIDs := make(map[string]string, len(doc.ObjectTypes))
	for _, ot := range doc.ObjectTypes {
		id := uuid.New().String()
		typeIDs[ot.Name] = id

		state := schema.TypeActive
		if ot.Deprecated {
			state = schema.TypeDeprecated
		}
		if _, err := tx.ExecContext(ctx, objectTypeInsertQuery, id, versionID, ot.Name, string(state)); err != nil {
			return nil, errors.Wrapf(err, "insert object type %s", ot.Name)
		}

		for _, p := range ot.Properties {
			nullable := true
			if p.Nullable != nil {
				nullable = *p.Nullable
			}
			enumJSON, err := marshalEnum(p.Enum)
			if err != nil {
				return nil, errors.Wrapf(err, "marshal enum for %s.%s", ot.Name, p.Name)
			}
			if _, err := tx.ExecContext(ctx, propertyInsertQuery,
				uuid.New().String(), id, p.Name, string(p.Kind),
				p.Required, nullable, enumJSON, nullIfEmpty(p.RefType)); err != nil {
				return nil, errors.Wrapf(err, "insert property %s.%s", ot.Name, p.Name)
			}
		}
	}

	for _, lt := range doc.LinkTypes {
		if _, err := tx.ExecContext(ctx, linkTypeInsertQuery,
			uuid.New().String(), versionID, lt.Name,
			typeIDs[lt.Source], typeIDs[lt.Target],
			string(lt.Cardinality), lt.Bidirectional); err != nil {
			return nil, errors.Wrapf(err, "insert link type %s", lt.Name)
		}
	}

	for _, a := range doc.ActionTypes {
		if _, err := tx.ExecContext(ctx, actionTypeInsertQuery, uuid.New().String(), versionID, a); err != nil {
			return nil, errors.Wrapf(err, "insert action type %s", a)
		}
	}

	// Audit-or-abort: the load entry commits with the draft rows or
	// not at all.
	if _, err := s.audit.RecordTx(ctx, tx, audit.Entry{
		ActorID:       actor,
		Action:        audit.ActionSchemaLoad,
		Target:        fmt.Sprintf("version:%d", versionID),
		Decision:      audit.OutcomeApplied,
		SchemaVersion: versionID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit draft")
	}

	if s.logger != nil {
		s.logger.Infow("Draft schema version created",
			"symbol", sym.Schema,
			"schema_version", versionID,
			"namespace", doc.Namespace,
			"object_types", len(doc.ObjectTypes),
			"link_types", len(doc.LinkTypes),
			"actor_id", actor,
		)
	}

	return s.Version(ctx, versionID)
}
