package storage

import (
	"context"
	"database/sql"

	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/schema"
)

// ActiveSnapshot returns the currently active schema snapshot. The hot
// path is a single atomic pointer load; the database is consulted only
// before the first activation observed by this process.
func (s *Store) ActiveSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	if snap := s.active.Load(); snap != nil {
		return snap, nil
	}

	version, err := s.scanVersion(s.db.QueryRowContext(ctx, activeVersionQuery))
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "no active schema version")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read active version")
	}

	snap, err := s.loadSnapshot(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	s.active.Store(snap)
	return snap, nil
}

// Snapshot returns a read-only snapshot of any stored version,
// active or not.
func (s *Store) Snapshot(ctx context.Context, versionID int64) (*schema.Snapshot, error) {
	if _, err := s.Version(ctx, versionID); err != nil {
		return nil, err
	}
	return s.loadSnapshot(ctx, versionID)
}

// Version returns the version row for versionID.
func (s *Store) Version(ctx context.Context, versionID int64) (*schema.SchemaVersion, error) {
	v, err := s.scanVersion(s.db.QueryRowContext(ctx, versionSelectQuery, versionID))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrVersionNotFound, "version %d", versionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read version")
	}
	return v, nil
}

// ListVersions returns all versions in id order.
func (s *Store) ListVersions(ctx context.Context) ([]schema.SchemaVersion, error) {
	rows, err := s.db.QueryContext(ctx, versionListQuery)
	if err != nil {
		return nil, errors.Wrap(err, "list versions")
	}
	defer rows.Close()

	var out []schema.SchemaVersion
	for rows.Next() {
		v, err := s.scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ListObjectTypes returns the object types of a stored version.
func (s *Store) ListObjectTypes(ctx context.Context, versionID int64) ([]schema.ObjectType, error) {
	snap, err := s.Snapshot(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return snap.ObjectTypes(), nil
}

// FindActiveByContentHash returns the active version's id when its
// content hash matches, or 0 when it does not. Used by the loader's
// idempotency check.
func (s *Store) FindActiveByContentHash(ctx context.Context, hash string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, activeByHashQuery, hash).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "find version by content hash")
	}
	return id, nil
}

// loadSnapshot reads every entity owned by versionID and freezes them
// into an immutable snapshot.
func (s *Store) loadSnapshot(ctx context.Context, versionID int64) (*schema.Snapshot, error) {
	version, err := s.Version(ctx, versionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, objectTypesSelectQuery, versionID)
	if err != nil {
		return nil, errors.Wrap(err, "load object types")
	}
	defer rows.Close()

	var objectTypes []schema.ObjectType
	for rows.Next() {
		var ot schema.ObjectType
		var state string
		if err := rows.Scan(&ot.ID, &ot.Name, &state); err != nil {
			return nil, errors.Wrap(err, "scan object type")
		}
		ot.State = schema.TypeState(state)
		objectTypes = append(objectTypes, ot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range objectTypes {
		props, err := s.loadProperties(ctx, objectTypes[i].ID)
		if err != nil {
			return nil, err
		}
		objectTypes[i].Properties = props
	}

	linkRows, err := s.db.QueryContext(ctx, linkTypesSelectQuery, versionID)
	if err != nil {
		return nil, errors.Wrap(err, "load link types")
	}
	defer linkRows.Close()

	var linkTypes []schema.LinkType
	for linkRows.Next() {
		var lt schema.LinkType
		var cardinality string
		if err := linkRows.Scan(&lt.ID, &lt.Name, &lt.Source, &lt.Target, &cardinality, &lt.Bidirectional); err != nil {
			return nil, errors.Wrap(err, "scan link type")
		}
		lt.Cardinality = schema.Cardinality(cardinality)
		linkTypes = append(linkTypes, lt)
	}
	if err := linkRows.Err(); err != nil {
		return nil, err
	}

	actionRows, err := s.db.QueryContext(ctx, actionTypesSelectQuery, versionID)
	if err != nil {
		return nil, errors.Wrap(err, "load action types")
	}
	defer actionRows.Close()

	var actionTypes []schema.ActionType
	for actionRows.Next() {
		var at schema.ActionType
		if err := actionRows.Scan(&at.ID, &at.Name); err != nil {
			return nil, errors.Wrap(err, "scan action type")
		}
		actionTypes = append(actionTypes, at)
	}
	if err := actionRows.Err(); err != nil {
		return nil, err
	}

	return schema.NewSnapshot(*version, objectTypes, linkTypes, actionTypes), nil
}

func (s *Store) loadProperties(ctx context.Context, objectTypeID string) ([]schema.Property, error) {
	rows, err := s.db.QueryContext(ctx, propertiesSelectQuery, objectTypeID)
	if err != nil {
		return nil, errors.Wrap(err, "load properties")
	}
	defer rows.Close()

	var out []schema.Property
	for rows.Next() {
		var p schema.Property
		var kind string
		var enumJSON, refType sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &kind, &p.Required, &p.Nullable, &enumJSON, &refType); err != nil {
			return nil, errors.Wrap(err, "scan property")
		}
		p.Kind = schema.DataKind(kind)
		p.Enum, err = unmarshalEnum(enumJSON)
		if err != nil {
			return nil, errors.Wrapf(err, "decode enum for property %s", p.Name)
		}
		if refType.Valid {
			p.RefType = refType.String
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanVersion(row rowScanner) (*schema.SchemaVersion, error) {
	var v schema.SchemaVersion
	var state string
	var activatedAt sql.NullTime
	if err := row.Scan(&v.ID, &state, &v.ContentHash, &v.Namespace, &v.CreatedBy, &v.CreatedAt, &activatedAt); err != nil {
		return nil, err
	}
	v.State = schema.VersionState(state)
	if activatedAt.Valid {
		v.ActivatedAt = &activatedAt.Time
	}
	return &v, nil
}
