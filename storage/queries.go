package storage

import (
	"database/sql"
	"encoding/json"
)

// Query constants
const (
	versionInsertQuery = `
		INSERT INTO schema_versions (state, content_hash, namespace, created_by)
		VALUES (?, ?, ?, ?)`

	objectTypeInsertQuery = `
		INSERT INTO object_types (id, schema_version_id, name, state)
		VALUES (?, ?, ?, ?)`

	propertyInsertQuery = `
		INSERT INTO properties (id, object_type_id, name, data_kind, required, nullable, enum_values, ref_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	linkTypeInsertQuery = `
		INSERT INTO link_types (id, schema_version_id, name, source_type_id, target_type_id, cardinality, bidirectional)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	actionTypeInsertQuery = `
		INSERT INTO action_types (id, schema_version_id, name)
		VALUES (?, ?, ?)`

	versionSelectQuery = `
		SELECT id, state, content_hash, namespace, created_by, created_at, activated_at
		FROM schema_versions WHERE id = ?`

	versionListQuery = `
		SELECT id, state, content_hash, namespace, created_by, created_at, activated_at
		FROM schema_versions ORDER BY id`

	activeVersionQuery = `
		SELECT id, state, content_hash, namespace, created_by, created_at, activated_at
		FROM schema_versions WHERE state = 'active'`

	activeByHashQuery = `
		SELECT id FROM schema_versions WHERE state = 'active' AND content_hash = ?`

	objectTypesSelectQuery = `
		SELECT id, name, state FROM object_types WHERE schema_version_id = ? ORDER BY name`

	propertiesSelectQuery = `
		SELECT id, name, data_kind, required, nullable, enum_values, ref_type
		FROM properties WHERE object_type_id = ? ORDER BY name`

	linkTypesSelectQuery = `
		SELECT lt.id, lt.name, src.name, tgt.name, lt.cardinality, lt.bidirectional
		FROM link_types lt
		JOIN object_types src ON src.id = lt.source_type_id
		JOIN object_types tgt ON tgt.id = lt.target_type_id
		WHERE lt.schema_version_id = ? ORDER BY lt.name`

	actionTypesSelectQuery = `
		SELECT id, name FROM action_types WHERE schema_version_id = ? ORDER BY name`

	demoteActiveQuery = `
		UPDATE schema_versions SET state = 'superseded' WHERE state = 'active'`

	promoteDraftQuery = `
		UPDATE schema_versions
		SET state = 'active', activated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = 'draft'`
)

func marshalEnum(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalEnum(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
