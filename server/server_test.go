package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/config"
	"github.com/puckline/puckline/db"
	pucktest "github.com/puckline/puckline/internal/testing"
	"github.com/puckline/puckline/loader"
	"github.com/puckline/puckline/policy"
	"github.com/puckline/puckline/storage"
)

const testSchemaDoc = `
format: "1.0.0"
namespace: scouting
object_types:
  - name: Player
    properties:
      - name: nhl_id
        kind: integer
        required: true
      - name: contract_details
        kind: string
action_types:
  - view_entity
`

func setupServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	database := pucktest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, nil))

	cfg := &config.Config{}
	auditStore := audit.NewStore(database, nil)
	schemaStore := storage.NewStore(database, auditStore, nil)
	policyStore := policy.NewStore(database, auditStore, nil)
	engine := policy.NewEngine(schemaStore, policyStore, auditStore, nil, nil)
	ldr := loader.New(schemaStore, auditStore, nil)

	srv := New(database, cfg, schemaStore, policyStore, engine, auditStore, ldr, nil)
	mux := http.NewServeMux()
	srv.routes(mux)
	return srv, mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSchemaLoad_RequiresActorHeader(t *testing.T) {
	_, mux := setupServer(t)

	rec := postJSON(t, mux, "/api/schema/load", "", schemaLoadRequest{Document: testSchemaDoc})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSchemaLoadAndEvaluate(t *testing.T) {
	_, mux := setupServer(t)

	rec := postJSON(t, mux, "/api/schema/load", "alice",
		schemaLoadRequest{Document: testSchemaDoc, Activate: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var loadResp struct {
		VersionID int64 `json:"version_id"`
		Activated bool  `json:"activated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loadResp))
	assert.True(t, loadResp.Activated)

	// No policy loaded: default deny.
	rec = postJSON(t, mux, "/api/evaluate", "", evaluateRequest{
		Actor:  policy.Actor{ID: "bob"},
		Action: "view_entity",
		Target: "Player",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var decision policy.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, policy.Deny, decision.Effect)
	assert.Equal(t, loadResp.VersionID, decision.SchemaVersion)
}

func TestSchemaLoad_ValidationViolationsItemized(t *testing.T) {
	_, mux := setupServer(t)

	bad := `
format: "1.0.0"
namespace: scouting
object_types:
  - name: Player
    properties:
      - name: mood
        kind: vibes
`
	rec := postJSON(t, mux, "/api/schema/load", "alice", schemaLoadRequest{Document: bad})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Error      string            `json:"error"`
		Violations []json.RawMessage `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp.Error)
	assert.NotEmpty(t, resp.Violations)
}

func TestEvaluate_NoActiveSchemaConflict(t *testing.T) {
	_, mux := setupServer(t)

	rec := postJSON(t, mux, "/api/evaluate", "", evaluateRequest{
		Actor:  policy.Actor{ID: "bob"},
		Action: "view_entity",
		Target: "Player",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatus(t *testing.T) {
	_, mux := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Nil(t, status["active_schema_version"])
	assert.Contains(t, status, "version")
}

func TestPolicyLoad_ThenDenyWins(t *testing.T) {
	_, mux := setupServer(t)

	rec := postJSON(t, mux, "/api/schema/load", "alice",
		schemaLoadRequest{Document: testSchemaDoc, Activate: true})
	require.Equal(t, http.StatusOK, rec.Code)

	policyDoc := `
policies:
  - name: scout-access
    rules:
      - target: Player
        action: view_entity
        effect: allow
        actors:
          roles: [scout]
      - target: Player.contract_details
        action: view_entity
        effect: deny
        actors:
          roles: [scout]
`
	rec = postJSON(t, mux, "/api/policies/load", "alice", policyLoadRequest{Document: policyDoc})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = postJSON(t, mux, "/api/evaluate", "", evaluateRequest{
		Actor:  policy.Actor{ID: "bob", Roles: []string{"scout"}},
		Action: "view_entity",
		Target: "Player",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var decision policy.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, policy.Allow, decision.Effect)

	rec = postJSON(t, mux, "/api/evaluate", "", evaluateRequest{
		Actor:  policy.Actor{ID: "bob", Roles: []string{"scout"}},
		Action: "view_entity",
		Target: "Player.contract_details",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, policy.Deny, decision.Effect)
}
