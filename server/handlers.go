package server

import (
	"net/http"
	"time"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/loader"
	"github.com/puckline/puckline/policy"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/storage"
	"github.com/puckline/puckline/version"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	status := map[string]interface{}{
		"version": version.Get(),
	}

	if snap, err := s.schemaStore.ActiveSnapshot(r.Context()); err == nil {
		status["active_schema_version"] = snap.VersionID()
	} else if errors.IsNotFoundError(err) {
		status["active_schema_version"] = nil
	} else {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if n, err := s.auditStore.Count(r.Context()); err == nil {
		status["audit_entries"] = n
	}

	writeJSON(w, http.StatusOK, status)
}

type schemaLoadRequest struct {
	Document string `json:"document"` // YAML schema document
	Activate bool   `json:"activate"`
	Migrate  bool   `json:"migrate"`
	Force    bool   `json:"force"`
}

func (s *Server) handleSchemaLoad(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req schemaLoadRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	result, err := s.loader.Load(r.Context(), []byte(req.Document), loader.Options{
		Actor:    r.Header.Get(actorHeader),
		Activate: req.Activate,
		Migrate:  req.Migrate,
		Force:    req.Force,
	})
	if err != nil {
		var vErr *loader.ValidationError
		var cErr *loader.CompatibilityError
		switch {
		case errors.As(err, &vErr):
			writeViolations(w, http.StatusUnprocessableEntity, "validation_failed", vErr.Violations)
		case errors.As(err, &cErr):
			writeViolations(w, http.StatusConflict, "incompatible_change", cErr.Issues)
		case errors.Is(err, audit.ErrWriteFailure):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version_id": result.VersionID,
		"reused":     result.Reused,
		"activated":  result.Activated,
		"warnings":   result.Warnings,
	})
}

type activateRequest struct {
	VersionID int64 `json:"version_id"`
}

func (s *Server) handleSchemaActivate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req activateRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	snap, err := s.schemaStore.Activate(r.Context(), req.VersionID, r.Header.Get(actorHeader))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrVersionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, storage.ErrVersionAlreadyActive), errors.Is(err, storage.ErrVersionConflict):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, audit.ErrWriteFailure):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_version": snap.VersionID(),
	})
}

func (s *Server) handleSchemaActive(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	snap, err := s.schemaStore.ActiveSnapshot(r.Context())
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeError(w, http.StatusNotFound, "no active schema version")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snapshotView(snap))
}

func (s *Server) handleSchemaVersions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	versions, err := s.schemaStore.ListVersions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

type validateRequest struct {
	ObjectType string         `json:"object_type"`
	Values     map[string]any `json:"values"`
}

// handleValidate checks an instance payload against the active schema.
// Read-only; used by ingestion surfaces before they accept data.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req validateRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	snap, err := s.schemaStore.ActiveSnapshot(r.Context())
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeError(w, http.StatusConflict, "no active schema version")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	violations := schema.ValidateInstance(snap, req.ObjectType, req.Values)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}

type evaluateRequest struct {
	Actor  policy.Actor `json:"actor"`
	Action string       `json:"action"`
	Target string       `json:"target"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req evaluateRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	decision, err := s.engine.Evaluate(r.Context(), req.Actor, req.Action, req.Target)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrWriteFailure):
			// Audit-or-abort: no decision leaves the engine un-audited.
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, errors.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.IsNotFoundError(err):
			writeError(w, http.StatusConflict, "no active schema version")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	policies, err := s.policyStore.ListPolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Redact rule contents: names, priorities, and rule counts only.
	type policyView struct {
		Name     string `json:"name"`
		Enabled  bool   `json:"enabled"`
		Priority int    `json:"priority"`
		Rules    int    `json:"rules"`
	}
	out := make([]policyView, 0, len(policies))
	for _, p := range policies {
		out = append(out, policyView{p.Name, p.Enabled, p.Priority, len(p.Rules)})
	}
	writeJSON(w, http.StatusOK, out)
}

type policyLoadRequest struct {
	Document string `json:"document"` // YAML policy document
}

func (s *Server) handlePolicyLoad(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req policyLoadRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	doc, err := policy.ParseDocument([]byte(req.Document))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.schemaStore.ActiveSnapshot(r.Context())
	if err != nil && !errors.IsNotFoundError(err) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if violations := policy.ValidateDocument(doc, snap); len(violations) > 0 {
		writeViolations(w, http.StatusUnprocessableEntity, "validation_failed", violations)
		return
	}

	var schemaVersion int64
	if snap != nil {
		schemaVersion = snap.VersionID()
	}
	if err := s.policyStore.Apply(r.Context(), doc, r.Header.Get(actorHeader), schemaVersion); err != nil {
		if errors.Is(err, audit.ErrWriteFailure) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied": len(doc.Policies),
	})
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	filter := audit.Filter{
		Actor:  r.URL.Query().Get("actor"),
		Target: r.URL.Query().Get("target"),
		Limit:  s.cfg.Audit.QueryLimit,
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = t
	}

	entries, err := s.auditStore.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// snapshotView renders a snapshot for JSON responses.
func snapshotView(snap *schema.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"version":      snap.Version(),
		"object_types": snap.ObjectTypes(),
		"link_types":   snap.LinkTypes(),
		"action_types": snap.ActionTypes(),
	}
}
