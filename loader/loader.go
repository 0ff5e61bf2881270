// Package loader accepts declarative schema documents, validates them,
// and persists them as draft schema versions. Validation is stateless;
// the final persist is the only step requiring atomicity, so a caller
// timeout never leaves partial state behind.
package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/storage"
	"github.com/puckline/puckline/sym"
)

// Options controls one load.
type Options struct {
	// Actor is the authenticated actor id. Required: there is no
	// anonymous schema mutation path.
	Actor string

	// Activate promotes the draft immediately after a successful persist.
	Activate bool

	// Migrate enables the backward-compatibility check against the
	// active version.
	Migrate bool

	// Force downgrades compatibility errors to warnings. Only
	// meaningful with Migrate.
	Force bool
}

// Result describes the outcome of a load.
type Result struct {
	VersionID int64
	Reused    bool // identical document was already active; no rows created
	Activated bool
	Warnings  []schema.Violation // forced compatibility issues, always surfaced
}

// Loader validates and applies schema documents.
type Loader struct {
	store  *storage.Store
	audit  audit.Recorder
	logger *zap.SugaredLogger
}

// New creates a loader writing through store, auditing through rec.
func New(store *storage.Store, rec audit.Recorder, logger *zap.SugaredLogger) *Loader {
	return &Loader{store: store, audit: rec, logger: logger}
}

// Load validates raw as a schema document and persists it as a new
// draft version. Validation order: structural, then referential, then
// (migration mode) backward compatibility; each pass reports every
// violation it can detect. Loading an identical document against the
// already-active version is a no-op returning the existing id.
func (l *Loader) Load(ctx context.Context, raw []byte, opts Options) (*Result, error) {
	if opts.Actor == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "schema load requires an authenticated actor")
	}

	doc, err := schema.ParseDocument(raw)
	if err != nil {
		return nil, err
	}

	if violations := schema.ValidateDocument(doc); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	var warnings []schema.Violation
	if opts.Migrate {
		active, err := l.store.ActiveSnapshot(ctx)
		if err != nil && !errors.IsNotFoundError(err) {
			return nil, err
		}
		if active != nil {
			issues := checkCompatibility(active, doc)
			if len(issues) > 0 && !opts.Force {
				return nil, &CompatibilityError{Issues: issues}
			}
			warnings = issues
			if len(warnings) > 0 && l.logger != nil {
				l.logger.Warnw("Forced load past compatibility issues",
					"symbol", sym.Schema,
					"count", len(warnings),
					"actor_id", opts.Actor,
				)
			}
		}
	}

	hash, err := doc.ContentHash()
	if err != nil {
		return nil, err
	}

	if existing, err := l.store.FindActiveByContentHash(ctx, hash); err != nil {
		return nil, err
	} else if existing != 0 {
		// Idempotent re-load. Still audited: the attempt happened.
		if _, err := l.audit.Record(ctx, audit.Entry{
			ActorID:       opts.Actor,
			Action:        audit.ActionSchemaLoad,
			Target:        fmt.Sprintf("version:%d", existing),
			Decision:      audit.OutcomeUnchanged,
			SchemaVersion: existing,
		}); err != nil {
			return nil, err
		}
		if l.logger != nil {
			l.logger.Infow("Schema document already active; load is a no-op",
				"symbol", sym.Schema,
				"schema_version", existing,
				"actor_id", opts.Actor,
			)
		}
		return &Result{VersionID: existing, Reused: true, Warnings: warnings}, nil
	}

	version, err := l.store.CreateDraft(ctx, doc, opts.Actor)
	if err != nil {
		return nil, err
	}

	result := &Result{VersionID: version.ID, Warnings: warnings}

	if opts.Activate {
		if _, err := l.store.Activate(ctx, version.ID, opts.Actor); err != nil {
			return nil, errors.Wrapf(err, "draft %d persisted but activation failed", version.ID)
		}
		result.Activated = true
	}

	return result, nil
}
