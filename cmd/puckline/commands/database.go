package commands

import (
	"database/sql"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/config"
	"github.com/puckline/puckline/db"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/loader"
	"github.com/puckline/puckline/logger"
	"github.com/puckline/puckline/policy"
	"github.com/puckline/puckline/storage"
)

// openDatabase opens and migrates the engine database. If dbPath is
// empty the configured path is used.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		dbPath = cfg.Database.Path
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}

// engineStores bundles the stores every command needs.
type engineStores struct {
	audit  *audit.Store
	schema *storage.Store
	policy *policy.Store
	loader *loader.Loader
}

func newStores(database *sql.DB) *engineStores {
	auditStore := audit.NewStore(database, logger.Logger)
	schemaStore := storage.NewStore(database, auditStore, logger.Logger)
	policyStore := policy.NewStore(database, auditStore, logger.Logger)
	return &engineStores{
		audit:  auditStore,
		schema: schemaStore,
		policy: policyStore,
		loader: loader.New(schemaStore, auditStore, logger.Logger),
	}
}

func (s *engineStores) engine(cfg *config.Config) *policy.Engine {
	return policy.NewEngine(s.schema, s.policy, s.audit, cfg.Policy.BypassActors, logger.Logger)
}
