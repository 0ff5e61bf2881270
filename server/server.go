// Package server exposes the admin surface over HTTP: schema load and
// activation, policy evaluation, and audit queries, plus a WebSocket
// live tail of the audit log. Thin boundary only; all semantics live
// in loader, storage, policy, and audit.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/config"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/loader"
	"github.com/puckline/puckline/policy"
	"github.com/puckline/puckline/storage"
	"github.com/puckline/puckline/sym"
)

// Server is the admin HTTP/WebSocket server.
type Server struct {
	db          *sql.DB
	cfg         *config.Config
	schemaStore *storage.Store
	policyStore *policy.Store
	engine      *policy.Engine
	auditStore  *audit.Store
	loader      *loader.Loader
	logger      *zap.SugaredLogger

	evalLimiter *rate.Limiter

	// Audit tail fan-out
	clients   map[*auditClient]bool
	clientsMu sync.Mutex

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a server over already-constructed stores and engine.
func New(db *sql.DB, cfg *config.Config, schemaStore *storage.Store, policyStore *policy.Store,
	engine *policy.Engine, auditStore *audit.Store, ldr *loader.Loader, logger *zap.SugaredLogger) *Server {

	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if cfg.Server.EvaluateRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.EvaluateRateLimit), cfg.Server.EvaluateRateBurst)
	}

	return &Server{
		db:          db,
		cfg:         cfg,
		schemaStore: schemaStore,
		policyStore: policyStore,
		engine:      engine,
		auditStore:  auditStore,
		loader:      ldr,
		logger:      logger,
		evalLimiter: limiter,
		clients:     make(map[*auditClient]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins serving on the configured port. Blocks until the
// context is canceled or the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.routes(mux)

	addr := fmt.Sprintf(":%d", s.cfg.ServerPort())
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.wg.Add(1)
	go s.auditTailLoop()

	s.logger.Infow("Admin server listening",
		"symbol", sym.Serve,
		"address", addr,
	)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections and stops the audit tail.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.clientsMu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.clients = make(map[*auditClient]bool)
	s.clientsMu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/api/schema/load", s.corsMiddleware(s.requireActor(s.handleSchemaLoad)))
	mux.HandleFunc("/api/schema/activate", s.corsMiddleware(s.requireActor(s.handleSchemaActivate)))
	mux.HandleFunc("/api/schema/active", s.corsMiddleware(s.handleSchemaActive))
	mux.HandleFunc("/api/schema/versions", s.corsMiddleware(s.handleSchemaVersions))
	mux.HandleFunc("/api/validate", s.corsMiddleware(s.handleValidate))
	mux.HandleFunc("/api/evaluate", s.corsMiddleware(s.rateLimit(s.handleEvaluate)))
	mux.HandleFunc("/api/policies", s.corsMiddleware(s.handlePolicies))
	mux.HandleFunc("/api/policies/load", s.corsMiddleware(s.requireActor(s.handlePolicyLoad)))
	mux.HandleFunc("/api/audit", s.corsMiddleware(s.handleAuditQuery))
	mux.HandleFunc("/ws/audit", s.corsMiddleware(s.handleAuditTail))
}
