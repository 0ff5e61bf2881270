package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/puckline/puckline/config"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/logger"
	"github.com/puckline/puckline/server"
	"github.com/puckline/puckline/sym"
)

// ServeCmd starts the admin HTTP server
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: sym.Serve + " Start the admin HTTP server",
	Long: sym.Serve + ` serve — Start the admin HTTP and WebSocket server

Exposes schema loading and activation, policy management, access
evaluation, audit queries, and a live WebSocket tail of the audit log.

Examples:
  puckline serve                  # Listen on the configured port
  puckline serve --port 9000      # Override the port
  puckline serve --db-path x.db   # Override the database path`,
	RunE: runServe,
}

var (
	servePortFlag   int
	serveDBPathFlag string
)

func init() {
	ServeCmd.Flags().IntVar(&servePortFlag, "port", 0, "Listen port (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPathFlag, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if servePortFlag > 0 {
		cfg.Server.Port = &servePortFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	database, err := openDatabase(serveDBPathFlag)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()
	stores := newStores(database)

	srv := server.New(database, cfg,
		stores.schema, stores.policy, stores.engine(cfg), stores.audit, stores.loader,
		logger.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Infow("Shutting down",
			"symbol", sym.Serve,
			"signal", sig.String(),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}
	return <-errCh
}
