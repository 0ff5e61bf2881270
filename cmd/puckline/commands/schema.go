package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/loader"
	"github.com/puckline/puckline/logger"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/storage"
	"github.com/puckline/puckline/sym"
)

// SchemaCmd represents the schema command
var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: sym.Schema + " Manage ontology schema versions",
	Long: sym.Schema + ` schema — Manage ontology schema versions

Load declarative schema documents, activate versions, and inspect the
registry. Schema documents are YAML files declaring object types,
properties, link types, and action types. Every load creates a new
immutable version; exactly one version is active at a time.

Examples:
  puckline schema load ontology.yaml --user alice           # Load as draft
  puckline schema load ontology.yaml --user alice --activate # Load and activate
  puckline schema load ontology.yaml --user alice --migrate  # Enforce compatibility
  puckline schema load ontology.yaml --user alice --watch    # Reload on file change
  puckline schema activate 3 --user alice                    # Activate draft version 3
  puckline schema show                                       # Show active version
  puckline schema ls                                         # List all versions`,
}

var schemaLoadCmd = &cobra.Command{
	Use:   "load <document.yaml>",
	Short: "Load a schema document as a new version",
	Long: `Parse and validate a YAML schema document and register it as a new
draft version. Re-loading a document identical to the active version is
a no-op. With --migrate, backward-incompatible changes against the
active version are rejected; --force downgrades them to warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchemaLoad,
}

var schemaActivateCmd = &cobra.Command{
	Use:   "activate <version-id>",
	Short: "Activate a draft schema version",
	Long: `Promote a draft version to active, superseding the current active
version. A superseded version can never be re-activated; re-load its
document to bring its content back.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchemaActivate,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [version-id]",
	Short: "Show a schema version's declared types",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaShow,
}

var schemaLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all schema versions",
	RunE:  runSchemaLs,
}

var (
	schemaActorFlag    string
	schemaActivateFlag bool
	schemaMigrateFlag  bool
	schemaForceFlag    bool
	schemaWatchFlag    bool
)

func init() {
	schemaLoadCmd.Flags().StringVar(&schemaActorFlag, "user", "", "Actor id recorded in the audit trail (required)")
	schemaLoadCmd.Flags().BoolVar(&schemaActivateFlag, "activate", false, "Activate the version after loading")
	schemaLoadCmd.Flags().BoolVar(&schemaMigrateFlag, "migrate", false, "Reject backward-incompatible changes against the active version")
	schemaLoadCmd.Flags().BoolVar(&schemaForceFlag, "force", false, "With --migrate, log incompatibilities as warnings instead of failing")
	schemaLoadCmd.Flags().BoolVar(&schemaWatchFlag, "watch", false, "Keep running and re-load when the document changes on disk")
	schemaLoadCmd.MarkFlagRequired("user")

	schemaActivateCmd.Flags().StringVar(&schemaActorFlag, "user", "", "Actor id recorded in the audit trail (required)")
	schemaActivateCmd.MarkFlagRequired("user")

	SchemaCmd.AddCommand(schemaLoadCmd)
	SchemaCmd.AddCommand(schemaActivateCmd)
	SchemaCmd.AddCommand(schemaShowCmd)
	SchemaCmd.AddCommand(schemaLsCmd)
}

func runSchemaLoad(cmd *cobra.Command, args []string) error {
	docPath := args[0]

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	opts := loader.Options{
		Actor:    schemaActorFlag,
		Activate: schemaActivateFlag,
		Migrate:  schemaMigrateFlag,
		Force:    schemaForceFlag,
	}

	if err := loadSchemaFile(cmd.Context(), stores.loader, docPath, opts); err != nil {
		return err
	}

	if !schemaWatchFlag {
		return nil
	}

	watcher, err := loader.NewDocumentWatcher(docPath)
	if err != nil {
		return errors.Wrapf(err, "failed to watch %s", docPath)
	}
	watcher.OnChange(func(path string) error {
		if err := loadSchemaFile(context.Background(), stores.loader, path, opts); err != nil {
			logger.Errorw("Schema re-load failed",
				"symbol", sym.Schema,
				"path", path,
				"error", err,
			)
			return err
		}
		return nil
	})
	watcher.Start()
	defer watcher.Stop()

	fmt.Printf("%s Watching %s for changes (Ctrl-C to stop)\n", sym.Schema, docPath)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return nil
}

func loadSchemaFile(ctx context.Context, ldr *loader.Loader, path string, opts loader.Options) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	result, err := ldr.Load(ctx, raw, opts)
	if err != nil {
		return err
	}

	switch {
	case result.Reused:
		fmt.Printf("%s Document already active as version %d, nothing to do\n", sym.Schema, result.VersionID)
	case result.Activated:
		fmt.Printf("%s Loaded and activated schema version %d\n", sym.Schema, result.VersionID)
	default:
		fmt.Printf("%s Loaded schema version %d (draft)\n", sym.Schema, result.VersionID)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}

func runSchemaActivate(cmd *cobra.Command, args []string) error {
	versionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.Newf("invalid version id %q", args[0])
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	snap, err := stores.schema.Activate(cmd.Context(), versionID, schemaActorFlag)
	if err != nil {
		if errors.Is(err, storage.ErrVersionAlreadyActive) {
			fmt.Printf("%s Version %d is already active\n", sym.Schema, versionID)
			return nil
		}
		return err
	}

	fmt.Printf("%s Activated schema version %d (%d object types, %d link types, %d action types)\n",
		sym.Schema, snap.VersionID(), len(snap.ObjectTypes()), len(snap.LinkTypes()), len(snap.ActionTypes()))
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	var snap *schema.Snapshot
	if len(args) == 1 {
		versionID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Newf("invalid version id %q", args[0])
		}
		snap, err = stores.schema.Snapshot(cmd.Context(), versionID)
		if err != nil {
			return err
		}
	} else {
		snap, err = stores.schema.ActiveSnapshot(cmd.Context())
		if err != nil {
			if errors.IsNotFoundError(err) {
				fmt.Printf("%s No active schema version\n", sym.Schema)
				return nil
			}
			return err
		}
	}

	v := snap.Version()
	fmt.Printf("%s Schema version %d [%s] namespace=%s hash=%s\n\n",
		sym.Schema, v.ID, v.State, v.Namespace, shortHash(v.ContentHash))

	for _, ot := range snap.ObjectTypes() {
		fmt.Printf("  object %s\n", ot.Name)
		for _, p := range ot.Properties {
			constraints := ""
			if p.Required {
				constraints += " required"
			}
			if !p.Nullable {
				constraints += " non-null"
			}
			if len(p.Enum) > 0 {
				constraints += fmt.Sprintf(" enum=%v", p.Enum)
			}
			if p.RefType != "" {
				constraints += " ref=" + p.RefType
			}
			fmt.Printf("    %-24s %s%s\n", p.Name, p.Kind, constraints)
		}
	}
	for _, lt := range snap.LinkTypes() {
		arrow := "->"
		if lt.Bidirectional {
			arrow = "<->"
		}
		fmt.Printf("  link %s: %s %s %s (%s)\n", lt.Name, lt.Source, arrow, lt.Target, lt.Cardinality)
	}
	for _, at := range snap.ActionTypes() {
		fmt.Printf("  action %s\n", at)
	}
	return nil
}

func runSchemaLs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	versions, err := stores.schema.ListVersions(cmd.Context())
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Printf("%s No schema versions loaded\n", sym.Schema)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tNAMESPACE\tCREATED BY\tCREATED AT\tHASH")
	for _, v := range versions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.State, v.Namespace, v.CreatedBy,
			v.CreatedAt.Format("2006-01-02 15:04:05"), shortHash(v.ContentHash))
	}
	return w.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
