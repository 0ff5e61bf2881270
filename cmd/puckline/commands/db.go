package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/puckline/puckline/config"
	"github.com/puckline/puckline/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage engine database",
	Long: sym.DB + ` db — Manage engine database operations

Examples:
  puckline db stats               # Show registry and audit statistics`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display schema version, policy, and audit trail counts for the engine database",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	counts := []struct {
		label string
		query string
	}{
		{"Schema versions", "SELECT COUNT(*) FROM schema_versions"},
		{"  active", "SELECT COUNT(*) FROM schema_versions WHERE state = 'active'"},
		{"  draft", "SELECT COUNT(*) FROM schema_versions WHERE state = 'draft'"},
		{"  superseded", "SELECT COUNT(*) FROM schema_versions WHERE state = 'superseded'"},
		{"Object types", "SELECT COUNT(*) FROM object_types"},
		{"Link types", "SELECT COUNT(*) FROM link_types"},
		{"Action types", "SELECT COUNT(*) FROM action_types"},
		{"Policies", "SELECT COUNT(*) FROM security_policies"},
		{"  enabled", "SELECT COUNT(*) FROM security_policies WHERE enabled = 1"},
		{"Policy rules", "SELECT COUNT(*) FROM policy_rules"},
		{"Audit entries", "SELECT COUNT(*) FROM audit_log"},
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:    %s\n\n", cfg.Database.Path)

	for _, c := range counts {
		var n int64
		if err := database.QueryRow(c.query).Scan(&n); err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to query %s: %w", c.label, err)
		}
		fmt.Printf("%-18s %d\n", c.label+":", n)
	}
	return nil
}
