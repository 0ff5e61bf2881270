package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/puckline/puckline/cmd/puckline/commands"
	"github.com/puckline/puckline/logger"
)

var rootCmd = &cobra.Command{
	Use:   "puckline",
	Short: "Puckline - Ontology and policy engine",
	Long: `Puckline - Versioned ontology registry with rule-based access control.

Puckline manages a versioned schema of object types, properties, link
types, and action types; evaluates access requests against declarative
security policies with explicit-deny-wins semantics; and records every
decision and mutation in an append-only audit trail.

Available commands:
  schema  - Load, activate, and inspect schema versions
  policy  - Load and manage security policies
  check   - Evaluate an access request
  audit   - Query the audit trail
  db      - Database operations
  serve   - Start the admin HTTP server
  config  - Manage configuration

Examples:
  puckline schema load ontology.yaml --user alice --activate
  puckline policy load access.yaml --user alice
  puckline check bob view_entity Player.contract_details --role scout
  puckline audit query --actor bob
  puckline serve`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetCount("verbose")
		if verbose > 0 {
			return logger.InitializeVerbose()
		}
		return logger.Initialize(false)
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity")

	rootCmd.AddCommand(commands.SchemaCmd)
	rootCmd.AddCommand(commands.PolicyCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.AuditCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCode(err))
	}
}
