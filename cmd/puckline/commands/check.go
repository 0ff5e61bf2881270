package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/puckline/puckline/config"
	"github.com/puckline/puckline/policy"
	"github.com/puckline/puckline/sym"
)

// CheckCmd represents the check command
var CheckCmd = &cobra.Command{
	Use:   "check <actor> <action> <target>",
	Short: sym.Check + " Evaluate an access request",
	Long: sym.Check + ` check — Evaluate an access request against loaded policies

Evaluates whether an actor may perform an action on a target under the
active schema version and the enabled policies. The decision is
recorded in the audit trail. Exits non-zero when the decision is deny.

Targets:
  Player                  # an object type
  Player.contract_details # a property
  link:drafted_by         # a link type
  *                       # everything

Examples:
  puckline check alice view_entity Player
  puckline check bob edit_property Player.contract_details --role scout
  puckline check svc-ingest view_entity '*' --team analytics`,
	Args: cobra.ExactArgs(3),
	RunE: runCheck,
}

var (
	checkRolesFlag []string
	checkTeamsFlag []string
)

func init() {
	CheckCmd.Flags().StringSliceVar(&checkRolesFlag, "role", nil, "Actor role (repeatable)")
	CheckCmd.Flags().StringSliceVar(&checkTeamsFlag, "team", nil, "Actor team (repeatable)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	actor := policy.Actor{
		ID:    args[0],
		Roles: checkRolesFlag,
		Teams: checkTeamsFlag,
	}

	decision, err := stores.engine(cfg).Evaluate(cmd.Context(), actor, args[1], args[2])
	if err != nil {
		return err
	}

	detail := ""
	if decision.MatchedRuleID != "" {
		detail = " (rule " + decision.MatchedRuleID + ")"
	}
	if decision.Bypassed {
		detail = " (bypass)"
	}

	if decision.Allowed() {
		fmt.Printf("%s allow%s\n", sym.Check, detail)
		return nil
	}

	fmt.Printf("%s deny%s\n", sym.Check, detail)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return errDenied
}
