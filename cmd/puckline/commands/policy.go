package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/policy"
	"github.com/puckline/puckline/schema"
	"github.com/puckline/puckline/sym"
)

// PolicyCmd represents the policy command
var PolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: sym.Policy + " Manage security policies",
	Long: sym.Policy + ` policy — Manage security policies

Load declarative policy documents and manage which policies are
enabled. Policy documents are YAML files declaring ordered allow/deny
rules over schema targets. Loading a policy whose name already exists
replaces it atomically.

Examples:
  puckline policy load access.yaml --user alice   # Load or replace policies
  puckline policy ls                              # List policies
  puckline policy enable scout-access --user alice
  puckline policy disable scout-access --user alice`,
}

var policyLoadCmd = &cobra.Command{
	Use:   "load <document.yaml>",
	Short: "Load a policy document",
	Long: `Parse and validate a YAML policy document against the active schema
and apply each declared policy, replacing any existing policy with the
same name.`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyLoad,
}

var policyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List policies",
	RunE:  runPolicyLs,
}

var policyEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyToggle(true),
}

var policyDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyToggle(false),
}

var (
	policyActorFlag string
	policyRulesFlag bool
)

func init() {
	policyLoadCmd.Flags().StringVar(&policyActorFlag, "user", "", "Actor id recorded in the audit trail (required)")
	policyLoadCmd.MarkFlagRequired("user")

	policyLsCmd.Flags().BoolVar(&policyRulesFlag, "rules", false, "Show each policy's rules")

	policyEnableCmd.Flags().StringVar(&policyActorFlag, "user", "", "Actor id recorded in the audit trail (required)")
	policyEnableCmd.MarkFlagRequired("user")
	policyDisableCmd.Flags().StringVar(&policyActorFlag, "user", "", "Actor id recorded in the audit trail (required)")
	policyDisableCmd.MarkFlagRequired("user")

	PolicyCmd.AddCommand(policyLoadCmd)
	PolicyCmd.AddCommand(policyLsCmd)
	PolicyCmd.AddCommand(policyEnableCmd)
	PolicyCmd.AddCommand(policyDisableCmd)
}

func runPolicyLoad(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}

	doc, err := policy.ParseDocument(raw)
	if err != nil {
		return err
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	// Policies loaded before any schema exists skip target resolution.
	var snap *schema.Snapshot
	snap, err = stores.schema.ActiveSnapshot(cmd.Context())
	if err != nil && !errors.IsNotFoundError(err) {
		return err
	}

	if violations := policy.ValidateDocument(doc, snap); len(violations) > 0 {
		return &policy.ValidationError{Violations: violations}
	}

	var schemaVersion int64
	if snap != nil {
		schemaVersion = snap.VersionID()
	}
	if err := stores.policy.Apply(cmd.Context(), doc, policyActorFlag, schemaVersion); err != nil {
		return err
	}

	fmt.Printf("%s Applied %d polic%s from %s\n",
		sym.Policy, len(doc.Policies), pluralY(len(doc.Policies)), args[0])
	return nil
}

func runPolicyLs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	policies, err := stores.policy.ListPolicies(cmd.Context())
	if err != nil {
		return err
	}
	if len(policies) == 0 {
		fmt.Printf("%s No policies loaded\n", sym.Policy)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENABLED\tPRIORITY\tRULES\tCREATED BY")
	for _, p := range policies {
		fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%s\n", p.Name, p.Enabled, p.Priority, len(p.Rules), p.CreatedBy)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !policyRulesFlag {
		return nil
	}
	for _, p := range policies {
		fmt.Printf("\n%s %s\n", sym.Policy, p.Name)
		for _, r := range p.Rules {
			fmt.Printf("  [%d] %s %s on %s", r.Position, r.Effect, r.Action, r.Target)
			if len(r.Predicate.ActorIDs)+len(r.Predicate.Roles)+len(r.Predicate.Teams) > 0 {
				fmt.Printf(" when %s", r.Predicate)
			}
			fmt.Println()
		}
	}
	return nil
}

func runPolicyToggle(enable bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()
		stores := newStores(database)

		var schemaVersion int64
		if snap, err := stores.schema.ActiveSnapshot(cmd.Context()); err == nil {
			schemaVersion = snap.VersionID()
		}

		if err := stores.policy.SetEnabled(cmd.Context(), args[0], enable, policyActorFlag, schemaVersion); err != nil {
			return err
		}

		verb := "Enabled"
		if !enable {
			verb = "Disabled"
		}
		fmt.Printf("%s %s policy %s\n", sym.Policy, verb, args[0])
		return nil
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
