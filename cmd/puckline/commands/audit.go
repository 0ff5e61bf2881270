package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/sym"
)

// AuditCmd represents the audit command
var AuditCmd = &cobra.Command{
	Use:   "audit",
	Short: sym.Audit + " Query the audit trail",
	Long: sym.Audit + ` audit — Query the append-only audit trail

Every policy decision and every schema or policy mutation appends
exactly one entry here. Entries are never updated or deleted.

Examples:
  puckline audit query                          # Most recent entries
  puckline audit query --actor alice            # One actor's history
  puckline audit query --target Player          # One target's history
  puckline audit query --since 2026-08-01T00:00:00Z
  puckline audit query --limit 200`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit entries, newest first",
	RunE:  runAuditQuery,
}

var (
	auditActorFlag  string
	auditTargetFlag string
	auditSinceFlag  string
	auditLimitFlag  int
)

func init() {
	auditQueryCmd.Flags().StringVar(&auditActorFlag, "actor", "", "Filter by actor id")
	auditQueryCmd.Flags().StringVar(&auditTargetFlag, "target", "", "Filter by target reference")
	auditQueryCmd.Flags().StringVar(&auditSinceFlag, "since", "", "Only entries at or after this RFC3339 timestamp")
	auditQueryCmd.Flags().IntVar(&auditLimitFlag, "limit", 50, "Maximum entries to show")

	AuditCmd.AddCommand(auditQueryCmd)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{
		Actor:  auditActorFlag,
		Target: auditTargetFlag,
		Limit:  auditLimitFlag,
	}
	if auditSinceFlag != "" {
		t, err := time.Parse(time.RFC3339, auditSinceFlag)
		if err != nil {
			return errors.Newf("--since must be RFC3339, got %q", auditSinceFlag)
		}
		filter.Since = t
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	stores := newStores(database)

	entries, err := stores.audit.Query(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("%s No matching audit entries\n", sym.Audit)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tWHEN\tACTOR\tACTION\tTARGET\tDECISION\tSCHEMA")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			e.Seq, e.OccurredAt.Format("2006-01-02 15:04:05"),
			e.ActorID, e.Action, e.Target, e.Decision, e.SchemaVersion)
	}
	return w.Flush()
}
