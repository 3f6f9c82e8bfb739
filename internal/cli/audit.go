package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/counterbalance/internal/store"
)

// AuditResult is the audit command's JSON payload.
type AuditResult struct {
	Sessions      int                 `json:"sessions"`
	Discrepancies []store.Discrepancy `json:"discrepancies"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [session]",
		Short: "Check counters against assignment rows",
		Long: `Check that every condition counter equals the number of pending and
completed assignments it summarizes.

Exit codes:
  0 - Counters are consistent
  1 - One or more discrepancies found
  2 - Command error

Examples:
  counterbalance audit
  counterbalance audit S1 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(rootOpts, args, cmd)
		},
	}
}

func runAudit(opts *RootOptions, args []string, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	ctx := cmd.Context()
	sessions := args
	if len(sessions) == 0 {
		sessions, err = st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list sessions", err)
		}
	}

	result := AuditResult{Sessions: len(sessions), Discrepancies: []store.Discrepancy{}}
	for _, s := range sessions {
		found, err := st.Audit(ctx, s)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to audit session %s", s), err)
		}
		result.Discrepancies = append(result.Discrepancies, found...)
	}

	out := opts.formatter(cmd)
	failed := len(result.Discrepancies) > 0
	if opts.Format == "json" {
		if failed {
			if err := out.Error("E_AUDIT", fmt.Sprintf("%d discrepancies", len(result.Discrepancies)), result); err != nil {
				return err
			}
		} else if err := out.Success(result, ""); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if failed {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tCONDITION\tPENDING\tROWS\tCOMPLETED\tROWS\tNOTE")
			for _, d := range result.Discrepancies {
				note := ""
				if d.MissingCounter {
					note = "missing counter"
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					d.SessionID, d.ConditionID, d.CounterPending, d.ActualPending, d.CounterCompleted, d.ActualCompleted, note)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(w, "✓ %d session(s) consistent\n", result.Sessions)
		}
	}

	if failed {
		return NewExitError(ExitFailure, fmt.Sprintf("%d discrepancies found", len(result.Discrepancies)))
	}
	return nil
}
