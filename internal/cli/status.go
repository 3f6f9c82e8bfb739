package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/counterbalance/internal/balancer"
	"github.com/roach88/counterbalance/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Assignments bool // list individual assignments
}

// ConditionStatus is one condition's counters and load weight.
type ConditionStatus struct {
	Condition int     `json:"condition"`
	Pending   int     `json:"pending"`
	Completed int     `json:"completed"`
	Weight    float64 `json:"weight"`
}

// SessionStatus is the status command's per-session payload.
type SessionStatus struct {
	Session     string             `json:"session"`
	Assignments int                `json:"assignments"`
	Pending     int                `json:"pending"`
	Completed   int                `json:"completed"`
	Conditions  []ConditionStatus  `json:"conditions,omitempty"`
	Rows        []store.Assignment `json:"rows,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [session]",
		Short: "Show balancing state",
		Long: `Show balancing state.

Without a session, lists every session with its assignment totals. With a
session, shows each condition's pending and completed counts and the load
weight the next assignment will be chosen by.

Examples:
  counterbalance status
  counterbalance status S1
  counterbalance status S1 --assignments --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runStatusAll(opts, cmd)
			}
			return runStatusSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Assignments, "assignments", false, "list individual assignments")

	return cmd
}

func runStatusAll(opts *StatusOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	ctx := cmd.Context()
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list sessions", err)
	}

	statuses := make([]SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		summary, err := st.Summary(ctx, s)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read session", err)
		}
		statuses = append(statuses, SessionStatus{
			Session:     s,
			Assignments: summary.Assignments,
			Pending:     summary.Pending,
			Completed:   summary.Completed,
		})
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(statuses, "")
	}

	w := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tASSIGNMENTS\tPENDING\tCOMPLETED")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Session, s.Assignments, s.Pending, s.Completed)
	}
	return tw.Flush()
}

func runStatusSession(opts *StatusOptions, session string, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	ctx := cmd.Context()
	summary, err := st.Summary(ctx, session)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read session", err)
	}
	if len(summary.Counters) == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("session %q not found", session))
	}

	status := SessionStatus{
		Session:     session,
		Assignments: summary.Assignments,
		Pending:     summary.Pending,
		Completed:   summary.Completed,
		Conditions:  make([]ConditionStatus, len(summary.Counters)),
	}
	for i, c := range summary.Counters {
		status.Conditions[i] = ConditionStatus{
			Condition: c.ConditionID,
			Pending:   c.PendingCount,
			Completed: c.CompletedCount,
			Weight:    balancer.LoadWeight(c.CompletedCount, c.PendingCount, opts.Config.PendingWeight),
		}
	}
	if opts.Assignments {
		status.Rows, err = st.ListAssignments(ctx, session)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list assignments", err)
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(status, "")
	}
	return writeSessionStatus(cmd.OutOrStdout(), status)
}

func writeSessionStatus(w io.Writer, s SessionStatus) error {
	fmt.Fprintf(w, "Session %s: %d assignments (%d pending, %d completed)\n\n",
		s.Session, s.Assignments, s.Pending, s.Completed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONDITION\tPENDING\tCOMPLETED\tWEIGHT")
	for _, c := range s.Conditions {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\n", c.Condition, c.Pending, c.Completed, c.Weight)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Rows) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tCONDITION\tSTATUS\tASSIGNED\tCOMPLETED")
	for _, a := range s.Rows {
		completed := "-"
		if a.CompletedAt != nil {
			completed = a.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			a.ParticipantID, a.ConditionID, a.Status, a.AssignedAt.Format("2006-01-02 15:04:05"), completed)
	}
	return tw.Flush()
}
