package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/counterbalance/internal/balancer"
)

// OperationResult is the JSON payload of assign and confirm.
type OperationResult struct {
	Participant string `json:"participant"`
	Session     string `json:"session"`
	Condition   int    `json:"condition"`
	Completed   bool   `json:"completed,omitempty"`
}

// NewAssignCommand creates the assign command.
func NewAssignCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <participant> <session>",
		Short: "Assign a participant to a condition",
		Long: `Assign a participant to the least-loaded condition of a session.

A participant already assigned in the session gets the same condition back.

Example:
  counterbalance assign --db ./conditions.db 5f1a2b S1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(rootOpts, balancer.OpAssign, args[0], args[1], cmd)
		},
	}
}

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <participant> <session>",
		Short: "Mark a participant's assignment as completed",
		Long: `Mark a participant's pending assignment in a session as completed.

Exit codes:
  0 - Confirmed
  1 - No assignment, already completed, or store failure
  2 - Command error (bad configuration, database cannot be opened)

Example:
  counterbalance confirm --db ./conditions.db 5f1a2b S1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(rootOpts, balancer.OpConfirm, args[0], args[1], cmd)
		},
	}
}

func runOperation(opts *RootOptions, op balancer.Op, participant, session string, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	b := opts.newBalancer(st)
	out := opts.formatter(cmd)

	var condition int
	switch op {
	case balancer.OpAssign:
		condition, err = b.Assign(cmd.Context(), participant, session)
	case balancer.OpConfirm:
		condition, err = b.Confirm(cmd.Context(), participant, session)
	}
	if err != nil {
		if opts.Format == "json" {
			if werr := out.Error(string(balancer.KindOf(err)), err.Error(), map[string]string{
				"participant": participant,
				"session":     session,
			}); werr != nil {
				return werr
			}
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", op), err)
	}

	result := OperationResult{
		Participant: participant,
		Session:     session,
		Condition:   condition,
		Completed:   op == balancer.OpConfirm,
	}
	text := fmt.Sprintf("%s %s: condition %d", session, participant, condition)
	if result.Completed {
		text += " (completed)"
	}
	return out.Success(result, text)
}
