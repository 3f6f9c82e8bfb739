package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/counterbalance/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Session  string       // Session the assertion inspected
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (session %s)\n", e.Type, e.Session)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		outcome := fmt.Sprintf("condition %d", event.Condition)
		if event.Error != "" {
			outcome = event.Error
		}
		fmt.Fprintf(&buf, "  [%d] %s(%s, %s) -> %s\n", event.Seq, event.Op, event.Participant, event.Session, outcome)
	}

	return buf.String()
}

// AssertionContext provides database access for state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the final store state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertCounters:
				err = assertCounters(actx, result.Trace, assertion)
			case AssertAssignment:
				err = assertAssignment(actx, result.Trace, assertion)
			case AssertAssignmentCount:
				err = assertAssignmentCount(actx, result.Trace, assertion)
			case AssertConsistent:
				err = assertConsistent(actx, result.Trace, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertCounters checks the listed conditions' pending and completed counts.
func assertCounters(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	counters, err := actx.Store.Counters(actx.Ctx, a.Session)
	if err != nil {
		return fmt.Errorf("counters: %w", err)
	}

	byCondition := make(map[int]store.ConditionCounter, len(counters))
	for _, c := range counters {
		byCondition[c.ConditionID] = c
	}

	var mismatches []string
	for _, want := range a.Counters {
		got, ok := byCondition[want.Condition]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("condition %d: no counter row", want.Condition))
			continue
		}
		if got.PendingCount != want.Pending || got.CompletedCount != want.Completed {
			mismatches = append(mismatches, fmt.Sprintf("condition %d: pending=%d completed=%d, want pending=%d completed=%d",
				want.Condition, got.PendingCount, got.CompletedCount, want.Pending, want.Completed))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}

	return &AssertionError{
		Type:     AssertCounters,
		Session:  a.Session,
		Expected: formatCounterExpects(a.Counters),
		Actual:   strings.Join(mismatches, "; "),
		Trace:    trace,
	}
}

// assertAssignment checks one participant's assignment. Zero Condition and
// empty Status are not checked.
func assertAssignment(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	assignments, err := actx.Store.ListAssignments(actx.Ctx, a.Session)
	if err != nil {
		return fmt.Errorf("assignment: %w", err)
	}

	expected := fmt.Sprintf("participant %s", a.Participant)
	if a.Condition != 0 {
		expected += fmt.Sprintf(" condition %d", a.Condition)
	}
	if a.Status != "" {
		expected += " " + a.Status
	}

	for _, got := range assignments {
		if got.ParticipantID != a.Participant {
			continue
		}
		if (a.Condition == 0 || got.ConditionID == a.Condition) && (a.Status == "" || string(got.Status) == a.Status) {
			return nil
		}
		return &AssertionError{
			Type:     AssertAssignment,
			Session:  a.Session,
			Expected: expected,
			Actual:   fmt.Sprintf("participant %s condition %d %s", got.ParticipantID, got.ConditionID, got.Status),
			Trace:    trace,
		}
	}

	return &AssertionError{
		Type:     AssertAssignment,
		Session:  a.Session,
		Expected: expected,
		Actual:   "no assignment",
		Trace:    trace,
	}
}

// assertAssignmentCount checks the number of assignment rows in a session.
func assertAssignmentCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	summary, err := actx.Store.Summary(actx.Ctx, a.Session)
	if err != nil {
		return fmt.Errorf("assignment_count: %w", err)
	}
	if summary.Assignments == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertAssignmentCount,
		Session:  a.Session,
		Expected: fmt.Sprintf("%d assignments", *a.Count),
		Actual:   fmt.Sprintf("%d assignments", summary.Assignments),
		Trace:    trace,
	}
}

// assertConsistent checks that every counter matches the assignment rows.
func assertConsistent(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	discrepancies, err := actx.Store.Audit(actx.Ctx, a.Session)
	if err != nil {
		return fmt.Errorf("consistent: %w", err)
	}
	if len(discrepancies) == 0 {
		return nil
	}

	parts := make([]string, len(discrepancies))
	for i, d := range discrepancies {
		parts[i] = fmt.Sprintf("condition %d: counters pending=%d completed=%d, rows pending=%d completed=%d",
			d.ConditionID, d.CounterPending, d.CounterCompleted, d.ActualPending, d.ActualCompleted)
	}
	return &AssertionError{
		Type:     AssertConsistent,
		Session:  a.Session,
		Expected: "counters match assignment rows",
		Actual:   strings.Join(parts, "; "),
		Trace:    trace,
	}
}

func formatCounterExpects(counters []CounterExpect) string {
	parts := make([]string, len(counters))
	for i, c := range counters {
		parts[i] = fmt.Sprintf("condition %d pending=%d completed=%d", c.Condition, c.Pending, c.Completed)
	}
	return strings.Join(parts, "; ")
}
