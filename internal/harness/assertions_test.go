package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/counterbalance/internal/store"
)

func TestRun_FailedAssertions(t *testing.T) {
	s := mustParse(t, `
name: failing-assertions
description: every assertion type fails once
conditions: 2
steps:
  - op: assign
    participant: p1
    session: S1
assertions:
  - type: counters
    session: S1
    counters:
      - {condition: 1, pending: 0, completed: 1}
  - type: assignment
    session: S1
    participant: p1
    status: completed
  - type: assignment
    session: S1
    participant: nobody
  - type: assignment_count
    session: S1
    count: 3
  - type: counters
    session: S9
    counters:
      - {condition: 1, pending: 0, completed: 0}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "condition 1: pending=1 completed=0, want pending=0 completed=1")
	assert.Contains(t, result.Errors[1], "participant p1 condition 1 pending")
	assert.Contains(t, result.Errors[2], "no assignment")
	assert.Contains(t, result.Errors[3], "Expected: 3 assignments")
	assert.Contains(t, result.Errors[4], "no counter row")

	// Every failure carries the trace.
	assert.Contains(t, result.Errors[0], "[1] assign(p1, S1) -> condition 1")
}

func TestAssertConsistent_ReportsDrift(t *testing.T) {
	st, err := store.Open(":memory:", store.Options{Conditions: 2})
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = st.DB().Exec(`INSERT INTO condition_counters (session_id, condition_id, pending_count, completed_count) VALUES ('S1', 1, 2, 0), ('S1', 2, 0, 0)`)
	require.NoError(t, err)

	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertConsistent, Session: "S1"}}, &AssertionContext{Store: st, Ctx: ctx})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "condition 1: counters pending=2 completed=0, rows pending=0 completed=0")
}

func TestEvaluateAssertions_NoStore(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertConsistent, Session: "S1"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}
