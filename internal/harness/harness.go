package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/counterbalance/internal/balancer"
	"github.com/roach88/counterbalance/internal/store"
	"github.com/roach88/counterbalance/internal/testutil"
)

// Harness executes one scenario. It owns a private in-memory store.
type Harness struct {
	store    *store.Store
	balancer *balancer.Balancer
	clock    *testutil.StepClock
	logger   *slog.Logger
}

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes balancer and harness logs to l. Default: discard.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a step clock and
// sequential operation IDs. An error is returned only when the scenario
// could not be executed; failed expectations are reported in Result.
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := testutil.NewStepClock(testutil.DefaultEpoch, 0)
	st, err := store.Open(":memory:", store.Options{
		Conditions: scenario.Conditions,
		Clock:      clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	bopts := []balancer.Option{
		balancer.WithLogger(cfg.logger),
		balancer.WithIDGenerator(testutil.NewSequentialIDGenerator("op")),
	}
	if scenario.PendingWeight != nil {
		bopts = append(bopts, balancer.WithPendingWeight(*scenario.PendingWeight))
	}

	h := &Harness{
		store:    st,
		balancer: balancer.New(st, bopts...),
		clock:    clock,
		logger:   cfg.logger,
	}

	ctx := context.Background()
	result := NewResult()

	h.executeSteps(ctx, scenario.Steps, result)

	if err := h.captureState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSteps runs every step, recording outcomes and expectation
// mismatches. A failing step does not stop the scenario.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		var (
			condition int
			err       error
		)
		switch step.Op {
		case OpAssign:
			condition, err = h.balancer.Assign(ctx, step.Participant, step.Session)
		case OpConfirm:
			condition, err = h.balancer.Confirm(ctx, step.Participant, step.Session)
		}

		event := TraceEvent{
			Op:          step.Op,
			Participant: step.Participant,
			Session:     step.Session,
			Condition:   condition,
		}
		if err != nil {
			event.Error = errorKind(err)
		}
		result.AddTrace(event)

		h.logger.Debug("scenario step",
			"step", i,
			"op", step.Op,
			"participant", step.Participant,
			"session", step.Session,
			"condition", condition,
			"error", event.Error,
		)

		if msg := checkExpect(i, step, condition, err); msg != "" {
			result.AddError(msg)
		}
	}
}

// checkExpect compares a step's outcome with its expect clause. A step with
// no expect clause must succeed.
func checkExpect(index int, step Step, condition int, err error) string {
	e := step.Expect
	switch {
	case e == nil && err != nil:
		return fmt.Sprintf("steps[%d] %s(%s, %s): unexpected error: %v", index, step.Op, step.Participant, step.Session, err)
	case e == nil:
		return ""
	case e.Error != "" && err == nil:
		return fmt.Sprintf("steps[%d] %s(%s, %s): expected error %s, got condition %d", index, step.Op, step.Participant, step.Session, e.Error, condition)
	case e.Error != "" && errorKind(err) != e.Error:
		return fmt.Sprintf("steps[%d] %s(%s, %s): expected error %s, got %s: %v", index, step.Op, step.Participant, step.Session, e.Error, errorKind(err), err)
	case e.Error == "" && err != nil:
		return fmt.Sprintf("steps[%d] %s(%s, %s): expected condition %d, got error: %v", index, step.Op, step.Participant, step.Session, e.Condition, err)
	case e.Error == "" && condition != e.Condition:
		return fmt.Sprintf("steps[%d] %s(%s, %s): expected condition %d, got %d", index, step.Op, step.Participant, step.Session, e.Condition, condition)
	}
	return ""
}

// errorKind returns the balancer kind of err, or "error" for anything else.
func errorKind(err error) string {
	if k := balancer.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// captureState records the final summary and assignments of every session.
func (h *Harness) captureState(ctx context.Context, result *Result) error {
	sessions, err := h.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		summary, err := h.store.Summary(ctx, s)
		if err != nil {
			return err
		}
		result.Sessions = append(result.Sessions, summary)

		assignments, err := h.store.ListAssignments(ctx, s)
		if err != nil {
			return err
		}
		result.Assignments[s] = assignments
	}
	return nil
}
