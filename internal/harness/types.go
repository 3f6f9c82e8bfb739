package harness

import "github.com/roach88/counterbalance/internal/store"

// TraceEvent records one executed step and its outcome.
type TraceEvent struct {
	Seq         int    `json:"seq"`
	Op          string `json:"op"`
	Participant string `json:"participant"`
	Session     string `json:"session"`
	Condition   int    `json:"condition,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Sessions is the final summary of every session the scenario touched,
	// ordered by session id.
	Sessions []store.SessionSummary `json:"sessions"`

	// Assignments holds the final assignment rows keyed by session id.
	Assignments map[string][]store.Assignment `json:"assignments"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		Sessions:    []store.SessionSummary{},
		Assignments: make(map[string][]store.Assignment),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	event.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, event)
}
