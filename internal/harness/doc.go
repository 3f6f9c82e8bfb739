// Package harness runs balancing scenarios against a fresh in-memory store.
//
// A scenario is a YAML file listing assign/confirm steps with the condition
// or error kind each step should produce, followed by assertions on the final
// counters and assignments:
//
//	name: two-conditions
//	description: second participant lands on the other condition
//	conditions: 2
//	steps:
//	  - op: assign
//	    participant: p1
//	    session: S1
//	    expect: {condition: 1}
//	  - op: confirm
//	    participant: ghost
//	    session: S1
//	    expect: {error: not_found}
//	assertions:
//	  - type: counters
//	    session: S1
//	    counters:
//	      - {condition: 1, pending: 1, completed: 0}
//	  - type: consistent
//	    session: S1
//
// Each run uses a step clock and sequential operation IDs, so the trace and
// final state are reproducible and can be compared against golden files.
package harness
