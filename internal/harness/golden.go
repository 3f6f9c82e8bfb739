package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/counterbalance/internal/store"
)

// TraceSnapshot captures a scenario execution for golden comparison.
type TraceSnapshot struct {
	ScenarioName string                        `json:"scenario_name"`
	Conditions   int                           `json:"conditions"`
	Trace        []TraceEvent                  `json:"trace"`
	Sessions     []store.SessionSummary        `json:"sessions"`
	Assignments  map[string][]store.Assignment `json:"assignments"`
}

// Snapshot builds the golden snapshot for a result.
func Snapshot(scenario *Scenario, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: scenario.Name,
		Conditions:   scenario.Conditions,
		Trace:        result.Trace,
		Sessions:     result.Sessions,
		Assignments:  result.Assignments,
	}
}

// MarshalSnapshot renders a snapshot as indented JSON. Map keys are sorted
// by encoding/json, so the output is stable.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	data, err := MarshalSnapshot(Snapshot(scenario, result))
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
