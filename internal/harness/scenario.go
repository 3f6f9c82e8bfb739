package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/counterbalance/internal/balancer"
)

// Scenario is a sequence of balancer operations with expected outcomes.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Conditions is the condition count N for the scenario's store.
	Conditions int `yaml:"conditions"`

	// PendingWeight overrides balancer.DefaultPendingWeight when set.
	PendingWeight *float64 `yaml:"pending_weight,omitempty"`

	// Steps run in order, each in its own balancer call.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the final store state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one assign or confirm call.
type Step struct {
	Op          string  `yaml:"op"`
	Participant string  `yaml:"participant"`
	Session     string  `yaml:"session"`
	Expect      *Expect `yaml:"expect,omitempty"`
}

// Expect is the outcome a step must produce. Exactly one of Condition or
// Error is set.
type Expect struct {
	Condition int    `yaml:"condition,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

// Assertion validates the final state of one session.
type Assertion struct {
	// Type selects the check:
	// - "counters": per-condition pending/completed counts
	// - "assignment": status and condition of one participant
	// - "assignment_count": number of assignment rows in the session
	// - "consistent": counters agree with the assignment rows
	Type string `yaml:"type"`

	Session string `yaml:"session"`

	// Counters lists expected counts (counters). Conditions not listed are
	// not checked.
	Counters []CounterExpect `yaml:"counters,omitempty"`

	// Participant, Condition, Status describe one assignment (assignment).
	Participant string `yaml:"participant,omitempty"`
	Condition   int    `yaml:"condition,omitempty"`
	Status      string `yaml:"status,omitempty"`

	// Count is the expected row count (assignment_count).
	Count *int `yaml:"count,omitempty"`
}

// CounterExpect is one condition's expected counters.
type CounterExpect struct {
	Condition int `yaml:"condition"`
	Pending   int `yaml:"pending"`
	Completed int `yaml:"completed"`
}

// Step op constants.
const (
	OpAssign  = "assign"
	OpConfirm = "confirm"
)

// Assertion type constants.
const (
	AssertCounters        = "counters"
	AssertAssignment      = "assignment"
	AssertAssignmentCount = "assignment_count"
	AssertConsistent      = "consistent"
)

var knownKinds = map[string]bool{
	string(balancer.KindNotFound):            true,
	string(balancer.KindAlreadyCompleted):    true,
	string(balancer.KindStoreBusy):           true,
	string(balancer.KindConstraintViolation): true,
	string(balancer.KindStoreError):          true,
	string(balancer.KindInvalidIdentifier):   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Conditions < 1 {
		return fmt.Errorf("conditions must be >= 1, got %d", s.Conditions)
	}
	if s.PendingWeight != nil && (*s.PendingWeight < 0 || *s.PendingWeight > 1) {
		return fmt.Errorf("pending_weight must be in [0, 1], got %g", *s.PendingWeight)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Op != OpAssign && step.Op != OpConfirm {
			return fmt.Errorf("steps[%d]: op must be %q or %q, got %q", i, OpAssign, OpConfirm, step.Op)
		}
		if e := step.Expect; e != nil {
			if (e.Condition == 0) == (e.Error == "") {
				return fmt.Errorf("steps[%d].expect: exactly one of condition or error is required", i)
			}
			if e.Condition < 0 || e.Condition > s.Conditions {
				return fmt.Errorf("steps[%d].expect: condition %d outside [1, %d]", i, e.Condition, s.Conditions)
			}
			if e.Error != "" && !knownKinds[e.Error] {
				return fmt.Errorf("steps[%d].expect: unknown error kind %q", i, e.Error)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Session == "" {
		return fmt.Errorf("assertions[%d]: session is required", index)
	}

	switch a.Type {
	case AssertCounters:
		if len(a.Counters) == 0 {
			return fmt.Errorf("assertions[%d]: counters list is required for counters", index)
		}
	case AssertAssignment:
		if a.Participant == "" {
			return fmt.Errorf("assertions[%d]: participant is required for assignment", index)
		}
		if a.Status != "" && a.Status != "pending" && a.Status != "completed" {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertAssignmentCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for assignment_count", index)
		}
	case AssertConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
