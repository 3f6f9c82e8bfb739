package store

import "time"

// Status is the lifecycle state of an assignment.
// The only legal transition is StatusPending -> StatusCompleted.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Assignment is the condition a participant received in a session.
type Assignment struct {
	ParticipantID string     `json:"participant_id"`
	SessionID     string     `json:"session_id"`
	ConditionID   int        `json:"condition_id"`
	Status        Status     `json:"status"`
	AssignedAt    time.Time  `json:"assigned_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ConditionCounter holds the per-session aggregates for one condition.
type ConditionCounter struct {
	SessionID      string `json:"session_id"`
	ConditionID    int    `json:"condition_id"`
	PendingCount   int    `json:"pending_count"`
	CompletedCount int    `json:"completed_count"`
}

// SessionSummary is a read-only snapshot of a session's balancing state.
type SessionSummary struct {
	SessionID   string             `json:"session_id"`
	Counters    []ConditionCounter `json:"counters"`
	Assignments int                `json:"assignments"`
	Pending     int                `json:"pending"`
	Completed   int                `json:"completed"`
}

// Discrepancy describes a counter that disagrees with the assignment rows.
type Discrepancy struct {
	SessionID        string `json:"session_id"`
	ConditionID      int    `json:"condition_id"`
	CounterPending   int    `json:"counter_pending"`
	ActualPending    int    `json:"actual_pending"`
	CounterCompleted int    `json:"counter_completed"`
	ActualCompleted  int    `json:"actual_completed"`
	// MissingCounter is set when assignments reference a condition that has
	// no counter row for the session.
	MissingCounter bool `json:"missing_counter,omitempty"`
}

// Clock supplies timestamps for assigned_at / completed_at.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
