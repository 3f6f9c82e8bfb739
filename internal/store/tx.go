package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Tx is one balancing transaction. Every method runs inside the same SQLite
// transaction; nothing is visible to other connections until Commit.
//
// A Tx is not safe for concurrent use.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

// Commit commits the transaction. Contention at commit is reported as ErrBusy.
func (t *Tx) Commit() error {
	return classify("commit", t.tx.Commit())
}

// Rollback aborts the transaction. Rolling back an already finished
// transaction is a no-op, so it is safe to defer.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return classify("rollback", err)
}

// GetAssignment returns the assignment for (participant, session), or nil if
// the participant has not been assigned in that session.
func (t *Tx) GetAssignment(ctx context.Context, participant, session string) (*Assignment, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT participant_id, session_id, condition_id, status, assigned_at, completed_at
		FROM assignments
		WHERE participant_id = ? AND session_id = ?
	`, participant, session)

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get assignment", err)
	}
	return &a, nil
}

// InsertAssignment records a new pending assignment.
//
// Fails with ErrConstraint if (participant, session) already exists or the
// condition is outside [1, N].
func (t *Tx) InsertAssignment(ctx context.Context, participant, session string, condition int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO assignments
		(participant_id, session_id, condition_id, status, assigned_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		participant,
		session,
		condition,
		string(StatusPending),
		formatTime(t.store.clock.Now()),
	)
	return classify("insert assignment", err)
}

// UpdateAssignmentStatus moves an assignment to newStatus.
//
// Only pending -> completed is accepted. Any other target status fails with
// ErrConstraint; an assignment that is missing or no longer pending fails
// with ErrNotFound.
func (t *Tx) UpdateAssignmentStatus(ctx context.Context, participant, session string, newStatus Status) error {
	if newStatus != StatusCompleted {
		return fmt.Errorf("update assignment status: %w: cannot transition to %q", ErrConstraint, newStatus)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE assignments
		SET status = ?, completed_at = ?
		WHERE participant_id = ? AND session_id = ? AND status = ?
	`,
		string(newStatus),
		formatTime(t.store.clock.Now()),
		participant,
		session,
		string(StatusPending),
	)
	if err != nil {
		return classify("update assignment status", err)
	}
	return requireOneRow("update assignment status", result)
}

// EnsureSessionInitialized creates all N counter rows for session, each at
// zero, if the session has none yet. Reports whether rows were created.
//
// Callers must serialize calls for the same session; the balancer does so
// with its lock.
func (t *Tx) EnsureSessionInitialized(ctx context.Context, session string) (bool, error) {
	var exists int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM condition_counters WHERE session_id = ?
	`, session).Scan(&exists)
	if err != nil {
		return false, classify("check session", err)
	}
	if exists > 0 {
		return false, nil
	}

	n := t.store.conditions
	placeholders := make([]string, n)
	args := make([]any, 0, 2*n)
	for i := 0; i < n; i++ {
		placeholders[i] = "(?, ?, 0, 0)"
		args = append(args, session, i+1)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO condition_counters
		(session_id, condition_id, pending_count, completed_count)
		VALUES `+strings.Join(placeholders, ", "), args...)
	if err != nil {
		return false, classify("initialize session", err)
	}
	return true, nil
}

// ListCounters returns the session's counters ordered by condition_id.
// Returns an empty slice (not nil) for an uninitialized session.
func (t *Tx) ListCounters(ctx context.Context, session string) ([]ConditionCounter, error) {
	counters, err := queryCounters(ctx, t.tx, session)
	if err != nil {
		return nil, classify("list counters", err)
	}
	return counters, nil
}

// IncrementPending adds delta (-1 or +1) to a condition's pending_count.
func (t *Tx) IncrementPending(ctx context.Context, session string, condition, delta int) error {
	return t.increment(ctx, "pending_count", session, condition, delta)
}

// IncrementCompleted adds delta (-1 or +1) to a condition's completed_count.
func (t *Tx) IncrementCompleted(ctx context.Context, session string, condition, delta int) error {
	return t.increment(ctx, "completed_count", session, condition, delta)
}

// increment applies delta to column. column is always one of the two
// counter columns chosen above, never caller input.
func (t *Tx) increment(ctx context.Context, column, session string, condition, delta int) error {
	op := "increment " + column
	if delta != 1 && delta != -1 {
		return fmt.Errorf("%s: %w: delta %d", op, ErrConstraint, delta)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE condition_counters
		SET `+column+` = `+column+` + ?
		WHERE session_id = ? AND condition_id = ?
	`, delta, session, condition)
	if err != nil {
		return classify(op, err)
	}
	return requireOneRow(op, result)
}

func requireOneRow(op string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryCounters(ctx context.Context, q queryer, session string) ([]ConditionCounter, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT session_id, condition_id, pending_count, completed_count
		FROM condition_counters
		WHERE session_id = ?
		ORDER BY condition_id ASC
	`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counters := []ConditionCounter{}
	for rows.Next() {
		var c ConditionCounter
		if err := rows.Scan(&c.SessionID, &c.ConditionID, &c.PendingCount, &c.CompletedCount); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}
	return counters, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (Assignment, error) {
	var (
		a           Assignment
		status      string
		assignedAt  string
		completedAt sql.NullString
	)
	if err := row.Scan(&a.ParticipantID, &a.SessionID, &a.ConditionID, &status, &assignedAt, &completedAt); err != nil {
		return Assignment{}, err
	}
	a.Status = Status(status)

	ts, err := parseTime(assignedAt)
	if err != nil {
		return Assignment{}, fmt.Errorf("parse assigned_at: %w", err)
	}
	a.AssignedAt = ts

	if completedAt.Valid {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return Assignment{}, fmt.Errorf("parse completed_at: %w", err)
		}
		a.CompletedAt = &ts
	}
	return a, nil
}
