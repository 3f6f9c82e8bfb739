package store

import (
	"context"
	"fmt"
)

// ListSessions returns every session that has counter rows, sorted by id.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT session_id
		FROM condition_counters
		ORDER BY session_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Counters returns the session's counters ordered by condition_id, outside
// of any balancing transaction.
func (s *Store) Counters(ctx context.Context, session string) ([]ConditionCounter, error) {
	counters, err := queryCounters(ctx, s.db, session)
	if err != nil {
		return nil, fmt.Errorf("query counters: %w", err)
	}
	return counters, nil
}

// ListAssignments returns the session's assignments ordered by assignment
// time, then participant id.
func (s *Store) ListAssignments(ctx context.Context, session string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, session_id, condition_id, status, assigned_at, completed_at
		FROM assignments
		WHERE session_id = ?
		ORDER BY assigned_at ASC, participant_id COLLATE BINARY ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	assignments := []Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return assignments, nil
}

// Summary returns the session's counters together with assignment totals.
// An unknown session yields a summary with no counters and zero totals.
func (s *Store) Summary(ctx context.Context, session string) (SessionSummary, error) {
	counters, err := s.Counters(ctx, session)
	if err != nil {
		return SessionSummary{}, err
	}

	summary := SessionSummary{SessionID: session, Counters: counters}
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM assignments
		WHERE session_id = ?
	`, session).Scan(&summary.Assignments, &summary.Pending, &summary.Completed)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("query assignment totals: %w", err)
	}
	return summary, nil
}

// Audit compares the session's counters with its assignment rows and returns
// every condition where they disagree. An empty result means the counters
// are consistent.
func (s *Store) Audit(ctx context.Context, session string) ([]Discrepancy, error) {
	counters, err := s.Counters(ctx, session)
	if err != nil {
		return nil, err
	}

	type tally struct{ pending, completed int }
	actual := make(map[int]*tally)

	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, status, COUNT(*)
		FROM assignments
		WHERE session_id = ?
		GROUP BY condition_id, status
		ORDER BY condition_id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query assignment tallies: %w", err)
	}
	defer rows.Close()

	var conditions []int
	for rows.Next() {
		var (
			condition, n int
			status       string
		)
		if err := rows.Scan(&condition, &status, &n); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tl, ok := actual[condition]
		if !ok {
			tl = &tally{}
			actual[condition] = tl
			conditions = append(conditions, condition)
		}
		switch Status(status) {
		case StatusPending:
			tl.pending += n
		case StatusCompleted:
			tl.completed += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tallies: %w", err)
	}

	discrepancies := []Discrepancy{}
	seen := make(map[int]bool, len(counters))
	for _, c := range counters {
		seen[c.ConditionID] = true
		tl := actual[c.ConditionID]
		if tl == nil {
			tl = &tally{}
		}
		if tl.pending != c.PendingCount || tl.completed != c.CompletedCount {
			discrepancies = append(discrepancies, Discrepancy{
				SessionID:        session,
				ConditionID:      c.ConditionID,
				CounterPending:   c.PendingCount,
				ActualPending:    tl.pending,
				CounterCompleted: c.CompletedCount,
				ActualCompleted:  tl.completed,
			})
		}
	}
	for _, condition := range conditions {
		if seen[condition] {
			continue
		}
		tl := actual[condition]
		discrepancies = append(discrepancies, Discrepancy{
			SessionID:       session,
			ConditionID:     condition,
			ActualPending:   tl.pending,
			ActualCompleted: tl.completed,
			MissingCounter:  true,
		})
	}
	return discrepancies, nil
}
