package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTx_GetAssignment_Missing(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		a, err := tx.GetAssignment(ctx, "ghost", "S1")
		require.NoError(t, err)
		assert.Nil(t, a)
	})
}

func TestTx_InsertAndGetAssignment(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		require.NoError(t, tx.InsertAssignment(ctx, "p1", "S1", 2))
	})

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		a, err := tx.GetAssignment(ctx, "p1", "S1")
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, "p1", a.ParticipantID)
		assert.Equal(t, "S1", a.SessionID)
		assert.Equal(t, 2, a.ConditionID)
		assert.Equal(t, StatusPending, a.Status)
		assert.True(t, a.AssignedAt.Equal(testTime))
		assert.Nil(t, a.CompletedAt)
	})
}

func TestTx_InsertAssignment_Duplicate(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		require.NoError(t, tx.InsertAssignment(ctx, "p1", "S1", 1))
	})

	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.InsertAssignment(ctx, "p1", "S1", 2)
	require.Error(t, err)
	assert.True(t, IsConstraint(err), "duplicate key should be a constraint violation: %v", err)
}

func TestTx_InsertAssignment_SameParticipantOtherSession(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		require.NoError(t, tx.InsertAssignment(ctx, "p1", "S1", 1))
		require.NoError(t, tx.InsertAssignment(ctx, "p1", "S2", 3))
	})
}

func TestTx_InsertAssignment_ConditionOutOfRange(t *testing.T) {
	s := createTestStore(t, 3)

	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	for _, condition := range []int{0, 4, -1} {
		err := tx.InsertAssignment(ctx, "p1", "S1", condition)
		assert.True(t, IsConstraint(err), "condition %d: %v", condition, err)
	}
}

func TestTx_UpdateAssignmentStatus(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		require.NoError(t, tx.InsertAssignment(ctx, "p1", "S1", 1))
		require.NoError(t, tx.UpdateAssignmentStatus(ctx, "p1", "S1", StatusCompleted))

		a, err := tx.GetAssignment(ctx, "p1", "S1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, a.Status)
		require.NotNil(t, a.CompletedAt)
		assert.True(t, a.CompletedAt.Equal(testTime))
	})
}

func TestTx_UpdateAssignmentStatus_RejectsReverseTransition(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		require.NoError(t, tx.InsertAssignment(ctx, "p1", "S1", 1))
		require.NoError(t, tx.UpdateAssignmentStatus(ctx, "p1", "S1", StatusCompleted))

		err := tx.UpdateAssignmentStatus(ctx, "p1", "S1", StatusPending)
		assert.True(t, IsConstraint(err))

		// Completing twice matches no pending row.
		err = tx.UpdateAssignmentStatus(ctx, "p1", "S1", StatusCompleted)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTx_UpdateAssignmentStatus_Missing(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		err := tx.UpdateAssignmentStatus(ctx, "ghost", "S1", StatusCompleted)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTx_EnsureSessionInitialized(t *testing.T) {
	s := createTestStore(t, 4)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		created, err := tx.EnsureSessionInitialized(ctx, "S1")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = tx.EnsureSessionInitialized(ctx, "S1")
		require.NoError(t, err)
		assert.False(t, created, "second call must not insert again")

		counters, err := tx.ListCounters(ctx, "S1")
		require.NoError(t, err)
		require.Len(t, counters, 4)
		for i, c := range counters {
			assert.Equal(t, "S1", c.SessionID)
			assert.Equal(t, i+1, c.ConditionID, "counters ordered by condition_id")
			assert.Zero(t, c.PendingCount)
			assert.Zero(t, c.CompletedCount)
		}
	})
}

func TestTx_ListCounters_UnknownSession(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		counters, err := tx.ListCounters(ctx, "nope")
		require.NoError(t, err)
		assert.NotNil(t, counters)
		assert.Empty(t, counters)
	})
}

func TestTx_Increments(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		_, err := tx.EnsureSessionInitialized(ctx, "S1")
		require.NoError(t, err)

		require.NoError(t, tx.IncrementPending(ctx, "S1", 2, 1))
		require.NoError(t, tx.IncrementPending(ctx, "S1", 2, 1))
		require.NoError(t, tx.IncrementPending(ctx, "S1", 2, -1))
		require.NoError(t, tx.IncrementCompleted(ctx, "S1", 2, 1))

		counters, err := tx.ListCounters(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, ConditionCounter{SessionID: "S1", ConditionID: 2, PendingCount: 1, CompletedCount: 1}, counters[1])
	})
}

func TestTx_Increment_InvalidDelta(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		_, err := tx.EnsureSessionInitialized(ctx, "S1")
		require.NoError(t, err)

		assert.True(t, IsConstraint(tx.IncrementPending(ctx, "S1", 1, 2)))
		assert.True(t, IsConstraint(tx.IncrementCompleted(ctx, "S1", 1, 0)))
	})
}

func TestTx_Increment_BelowZero(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		_, err := tx.EnsureSessionInitialized(ctx, "S1")
		require.NoError(t, err)

		err = tx.IncrementPending(ctx, "S1", 1, -1)
		assert.True(t, IsConstraint(err), "pending_count must not go negative: %v", err)
	})
}

func TestTx_Increment_MissingCounter(t *testing.T) {
	s := createTestStore(t, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		err := tx.IncrementPending(ctx, "uninitialized", 1, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	s := createTestStore(t, 3)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.EnsureSessionInitialized(ctx, "S1")
	require.NoError(t, err)
	require.NoError(t, tx.InsertAssignment(ctx, "p1", "S1", 1))
	require.NoError(t, tx.Rollback())

	// Rolling back twice is a no-op.
	require.NoError(t, tx.Rollback())

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assignments, err := s.ListAssignments(ctx, "S1")
	require.NoError(t, err)
	assert.Empty(t, assignments)
}
