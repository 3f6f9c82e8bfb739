package balancer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign_ConcurrentDistinctParticipants(t *testing.T) {
	const n = 8
	env := newTestEnv(t, n, 0)

	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = env.b.Assign(context.Background(), fmt.Sprintf("p%d", idx), "fresh")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "participant %d", i)
	}

	// Every participant got a unique condition in [1, n].
	sort.Ints(results)
	expected := make([]int, n)
	for i := range expected {
		expected[i] = i + 1
	}
	assert.Equal(t, expected, results)

	for _, c := range env.counters(t, "fresh") {
		assert.Equal(t, 1, c.PendingCount, "condition %d", c.ConditionID)
		assert.Equal(t, 0, c.CompletedCount)
	}
	env.assertConsistent(t, "fresh")
}

func TestAssign_ConcurrentManyParticipantsNoLostUpdates(t *testing.T) {
	const (
		conditions   = 12
		participants = 60
	)
	env := newTestEnv(t, conditions, 0)

	var wg sync.WaitGroup
	errCh := make(chan error, participants)
	for i := 0; i < participants; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if _, err := env.b.Assign(context.Background(), fmt.Sprintf("p%02d", idx), "S1"); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	// All pending, so the weight rule spreads them evenly.
	for _, c := range env.counters(t, "S1") {
		assert.Equal(t, participants/conditions, c.PendingCount, "condition %d", c.ConditionID)
	}
	env.assertConsistent(t, "S1")
}

func TestAssign_ConcurrentSameParticipant(t *testing.T) {
	env := newTestEnv(t, 5, 0)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c, err := env.b.Assign(context.Background(), "same", "S1")
			assert.NoError(t, err)
			results[idx] = c
		}(i)
	}
	wg.Wait()

	for _, c := range results {
		assert.Equal(t, 1, c)
	}

	assignments, err := env.store.ListAssignments(context.Background(), "S1")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
	assert.Equal(t, []int{1, 0, 0, 0, 0}, pendingCounts(env.counters(t, "S1")))
}

func TestConcurrentAssignAndConfirm_AcrossSessions(t *testing.T) {
	env := newTestEnv(t, 4, 0)
	sessions := []string{"A", "B", "C"}

	var wg sync.WaitGroup
	for _, s := range sessions {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(session string, idx int) {
				defer wg.Done()
				ctx := context.Background()
				p := fmt.Sprintf("p%d", idx)
				_, err := env.b.Assign(ctx, p, session)
				assert.NoError(t, err)
				if idx%3 == 0 {
					_, err = env.b.Confirm(ctx, p, session)
					assert.NoError(t, err)
				}
			}(s, i)
		}
	}
	wg.Wait()

	for _, s := range sessions {
		env.assertConsistent(t, s)

		summary, err := env.store.Summary(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 10, summary.Assignments, "session %s", s)
		assert.Equal(t, 4, summary.Completed, "session %s", s)
	}
}

func TestConfirm_ConcurrentDoubleConfirm(t *testing.T) {
	env := newTestEnv(t, 3, 0)
	ctx := context.Background()

	_, err := env.b.Assign(ctx, "p1", "S1")
	require.NoError(t, err)

	const callers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.b.Confirm(ctx, "p1", "S1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case IsAlreadyCompleted(err):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one confirm wins")
	assert.Equal(t, callers-1, rejected)
	assert.Equal(t, 1, env.counters(t, "S1")[0].CompletedCount)
	env.assertConsistent(t, "S1")
}
