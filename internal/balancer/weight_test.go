package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/counterbalance/internal/store"
)

func counters(pairs ...[2]int) []store.ConditionCounter {
	out := make([]store.ConditionCounter, len(pairs))
	for i, p := range pairs {
		out[i] = store.ConditionCounter{
			SessionID:      "S",
			ConditionID:    i + 1,
			CompletedCount: p[0],
			PendingCount:   p[1],
		}
	}
	return out
}

func TestLoadWeight(t *testing.T) {
	assert.InDelta(t, 0.0, LoadWeight(0, 0, DefaultPendingWeight), 1e-9)
	assert.InDelta(t, 1.9, LoadWeight(0, 2, DefaultPendingWeight), 1e-9)
	assert.InDelta(t, 2.0, LoadWeight(2, 0, DefaultPendingWeight), 1e-9)
	assert.InDelta(t, 3.95, LoadWeight(3, 1, DefaultPendingWeight), 1e-9)
}

func TestChooseCondition(t *testing.T) {
	bp := basisPoints(DefaultPendingWeight)

	tests := []struct {
		name     string
		counters []store.ConditionCounter
		want     int
	}{
		{
			name:     "all zero picks smallest id",
			counters: counters([2]int{0, 0}, [2]int{0, 0}, [2]int{0, 0}),
			want:     1,
		},
		{
			name:     "weighted preference picks empty condition",
			counters: counters([2]int{2, 0}, [2]int{0, 2}, [2]int{0, 0}),
			want:     3,
		},
		{
			name:     "pending counts less than completed",
			counters: counters([2]int{1, 0}, [2]int{0, 1}),
			want:     2,
		},
		{
			name:     "tie broken by smallest id",
			counters: counters([2]int{1, 1}, [2]int{0, 1}, [2]int{0, 1}),
			want:     2,
		},
		{
			name:     "exact tie between completed and discounted pending",
			counters: counters([2]int{0, 20}, [2]int{19, 0}),
			want:     1,
		},
		{
			name:     "minimum in the middle",
			counters: counters([2]int{3, 0}, [2]int{1, 1}, [2]int{2, 2}),
			want:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chooseCondition(tt.counters, bp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChooseCondition_Empty(t *testing.T) {
	_, err := chooseCondition(nil, basisPoints(DefaultPendingWeight))
	assert.Error(t, err)
}

func TestChooseCondition_FullPendingWeight(t *testing.T) {
	// With weight 1.0 pending and completed are interchangeable.
	got, err := chooseCondition(counters([2]int{0, 1}, [2]int{1, 0}), basisPoints(1.0))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestBasisPoints(t *testing.T) {
	assert.Equal(t, int64(9500), basisPoints(0.95))
	assert.Equal(t, int64(10000), basisPoints(1))
	assert.Equal(t, int64(0), basisPoints(0))
}
