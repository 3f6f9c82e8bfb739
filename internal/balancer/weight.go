package balancer

import (
	"fmt"
	"math"

	"github.com/roach88/counterbalance/internal/store"
)

// DefaultPendingWeight is how much one pending assignment counts relative to
// one completed assignment when picking the least-loaded condition.
const DefaultPendingWeight = 0.95

// weightScale converts weights to integer basis points.
const weightScale = 10000

// LoadWeight returns completed + pendingWeight*pending.
func LoadWeight(completed, pending int, pendingWeight float64) float64 {
	return float64(completed) + pendingWeight*float64(pending)
}

// basisPoints converts a pending weight to an integer multiplier.
func basisPoints(pendingWeight float64) int64 {
	return int64(math.Round(pendingWeight * weightScale))
}

// scaledWeight is LoadWeight in basis points.
func scaledWeight(c store.ConditionCounter, pendingBP int64) int64 {
	return int64(c.CompletedCount)*weightScale + int64(c.PendingCount)*pendingBP
}

// chooseCondition returns the condition with the minimum weight. counters
// must be ordered by ascending condition id; the first minimum wins, which
// breaks ties toward the smallest id.
func chooseCondition(counters []store.ConditionCounter, pendingBP int64) (int, error) {
	if len(counters) == 0 {
		return 0, fmt.Errorf("no condition counters")
	}

	best := counters[0]
	bestWeight := scaledWeight(best, pendingBP)
	for _, c := range counters[1:] {
		if w := scaledWeight(c, pendingBP); w < bestWeight {
			best, bestWeight = c, w
		}
	}
	return best.ConditionID, nil
}
