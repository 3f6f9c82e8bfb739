// Package balancer assigns participants to experimental conditions and
// records when they complete them.
//
// # Operations
//
//   - Assign(participant, session): returns the participant's existing
//     condition, or picks the least-loaded condition for the session and
//     records a pending assignment
//   - Confirm(participant, session): moves a pending assignment to completed
//     and moves one unit of load from pending_count to completed_count
//
// # Load Weight
//
// The least-loaded condition is the one with the smallest
//
//	completed_count + PendingWeight * pending_count
//
// with ties broken by the smallest condition id. PendingWeight defaults to
// 0.95: a pending participant may still abandon, so it counts for slightly
// less than a completed one. Weights are compared in integer basis points so
// ties are exact.
//
// # Concurrency
//
// Every operation runs the same critical section:
//
//	acquire lock -> begin tx -> read/decide/write -> commit -> release lock
//
// The lock is owned by the Balancer and serializes all operations across all
// sessions, so no two operations compute weights from the same snapshot and
// EnsureSessionInitialized never runs twice for a session. The transaction
// makes each attempt atomic. Waiting for the lock honours the caller's
// context; once inside, the attempt runs on a context detached from caller
// cancellation and always ends in commit or rollback.
//
// # Retries
//
// A StoreBusy failure at any step of an attempt rolls back and retries the
// whole attempt, up to RetryPolicy.MaxAttempts with a fixed backoff between
// attempts. All other failures are terminal.
package balancer
