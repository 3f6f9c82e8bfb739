// Package store provides SQLite-backed durable storage for condition balancing.
//
// The store owns two tables, both scoped by session:
//   - assignments: one row per (participant_id, session_id), holding the
//     condition a participant was given and whether it is pending or completed
//   - condition_counters: one row per (session_id, condition_id) with the
//     pending_count and completed_count aggregates used by the balancer
//
// # Invariants Enforced at the Storage Boundary
//
//   - PRIMARY KEY(participant_id, session_id): a participant gets one condition per session
//   - CHECK(condition_id BETWEEN 1 AND N): N is rendered into the schema at creation
//   - CHECK(status IN ('pending', 'completed'))
//   - CHECK(pending_count >= 0), CHECK(completed_count >= 0)
//
// N is recorded in store_meta when the database is created. Reopening the
// database with a different condition count fails with ErrConditionMismatch,
// since rows created under the old count would no longer line up with the
// balancing query.
//
// # Transactions
//
// All balancer mutations go through Tx, obtained from Store.Begin. Errors
// returned by Tx methods are classified: ErrBusy marks transient lock
// contention (SQLITE_BUSY / SQLITE_LOCKED) and is safe to retry from the
// start of a new transaction, ErrConstraint marks a schema constraint breach,
// ErrNotFound marks an update that matched no row.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: configurable, 5 seconds by default
//   - _txlock=immediate: write lock is taken at BEGIN, so contention surfaces
//     before any read-modify-write work is done
package store
