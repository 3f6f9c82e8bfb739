package balancer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/counterbalance/internal/ident"
	"github.com/roach88/counterbalance/internal/store"
)

const tracerName = "github.com/roach88/counterbalance/internal/balancer"

// Balancer assigns participants to conditions and confirms completions.
//
// Thread-safety: Assign and Confirm are safe for concurrent use; they are
// serialized internally by the Balancer's lock.
type Balancer struct {
	store         *store.Store
	lock          lock
	pendingWeight float64
	pendingBP     int64
	retry         RetryPolicy
	logger        *slog.Logger
	tracer        trace.Tracer
	ids           IDGenerator
}

// Option configures a Balancer.
type Option func(*Balancer)

// WithPendingWeight sets the weight of a pending assignment relative to a
// completed one. Default: DefaultPendingWeight (0.95).
func WithPendingWeight(w float64) Option {
	return func(b *Balancer) {
		b.pendingWeight = w
	}
}

// WithRetryPolicy sets the retry bound and backoff for store contention.
// Default: DefaultRetryPolicy().
func WithRetryPolicy(p RetryPolicy) Option {
	return func(b *Balancer) {
		b.retry = p
	}
}

// WithLogger sets the logger. Default: a logger that discards output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Balancer) {
		b.logger = l
	}
}

// WithTracer sets the tracer used for operation spans.
// Default: the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(b *Balancer) {
		b.tracer = t
	}
}

// WithIDGenerator sets the operation correlation ID source.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Balancer) {
		b.ids = g
	}
}

// New creates a Balancer over s. The condition count N is taken from the
// store so schema constraints and the balancing query always agree.
func New(s *store.Store, opts ...Option) *Balancer {
	b := &Balancer{
		store:         s,
		lock:          newLock(),
		pendingWeight: DefaultPendingWeight,
		retry:         DefaultRetryPolicy(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:           UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}
	b.pendingBP = basisPoints(b.pendingWeight)
	return b
}

// Conditions returns the number of conditions N.
func (b *Balancer) Conditions() int {
	return b.store.Conditions()
}

// PendingWeight returns the configured pending-assignment weight.
func (b *Balancer) PendingWeight() float64 {
	return b.pendingWeight
}

// Assign returns the condition for participant in session.
//
// A participant already assigned in the session gets the same condition
// back and no counter changes. Otherwise the session's counters are created
// on first use, the least-loaded condition is chosen, and a pending
// assignment is recorded.
//
// Errors are *Error with Op == OpAssign.
func (b *Balancer) Assign(ctx context.Context, participant, session string) (int, error) {
	var reused, initialized bool

	condition, logger, err := b.run(ctx, OpAssign, participant, session, func(ctx context.Context, tx *store.Tx, p, s string) (int, error) {
		reused, initialized = false, false

		existing, err := tx.GetAssignment(ctx, p, s)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			reused = true
			return existing.ConditionID, nil
		}

		initialized, err = tx.EnsureSessionInitialized(ctx, s)
		if err != nil {
			return 0, err
		}

		counters, err := tx.ListCounters(ctx, s)
		if err != nil {
			return 0, err
		}
		condition, err := chooseCondition(counters, b.pendingBP)
		if err != nil {
			return 0, fmt.Errorf("session %s: %w", s, err)
		}

		if err := tx.InsertAssignment(ctx, p, s, condition); err != nil {
			return condition, err
		}
		if err := tx.IncrementPending(ctx, s, condition, 1); err != nil {
			return condition, err
		}
		return condition, nil
	})
	if err != nil {
		return 0, err
	}

	if initialized {
		logger.Info("initialized session", "conditions", b.store.Conditions())
	}
	logger.Info("participant assigned", "condition", condition, "reused", reused)
	return condition, nil
}

// Confirm marks participant's assignment in session as completed and returns
// its condition.
//
// Fails with KindNotFound if there is no assignment and KindAlreadyCompleted
// if it was already confirmed; in both cases no counter changes.
//
// Errors are *Error with Op == OpConfirm.
func (b *Balancer) Confirm(ctx context.Context, participant, session string) (int, error) {
	condition, logger, err := b.run(ctx, OpConfirm, participant, session, func(ctx context.Context, tx *store.Tx, p, s string) (int, error) {
		a, err := tx.GetAssignment(ctx, p, s)
		if err != nil {
			return 0, err
		}
		if a == nil {
			return 0, ErrNotFound
		}
		if a.Status == store.StatusCompleted {
			return a.ConditionID, ErrAlreadyCompleted
		}

		if err := tx.UpdateAssignmentStatus(ctx, p, s, store.StatusCompleted); err != nil {
			return a.ConditionID, err
		}
		if err := tx.IncrementPending(ctx, s, a.ConditionID, -1); err != nil {
			return a.ConditionID, err
		}
		if err := tx.IncrementCompleted(ctx, s, a.ConditionID, 1); err != nil {
			return a.ConditionID, err
		}
		return a.ConditionID, nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("participant completed", "condition", condition)
	return condition, nil
}

// txFunc is the body of one transaction attempt. It receives normalized
// identifiers and returns the condition it worked on (also on failure, when
// known, for error context).
type txFunc func(ctx context.Context, tx *store.Tx, participant, session string) (int, error)

// run is the critical section shared by Assign and Confirm:
// acquire lock -> (begin -> fn -> commit, retried on busy) -> release lock.
// On success it also returns a logger scoped to the operation.
func (b *Balancer) run(ctx context.Context, op Op, participant, session string, fn txFunc) (int, *slog.Logger, error) {
	opID := b.ids.Generate()
	ctx, span := b.tracer.Start(ctx, "balancer."+string(op), trace.WithAttributes(
		attribute.String("op_id", opID),
		attribute.String("participant", participant),
		attribute.String("session", session),
	))
	defer span.End()

	p, s, err := ident.Pair(participant, session)
	if err != nil {
		return 0, nil, b.fail(span, &Error{
			Kind:        KindInvalidIdentifier,
			Op:          op,
			Participant: participant,
			Session:     session,
			Err:         err,
		}, opID)
	}

	if err := b.lock.acquire(ctx); err != nil {
		span.SetStatus(codes.Error, "lock wait abandoned")
		return 0, nil, fmt.Errorf("%s (participant=%s, session=%s): waiting for lock: %w", op, p, s, err)
	}
	defer b.lock.release()

	// The attempt must finish (commit or rollback) even if the caller goes away.
	work := context.WithoutCancel(ctx)
	logger := b.logger.With("op", string(op), "op_id", opID, "participant", p, "session", s)

	var condition int
	attempts, err := retry(work, b.retry, store.IsBusy,
		func(attempt int, err error) {
			logger.Warn("store busy, retrying", "attempt", attempt, "backoff", b.retry.Backoff, "error", err)
			span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		},
		func(int) error {
			c, err := b.attempt(work, p, s, fn)
			condition = c
			return err
		},
	)
	span.SetAttributes(attribute.Int("attempts", attempts))

	if err != nil {
		return 0, nil, b.fail(span, &Error{
			Kind:        classify(err),
			Op:          op,
			Participant: p,
			Session:     s,
			Condition:   condition,
			Attempts:    attempts,
			Err:         err,
		}, opID)
	}

	span.SetAttributes(attribute.Int("condition", condition))
	return condition, logger, nil
}

// attempt runs fn inside one transaction. Any failure rolls back.
func (b *Balancer) attempt(ctx context.Context, participant, session string, fn txFunc) (int, error) {
	tx, err := b.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // No-op if committed

	condition, err := fn(ctx, tx, participant, session)
	if err != nil {
		return condition, err
	}
	if err := tx.Commit(); err != nil {
		return condition, err
	}
	return condition, nil
}

// fail records err on the span and logs it. Client errors log at Info,
// everything else at Error with full context.
func (b *Balancer) fail(span trace.Span, err *Error, opID string) *Error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))

	attrs := []any{
		"op", string(err.Op),
		"op_id", opID,
		"kind", string(err.Kind),
		"participant", err.Participant,
		"session", err.Session,
		"attempts", err.Attempts,
		"error", err.Err,
	}
	if err.Condition > 0 {
		attrs = append(attrs, "condition", err.Condition)
	}
	if IsClientError(err) {
		b.logger.Info("operation rejected", attrs...)
	} else {
		b.logger.Error("operation failed", attrs...)
	}
	return err
}

// classify maps an attempt error to its Kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyCompleted):
		return KindAlreadyCompleted
	case store.IsBusy(err):
		return KindStoreBusy
	case store.IsConstraint(err):
		return KindConstraintViolation
	default:
		return KindStoreError
	}
}
