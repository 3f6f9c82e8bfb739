package balancer

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of balancer failure categories.
type Kind string

const (
	// KindNotFound: confirm for a participant with no assignment in the session.
	KindNotFound Kind = "not_found"

	// KindAlreadyCompleted: confirm for an assignment that is already completed.
	KindAlreadyCompleted Kind = "already_completed"

	// KindStoreBusy: the store stayed locked through every retry attempt.
	KindStoreBusy Kind = "store_busy"

	// KindConstraintViolation: the store rejected a write; indicates a logic bug.
	KindConstraintViolation Kind = "constraint_violation"

	// KindStoreError: connectivity or IO failure, not retried.
	KindStoreError Kind = "store_error"

	// KindInvalidIdentifier: empty or malformed participant/session id.
	KindInvalidIdentifier Kind = "invalid_identifier"
)

// Op names the balancer operation that failed.
type Op string

const (
	OpAssign  Op = "assign"
	OpConfirm Op = "confirm"
)

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrNotFound            = errors.New("assignment not found")
	ErrAlreadyCompleted    = errors.New("assignment already completed")
	ErrStoreBusy           = errors.New("store busy")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStoreError          = errors.New("store error")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
)

var kindSentinels = map[Kind]error{
	KindNotFound:            ErrNotFound,
	KindAlreadyCompleted:    ErrAlreadyCompleted,
	KindStoreBusy:           ErrStoreBusy,
	KindConstraintViolation: ErrConstraintViolation,
	KindStoreError:          ErrStoreError,
	KindInvalidIdentifier:   ErrInvalidIdentifier,
}

// Error is the only error type returned by Assign and Confirm (apart from
// context errors while waiting for the lock).
//
// An Error with Op == OpAssign is an assignment failure; Op == OpConfirm is a
// confirmation failure. Kind says why.
type Error struct {
	Kind        Kind
	Op          Op
	Participant string
	Session     string

	// Condition is set when the failing assignment's condition is known
	// (e.g. KindAlreadyCompleted).
	Condition int

	// Attempts is how many transaction attempts ran before failing.
	Attempts int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed (participant=%s, session=%s", e.Op, e.Participant, e.Session)
	if e.Condition > 0 {
		fmt.Fprintf(&b, ", condition=%d", e.Condition)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, ", attempts=%d", e.Attempts)
	}
	fmt.Fprintf(&b, "): %s", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the Kind of a balancer error, or "" if err is not one.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsNotFound returns true if err is a KindNotFound balancer error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsAlreadyCompleted returns true if err is a KindAlreadyCompleted balancer error.
func IsAlreadyCompleted(err error) bool {
	return KindOf(err) == KindAlreadyCompleted
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the store: not found, already completed, or a bad identifier.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindAlreadyCompleted, KindInvalidIdentifier:
		return true
	}
	return false
}
