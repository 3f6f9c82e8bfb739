package balancer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := &Error{
		Kind:        KindAlreadyCompleted,
		Op:          OpConfirm,
		Participant: "p1",
		Session:     "S1",
		Condition:   4,
		Attempts:    1,
		Err:         ErrAlreadyCompleted,
	}
	assert.Equal(t,
		"confirm failed (participant=p1, session=S1, condition=4): already_completed: assignment already completed",
		err.Error())
}

func TestError_MessageWithAttempts(t *testing.T) {
	cause := errors.New("database is locked")
	err := &Error{Kind: KindStoreBusy, Op: OpAssign, Participant: "p", Session: "s", Attempts: 3, Err: cause}
	assert.Equal(t, "assign failed (participant=p, session=s, attempts=3): store_busy: database is locked", err.Error())
}

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := &Error{Kind: KindNotFound, Op: OpConfirm, Err: ErrNotFound}

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAlreadyCompleted)
	assert.NotErrorIs(t, err, ErrStoreBusy)
}

func TestError_IsWithUnrelatedCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := &Error{Kind: KindStoreError, Op: OpAssign, Err: cause}

	assert.ErrorIs(t, err, ErrStoreError)
	assert.ErrorIs(t, err, cause, "Unwrap exposes the cause")
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", &Error{Kind: KindAlreadyCompleted, Op: OpConfirm})

	assert.Equal(t, KindAlreadyCompleted, KindOf(err))
	assert.True(t, IsAlreadyCompleted(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindNotFound, true},
		{KindAlreadyCompleted, true},
		{KindInvalidIdentifier, true},
		{KindStoreBusy, false},
		{KindConstraintViolation, false},
		{KindStoreError, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, IsClientError(&Error{Kind: tt.kind}))
		})
	}
}
