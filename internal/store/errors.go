package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrBusy indicates the database was locked by another connection or
	// process. The whole transaction may be retried.
	ErrBusy = errors.New("store busy")

	// ErrConstraint indicates a schema constraint rejected the write
	// (duplicate key, condition out of range, negative counter, bad status).
	ErrConstraint = errors.New("constraint violation")

	// ErrNotFound indicates an update matched no row.
	ErrNotFound = errors.New("not found")

	// ErrConditionMismatch indicates the database was created with a
	// different condition count than the one it is being opened with.
	ErrConditionMismatch = errors.New("condition count mismatch")
)

// IsBusy reports whether err is transient lock contention.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

// classify wraps a driver error with the matching sentinel so callers can
// branch with errors.Is without importing the driver.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%s: %w: %w", op, ErrBusy, err)
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%s: %w: %w", op, ErrConstraint, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
