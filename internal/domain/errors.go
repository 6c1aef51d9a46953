package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInHouse is returned when the caller has no active house membership.
	ErrNotInHouse = errors.New("you must be in a house to log activities")
	// ErrUserNotFound is returned when the user record does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrMaxFreezeReached is returned when a purchase would exceed MaxStreakFreeze.
	ErrMaxFreezeReached = fmt.Errorf("you already have the maximum number of streak freezes (%d)", MaxStreakFreeze)
	// ErrInsufficientPoints is returned when a debit exceeds the wallet balance.
	ErrInsufficientPoints = errors.New("insufficient points")
)

// ValidationError reports malformed or out-of-range input. Nothing is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// TransactionError wraps a storage failure in an atomic step. The unit of work
// was rolled back and the whole call is safe to retry.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// StreakUpdateError is raised by the post-commit streak step. It is logged and
// counted, never returned to callers of LogActivity.
type StreakUpdateError struct {
	UserID string
	Err    error
}

func (e *StreakUpdateError) Error() string {
	return fmt.Sprintf("streak update for user %s: %v", e.UserID, e.Err)
}

func (e *StreakUpdateError) Unwrap() error { return e.Err }
