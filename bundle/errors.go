/*
errors.go - Centralized error types for the bundle archive

ERROR CATEGORIES:
  1. Lookup misses   - ErrNotFound. Internal control flow: the archive turns
                       a miss into an insert and never returns it.
  2. Invalid state   - InvalidStateError. An item was saved before its month
                       had a persisted identity. Fatal to the save call.
  3. Store failures  - StoreError. Connectivity or constraint failures from
                       the backing store. The transaction is rolled back.
  4. Construction    - ErrInvalidPeriod, ErrEmptyURL, ErrItemMonthMismatch,
                       ErrMonthMismatch. Returned by entity constructors.

USAGE:
  if bundle.IsInvalidState(err) {
      // programming error: save the month first
  }
  if bundle.IsRetryable(err) {
      // another writer raced the same natural key, retry is safe
  }
*/
package bundle

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned by Store lookups that match no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by stores when an insert violates a
	// natural-key uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate natural key")

	// ErrInvalidState is the target of every InvalidStateError.
	ErrInvalidState = errors.New("invalid state")

	// ErrStore is the target of every StoreError.
	ErrStore = errors.New("store error")

	// ErrStaleIdentity is returned when an entity is bound to a row that no
	// longer exists.
	ErrStaleIdentity = errors.New("persisted row missing for bound identity")

	// ErrAlreadyBound is returned when rebinding an identity to another id.
	ErrAlreadyBound = errors.New("identity already bound")

	ErrInvalidPeriod     = errors.New("invalid period")
	ErrEmptyURL          = errors.New("month url is empty")
	ErrItemMonthMismatch = errors.New("item belongs to a different month")
	ErrMonthMismatch     = errors.New("months have different urls")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidStateError reports an operation attempted before its
// preconditions on persisted identity hold.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid state: %s", e.Op, e.Reason)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// StoreError wraps a failure returned by the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStore) hold for every StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// surface converts an error leaving a transaction into one of the two
// kinds callers may see.
func surface(op string, err error) error {
	if err == nil {
		return nil
	}
	var ise *InvalidStateError
	var se *StoreError
	if errors.As(err, &ise) || errors.As(err, &se) {
		return err
	}
	return storeError(op, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInvalidState returns true if err is an InvalidStateError.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsStoreError returns true if err came from the backing store.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || errors.Is(err, context.DeadlineExceeded)
}
