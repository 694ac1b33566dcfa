/*
errors.go - Centralized error types for the planning engine

ERROR CATEGORIES:
  1. Validation errors - malformed or conflicting candidate entries.
     Detected locally; never reach persistence.
  2. Permission errors - caller not authorized for the target worker.
     Fatal to the whole operation.
  3. Persistence errors - the external store failed. Per item inside
     batches (confirm-day), returned to the caller otherwise.

USAGE:
  if errors.Is(err, planning.ErrConflict) { ... }

  var pe *planning.PersistenceError
  if errors.As(err, &pe) {
      log.Printf("%s failed: %v", pe.Op, pe.Err)
  }
*/
package planning

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a candidate overlaps an existing block.
	ErrConflict = errors.New("planning conflict")

	// ErrMissingTimes is returned for a timed entry without start or end.
	ErrMissingTimes = errors.New("start and end time required")

	// ErrInvalidTimeRange is returned when start and end do not form a span.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrPermissionDenied is the parent of every *PermissionError.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPersistence is the parent of every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")

	// ErrEntryNotFound is returned when a planning entry id is unknown.
	ErrEntryNotFound = errors.New("planning entry not found")

	// ErrEntryConfirmed is returned when editing or deleting a confirmed entry.
	ErrEntryConfirmed = errors.New("planning entry already confirmed")

	// ErrResourceAlreadyAssigned is returned when a vehicle or device would
	// receive a second assignment on the same date.
	ErrResourceAlreadyAssigned = errors.New("resource already assigned on this date")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError describes why a candidate entry was rejected.
type ValidationError struct {
	Code          string // "missing_times", "invalid_range", "conflict", "invalid_field"
	Message       string
	ConflictingID PlanningEntryID
	cause         error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrValidation, e.cause}
	}
	return []error{ErrValidation}
}

func newValidationError(code, message string, cause error) *ValidationError {
	return &ValidationError{Code: code, Message: message, cause: cause}
}

// PermissionError is returned when the actor cannot act for the worker.
type PermissionError struct {
	ActorID  string
	WorkerID WorkerID
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %q is not allowed to act for worker %q", e.ActorID, e.WorkerID)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// PersistenceError wraps a failure of the external store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// persistenceErr wraps err unless it already is a domain error the caller
// should see as-is.
func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEntryNotFound) || errors.Is(err, ErrResourceAlreadyAssigned) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEntryConfirmed) ||
		errors.Is(err, ErrResourceAlreadyAssigned)
}

func IsPermission(err error) bool { return errors.Is(err, ErrPermissionDenied) }

func IsNotFound(err error) bool { return errors.Is(err, ErrEntryNotFound) }

func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }
