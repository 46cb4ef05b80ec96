/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Collaborator layers (HTTP, stores) map these to their own surfaces.

ERROR CATEGORIES:
  1. Not-found errors  - Referenced entity does not exist (404-equivalent)
  2. Conflict errors   - Uniqueness or dependency conflicts (409-equivalent)
  3. Validation errors - Malformed input to a public operation (400-equivalent)

NOT ERRORS:
  Scheduling shortfalls (no capacity, no availability, invalid team,
  exhausted fallback chain) are normal run outcomes. They are recorded as
  violations and unmet requirements, never returned as errors.

USAGE:
  if errors.Is(err, engine.ErrNotFound) { ... }

  var nf *engine.NotFoundError
  if errors.As(err, &nf) { log.Printf("missing %s %s", nf.Kind, nf.ID) }

SEE ALSO:
  - scheduler.go: Propagation policy (structural errors abort, shortfalls don't)
  - api/handlers.go: HTTP status mapping
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned on uniqueness or state conflicts, such as a
	// duplicate name or deleting an entity that still has dependents.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input to a public operation.
	ErrValidation = errors.New("validation failed")

	// ErrDataSource is returned when the data-access collaborator is
	// unreachable or returns malformed data. This is a hard failure of the
	// run: the engine never produces a partial result from corrupt input.
	ErrDataSource = errors.New("data source failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies the missing entity by kind and ID.
type NotFoundError struct {
	Kind string // "student", "preceptor", "clerkship", "assignment", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound is a convenience constructor used throughout the engine.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError describes a uniqueness or dependency conflict.
type ConflictError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError reports malformed input. Fields always names the
// offending field paths.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: %s (fields: %s)", e.Message, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidation(message string, fields ...string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

// DataSourceError wraps a failure from the data-access collaborator.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source: %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return ErrDataSource }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true for uniqueness/state conflicts.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation returns true for malformed-input errors.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsClientError returns true if the error is due to invalid client input
// rather than a system failure.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsConflict(err) || IsValidation(err)
}
