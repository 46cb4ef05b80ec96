/*
source.go - Collaborator interfaces the engine consumes

PURPOSE:
  Defines the boundary between the scheduling core and the surrounding
  application. The engine is a pure computation over a data snapshot;
  everything it reads comes through DataSource, and the only thing it
  writes (outside dry runs) goes through AssignmentStore.

SNAPSHOT CONTRACT:
  All reads for one Schedule() invocation must observe a consistent
  snapshot. Implementations may be backed by a database, but no placement
  decision is issued until the read it depends on has completed; the
  engine never works from stale capacity data.

ORDERING CONTRACT:
  EligiblePreceptors and Teams return candidates in a deterministic
  order (ascending identifier). The engine breaks equal-priority ties by
  this order, which keeps dry runs reproducible.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory, for tests and demos
  - store/sqlite/sqlite.go:  SQLite-backed

SEE ALSO:
  - scheduler.go: The only consumer of these interfaces
*/
package engine

import "context"

// =============================================================================
// DATA SOURCE - Read snapshot for one run
// =============================================================================

// DataSource provides the configuration snapshot a run reads from.
// Lookups by ID return NotFoundError for missing entities; any other
// failure is treated as a hard failure of the run.
type DataSource interface {
	Student(ctx context.Context, id StudentID) (*Student, error)
	Preceptor(ctx context.Context, id PreceptorID) (*Preceptor, error)
	Clerkship(ctx context.Context, id ClerkshipID) (*Clerkship, error)
	Site(ctx context.Context, id SiteID) (*Site, error)

	// Requirements returns the clerkship's requirements. Order is not
	// significant; the engine processes them in RequirementOrder.
	Requirements(ctx context.Context, clerkshipID ClerkshipID) ([]Requirement, error)

	// Electives returns the clerkship's electives, ascending by ID.
	Electives(ctx context.Context, clerkshipID ClerkshipID) ([]Elective, error)

	// EligiblePreceptors returns the candidate preceptors for a
	// requirement scope, ascending by ID. Includes fallback-only
	// preceptors; the engine filters them per phase.
	EligiblePreceptors(ctx context.Context, clerkshipID ClerkshipID, t RequirementType) ([]Preceptor, error)

	// Teams returns the teams defined for a requirement scope, ascending
	// by ID.
	Teams(ctx context.Context, clerkshipID ClerkshipID, t RequirementType) ([]PreceptorTeam, error)

	// CapacityRules returns all rules naming the preceptor, in any order.
	CapacityRules(ctx context.Context, preceptorID PreceptorID) ([]CapacityRule, error)

	// Patterns returns the preceptor's availability patterns, including
	// disabled ones.
	Patterns(ctx context.Context, preceptorID PreceptorID) ([]AvailabilityPattern, error)

	// Blackouts returns blackout dates overlapping the range.
	Blackouts(ctx context.Context, r DateRange) ([]BlackoutDate, error)

	// AssignmentsInRange returns persisted assignments overlapping the
	// range, for per-year and per-block capacity accounting.
	AssignmentsInRange(ctx context.Context, r DateRange) ([]Assignment, error)
}

// =============================================================================
// ASSIGNMENT STORE - The run's only write surface
// =============================================================================

// AssignmentStore persists engine output. A dry run never touches it.
type AssignmentStore interface {
	// SaveAssignments persists a batch atomically: all or none.
	SaveAssignments(ctx context.Context, assignments []Assignment) error

	// Assignment fetches one persisted assignment.
	Assignment(ctx context.Context, id AssignmentID) (*Assignment, error)

	// UpdateAssignments replaces persisted assignments by ID, atomically.
	// Returns NotFoundError if any ID is unknown. Used by reassign/swap.
	UpdateAssignments(ctx context.Context, assignments []Assignment) error
}
