/*
reassign.go - Standalone reassignment and swap operations

PURPOSE:
  Editing workflows move existing assignments around without re-running
  a full schedule. Both operations re-run the capacity and availability
  checks for the affected date(s) only and return the same Result shape
  as Schedule, scoped to the touched assignments.

DRY RUN:
  With dryRun the checks run and the would-be assignments are returned,
  but nothing is persisted. This is the "what-if" preview path.

SEE ALSO:
  - scheduler.go: Result shape and the full-run algorithm
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReassignToPreceptor moves one assignment to a different preceptor,
// re-checking availability and capacity for that date only. A failed
// check yields Success=false with violations, not an error.
func (s *Scheduler) ReassignToPreceptor(ctx context.Context, id AssignmentID, newPreceptorID PreceptorID, dryRun bool) (*Result, error) {
	if s.Store == nil {
		return nil, NewValidation("persistence is not configured", "assignment_id")
	}

	current, err := s.Store.Assignment(ctx, id)
	if err != nil {
		return nil, err
	}
	target, err := s.Source.Preceptor(ctx, newPreceptorID)
	if err != nil {
		return nil, err
	}
	if target.ID == current.PreceptorID {
		return nil, &ConflictError{Kind: "assignment", ID: string(id), Reason: "already assigned to this preceptor"}
	}

	violations := NewViolationTracker()
	ok, err := s.checkPlacement(ctx, violations, target, current, map[AssignmentID]bool{id: true})
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString(), DryRun: dryRun, Violations: violations.Export()}
	if !ok {
		return result, nil
	}

	updated := *current
	updated.PreceptorID = target.ID
	// Manual placement: fallback and team context no longer apply.
	updated.UsedFallback = false
	updated.TeamID = ""
	updated.PendingApproval = false

	if !dryRun {
		if err := s.Store.UpdateAssignments(ctx, []Assignment{updated}); err != nil {
			return nil, err
		}
	}

	result.Success = true
	result.Assignments = []Assignment{updated}
	result.Statistics = Stats{TotalAssignments: 1}
	return result, nil
}

// SwapAssignments exchanges the preceptors of two assignments,
// re-checking both touched (preceptor, date) pairs. Either both sides
// commit or neither does.
func (s *Scheduler) SwapAssignments(ctx context.Context, id1, id2 AssignmentID, dryRun bool) (*Result, error) {
	if s.Store == nil {
		return nil, NewValidation("persistence is not configured", "assignment_id")
	}
	if id1 == id2 {
		return nil, NewValidation("cannot swap an assignment with itself", "assignment_id")
	}

	first, err := s.Store.Assignment(ctx, id1)
	if err != nil {
		return nil, err
	}
	second, err := s.Store.Assignment(ctx, id2)
	if err != nil {
		return nil, err
	}

	p1, err := s.Source.Preceptor(ctx, first.PreceptorID)
	if err != nil {
		return nil, err
	}
	p2, err := s.Source.Preceptor(ctx, second.PreceptorID)
	if err != nil {
		return nil, err
	}

	exclude := map[AssignmentID]bool{id1: true, id2: true}
	violations := NewViolationTracker()

	ok1, err := s.checkPlacement(ctx, violations, p2, first, exclude)
	if err != nil {
		return nil, err
	}
	ok2, err := s.checkPlacement(ctx, violations, p1, second, exclude)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString(), DryRun: dryRun, Violations: violations.Export()}
	if !ok1 || !ok2 {
		return result, nil
	}

	u1, u2 := *first, *second
	u1.PreceptorID = p2.ID
	u2.PreceptorID = p1.ID
	for _, u := range []*Assignment{&u1, &u2} {
		u.UsedFallback = false
		u.TeamID = ""
		u.PendingApproval = false
	}

	if !dryRun {
		if err := s.Store.UpdateAssignments(ctx, []Assignment{u1, u2}); err != nil {
			return nil, err
		}
	}

	result.Success = true
	result.Assignments = []Assignment{u1, u2}
	result.Statistics = Stats{TotalAssignments: 2}
	return result, nil
}

// checkPlacement re-runs the availability and capacity checks for one
// (preceptor, date) pair, excluding the assignments being moved from the
// capacity accounting.
func (s *Scheduler) checkPlacement(ctx context.Context, violations *ViolationTracker, target *Preceptor, a *Assignment, exclude map[AssignmentID]bool) (bool, error) {
	day := DateRange{Start: a.Date, End: a.Date}

	availability := NewAvailabilityResolver(s.Source)
	available, err := availability.ResolveSet(ctx, target.ID, day)
	if err != nil {
		return false, err
	}
	if !available[a.Date] {
		candidate := *a
		candidate.PreceptorID = target.ID
		violations.Record(ConstraintNoAvailability, candidate,
			fmt.Sprintf("preceptor %s is not available on %s", target.ID, a.Date), nil)
		return false, nil
	}

	tracker := NewCapacityTracker(YearRange(a.Date))
	persisted, err := s.Source.AssignmentsInRange(ctx, YearRange(a.Date))
	if err != nil {
		return false, &DataSourceError{Op: "load persisted assignments", Err: err}
	}
	blockLength := s.blockLengthFor(ctx, a)
	tracker.Seed(persisted, blockLength)
	// The moved assignments must not count against the target's ceilings.
	for _, existing := range persisted {
		if exclude[existing.ID] {
			tracker.Release(existing, blockLength)
		}
	}

	capacity, err := NewCapacityResolver(s.Source).Effective(ctx, target.ID, a.ClerkshipID, a.RequirementType)
	if err != nil {
		return false, err
	}
	if !tracker.HasCapacity(target.ID, a.StudentID, a.Date, capacity, blockLength) {
		candidate := *a
		candidate.PreceptorID = target.ID
		violations.Record(ConstraintNoCapacity, candidate,
			fmt.Sprintf("preceptor %s has no remaining capacity on %s", target.ID, a.Date), nil)
		return false, nil
	}
	return true, nil
}

// blockLengthFor resolves the clerkship's block length for block-ceiling
// accounting, falling back to the global default when the clerkship or
// requirement cannot be resolved.
func (s *Scheduler) blockLengthFor(ctx context.Context, a *Assignment) int {
	clerkship, err := s.Source.Clerkship(ctx, a.ClerkshipID)
	if err != nil {
		return DefaultSettings().BlockLength
	}
	reqs, err := s.Source.Requirements(ctx, a.ClerkshipID)
	if err != nil {
		return clerkship.Settings.BlockLength
	}
	for i := range reqs {
		if reqs[i].Type == a.RequirementType {
			return ResolveSettings(clerkship.Settings, &reqs[i], nil).BlockLength
		}
	}
	return clerkship.Settings.BlockLength
}
