package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/rotation-engine/engine"
	"github.com/meridian/rotation-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newReassignFixture schedules one student with prec-1 for a week and
// returns the store, scheduler, and the Monday assignment's ID.
func newReassignFixture(t *testing.T) (*store.Memory, *engine.Scheduler, engine.AssignmentID) {
	t.Helper()

	m, sched := newRotationFixture(t)
	seedOutpatientClerkship(m, "clk-1", 5)
	seedWeekdayPreceptor(m, "clk-1", engine.Preceptor{ID: "prec-1", HealthSystemID: "hs-a"})
	seedWeekdayPreceptor(m, "clk-1", engine.Preceptor{ID: "prec-2", HealthSystemID: "hs-a"})

	result, err := sched.Schedule(context.Background(), []engine.StudentID{"stu-1"},
		[]engine.ClerkshipID{"clk-1"}, weekOptions())
	require.NoError(t, err)
	require.True(t, result.Success)

	return m, sched, engine.AssignmentID("stu-1:clk-1:outpatient:2026-03-02")
}

// =============================================================================
// REASSIGN
// =============================================================================

func TestReassign_MovesAssignment(t *testing.T) {
	// GIVEN: A persisted Monday assignment with prec-1
	// WHEN: Reassigning to prec-2
	// THEN: The stored assignment points at prec-2 with placement flags
	//       cleared

	m, sched, id := newReassignFixture(t)

	result, err := sched.ReassignToPreceptor(context.Background(), id, "prec-2", false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Assignments, 1)

	saved, err := m.Assignment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, engine.PreceptorID("prec-2"), saved.PreceptorID)
	assert.False(t, saved.UsedFallback)
	assert.False(t, saved.PendingApproval)
	assert.Empty(t, saved.TeamID)
}

func TestReassign_SamePreceptorIsConflict(t *testing.T) {
	_, sched, id := newReassignFixture(t)

	_, err := sched.ReassignToPreceptor(context.Background(), id, "prec-1", false)
	assert.True(t, engine.IsConflict(err))
}

func TestReassign_UnknownAssignment(t *testing.T) {
	_, sched, _ := newReassignFixture(t)

	_, err := sched.ReassignToPreceptor(context.Background(), "ghost", "prec-2", false)
	assert.True(t, engine.IsNotFound(err))
}

func TestReassign_UnavailableTargetFailsWithViolation(t *testing.T) {
	// prec-3 works Tuesdays only; moving a Monday assignment to them is
	// refused with a violation, not an error.

	m, sched, id := newReassignFixture(t)
	m.AddPreceptor(engine.Preceptor{ID: "prec-3", HealthSystemID: "hs-a"})
	m.AddPattern(weeklyPattern("pat-3", "prec-3", time.Tuesday))
	m.LinkPreceptor("clk-1", "prec-3")

	result, err := sched.ReassignToPreceptor(context.Background(), id, "prec-3", false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, engine.ConstraintNoAvailability, result.Violations[0].Constraint)

	saved, err := m.Assignment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, engine.PreceptorID("prec-1"), saved.PreceptorID)
}

func TestReassign_TargetAtCapacityFails(t *testing.T) {
	m, sched, id := newReassignFixture(t)

	// prec-2 can take one student per day, and already hosts stu-2 on
	// the same Monday.
	require.NoError(t, m.AddCapacityRule(engine.CapacityRule{
		ID: "r1", PreceptorID: "prec-2", MaxStudentsPerDay: 1, MaxStudentsPerYear: 10,
	}))
	require.NoError(t, m.SaveAssignments(context.Background(), []engine.Assignment{{
		ID: "stu-2:clk-1:outpatient:2026-03-02", StudentID: "stu-2", PreceptorID: "prec-2",
		ClerkshipID: "clk-1", RequirementType: engine.RequirementOutpatient,
		Date: d(2026, time.March, 2),
	}}))

	result, err := sched.ReassignToPreceptor(context.Background(), id, "prec-2", false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, engine.ConstraintNoCapacity, result.Violations[0].Constraint)
}

func TestReassign_DryRunDoesNotPersist(t *testing.T) {
	m, sched, id := newReassignFixture(t)

	result, err := sched.ReassignToPreceptor(context.Background(), id, "prec-2", true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.DryRun)

	saved, err := m.Assignment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, engine.PreceptorID("prec-1"), saved.PreceptorID)
}

// =============================================================================
// SWAP
// =============================================================================

func TestSwap_ExchangesPreceptors(t *testing.T) {
	// Two students on the same Monday with different preceptors trade
	// places.

	m, sched := newRotationFixture(t)
	seedOutpatientClerkship(m, "clk-1", 5)
	seedWeekdayPreceptor(m, "clk-1", engine.Preceptor{ID: "prec-1", HealthSystemID: "hs-a"})
	seedWeekdayPreceptor(m, "clk-1", engine.Preceptor{ID: "prec-2", HealthSystemID: "hs-a"})

	mon := d(2026, time.March, 2)
	a1 := engine.Assignment{
		ID: "stu-1:clk-1:outpatient:2026-03-02", StudentID: "stu-1", PreceptorID: "prec-1",
		ClerkshipID: "clk-1", RequirementType: engine.RequirementOutpatient, Date: mon,
	}
	a2 := engine.Assignment{
		ID: "stu-2:clk-1:outpatient:2026-03-02", StudentID: "stu-2", PreceptorID: "prec-2",
		ClerkshipID: "clk-1", RequirementType: engine.RequirementOutpatient, Date: mon,
	}
	require.NoError(t, m.SaveAssignments(context.Background(), []engine.Assignment{a1, a2}))

	result, err := sched.SwapAssignments(context.Background(), a1.ID, a2.ID, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Assignments, 2)

	saved1, err := m.Assignment(context.Background(), a1.ID)
	require.NoError(t, err)
	saved2, err := m.Assignment(context.Background(), a2.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PreceptorID("prec-2"), saved1.PreceptorID)
	assert.Equal(t, engine.PreceptorID("prec-1"), saved2.PreceptorID)
}

func TestSwap_MovedAssignmentsDoNotCountAgainstCapacity(t *testing.T) {
	// GIVEN: Both preceptors full at one student per day on the same
	//        Monday, occupied only by the two assignments being swapped
	// WHEN: Swapping
	// THEN: Each side's vacated seat is free for the other, so the swap
	//       succeeds

	m, sched := newRotationFixture(t)
	seedOutpatientClerkship(m, "clk-1", 5)
	seedWeekdayPreceptor(m, "clk-1", engine.Preceptor{ID: "prec-1", HealthSystemID: "hs-a"})
	seedWeekdayPreceptor(m, "clk-1", engine.Preceptor{ID: "prec-2", HealthSystemID: "hs-a"})
	for _, p := range []engine.PreceptorID{"prec-1", "prec-2"} {
		require.NoError(t, m.AddCapacityRule(engine.CapacityRule{
			ID: "r-" + string(p), PreceptorID: p, MaxStudentsPerDay: 1, MaxStudentsPerYear: 10,
		}))
	}

	mon := d(2026, time.March, 2)
	a1 := engine.Assignment{
		ID: "stu-1:clk-1:outpatient:2026-03-02", StudentID: "stu-1", PreceptorID: "prec-1",
		ClerkshipID: "clk-1", RequirementType: engine.RequirementOutpatient, Date: mon,
	}
	a2 := engine.Assignment{
		ID: "stu-2:clk-1:outpatient:2026-03-02", StudentID: "stu-2", PreceptorID: "prec-2",
		ClerkshipID: "clk-1", RequirementType: engine.RequirementOutpatient, Date: mon,
	}
	require.NoError(t, m.SaveAssignments(context.Background(), []engine.Assignment{a1, a2}))

	result, err := sched.SwapAssignments(context.Background(), a1.ID, a2.ID, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Violations)

	saved1, err := m.Assignment(context.Background(), a1.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PreceptorID("prec-2"), saved1.PreceptorID)
}

func TestSwap_SelfSwapIsValidationError(t *testing.T) {
	_, sched, id := newReassignFixture(t)

	_, err := sched.SwapAssignments(context.Background(), id, id, false)
	assert.True(t, engine.IsValidation(err))
}

func TestSwap_FailedSideBlocksBoth(t *testing.T) {
	// GIVEN: A swap whose second side lands on an unavailable preceptor
	// WHEN: Swapping
	// THEN: Neither side changes

	m, sched := newRotationFixture(t)
	seedOutpatientClerkship(m, "clk-1", 5)
	seedWeekdayPreceptor(m, "clk-1", engine.Preceptor{ID: "prec-1", HealthSystemID: "hs-a"})

	// prec-3 works Tuesdays only, so prec-1's Monday slot cannot move
	// there.
	m.AddPreceptor(engine.Preceptor{ID: "prec-3", HealthSystemID: "hs-a"})
	m.AddPattern(weeklyPattern("pat-3", "prec-3", time.Tuesday))
	m.LinkPreceptor("clk-1", "prec-3")

	mon := d(2026, time.March, 2)
	a1 := engine.Assignment{
		ID: "stu-1:clk-1:outpatient:2026-03-02", StudentID: "stu-1", PreceptorID: "prec-1",
		ClerkshipID: "clk-1", RequirementType: engine.RequirementOutpatient, Date: mon,
	}
	a2 := engine.Assignment{
		ID: "stu-2:clk-1:outpatient:2026-03-02", StudentID: "stu-2", PreceptorID: "prec-3",
		ClerkshipID: "clk-1", RequirementType: engine.RequirementOutpatient, Date: mon,
	}
	require.NoError(t, m.SaveAssignments(context.Background(), []engine.Assignment{a1, a2}))

	result, err := sched.SwapAssignments(context.Background(), a1.ID, a2.ID, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Violations)

	saved1, err := m.Assignment(context.Background(), a1.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PreceptorID("prec-1"), saved1.PreceptorID)
}
