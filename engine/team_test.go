package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/rotation-engine/engine"
	"github.com/meridian/rotation-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTeamSource() *store.Memory {
	m := store.NewMemory()
	m.AddHealthSystem(engine.HealthSystem{ID: "hs-a", Name: "Northside"})
	m.AddHealthSystem(engine.HealthSystem{ID: "hs-b", Name: "Southside"})
	m.AddPreceptor(engine.Preceptor{
		ID: "prec-1", Name: "Dr. One", Specialty: "Pediatrics",
		HealthSystemID: "hs-a", SiteIDs: []engine.SiteID{"site-1", "site-2"},
	})
	m.AddPreceptor(engine.Preceptor{
		ID: "prec-2", Name: "Dr. Two", Specialty: "Pediatrics",
		HealthSystemID: "hs-a", SiteIDs: []engine.SiteID{"site-2"},
	})
	m.AddPreceptor(engine.Preceptor{
		ID: "prec-3", Name: "Dr. Three", Specialty: "Surgery",
		HealthSystemID: "hs-b", SiteIDs: []engine.SiteID{"site-3"},
	})
	m.AddPreceptor(engine.Preceptor{
		ID: "prec-4", Name: "Dr. Four", Specialty: "pediatrics",
		SiteIDs: []engine.SiteID{"site-2"},
	})
	return m
}

func team(members []engine.TeamMember, continuity engine.TeamContinuity) *engine.PreceptorTeam {
	return &engine.PreceptorTeam{
		ID:              "team-1",
		Name:            "Peds North",
		ClerkshipID:     "clk-1",
		RequirementType: engine.RequirementInpatient,
		Members:         members,
		Continuity:      continuity,
	}
}

func member(id engine.PreceptorID) engine.TeamMember {
	return engine.TeamMember{PreceptorID: id}
}

// =============================================================================
// CONTINUITY CHECKS
// =============================================================================

func TestTeam_ValidSameSystemSharedSite(t *testing.T) {
	// GIVEN: Two same-system preceptors sharing site-2
	// WHEN: Validating with both continuity rules on
	// THEN: The team is valid with no findings

	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-2")},
		engine.TeamContinuity{RequireSameHealthSystem: true, RequireSameSite: true},
	)

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestTeam_MultipleHealthSystemsIsError(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-3")},
		engine.TeamContinuity{RequireSameHealthSystem: true},
	)

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "multiple health systems")
}

func TestTeam_MissingHealthSystemIsWarning(t *testing.T) {
	// A member with no system on file produces a warning, not an error.
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-4")},
		engine.TeamContinuity{RequireSameHealthSystem: true},
	)

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "no health system")
}

func TestTeam_NoSharedSiteIsError(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-3")},
		engine.TeamContinuity{RequireSameSite: true},
	)

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "share any site")
}

func TestTeam_SpecialtyMatchIsCaseInsensitive(t *testing.T) {
	// prec-4 lists "pediatrics" lowercase; that still matches.
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-4")},
		engine.TeamContinuity{RequireSameSpecialty: true},
	)

	result, err := tv.Validate(context.Background(), tm, "Pediatrics")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestTeam_SpecialtyMismatchIsError(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-3")},
		engine.TeamContinuity{RequireSameSpecialty: true},
	)

	result, err := tv.Validate(context.Background(), tm, "Pediatrics")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "prec-3")
}

func TestTeam_EmptySpecialtySkipsCheck(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-3")},
		engine.TeamContinuity{RequireSameSpecialty: true},
	)

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

// =============================================================================
// SIZE BOUNDS
// =============================================================================

func TestTeam_BelowMinimumMembers(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1")},
		engine.TeamContinuity{MinMembers: 2},
	)

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "minimum is 2")
}

func TestTeam_AboveMaximumMembers(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(
		[]engine.TeamMember{member("prec-1"), member("prec-2"), member("prec-4")},
		engine.TeamContinuity{MaxMembers: 2},
	)

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestTeam_NoMembersIsError(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team(nil, engine.TeamContinuity{})

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "at least one member")
}

// =============================================================================
// APPROVAL AND STRUCTURAL FAILURES
// =============================================================================

func TestTeam_ApprovalFlagDoesNotBlockValidity(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team([]engine.TeamMember{member("prec-1")}, engine.TeamContinuity{})
	tm.RequiresAdminApproval = true

	result, err := tv.Validate(context.Background(), tm, "")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.RequiresApproval)
}

func TestTeam_UnknownMemberIsStructuralError(t *testing.T) {
	tv := engine.NewTeamValidator(newTeamSource())
	tm := team([]engine.TeamMember{member("ghost")}, engine.TeamContinuity{})

	_, err := tv.Validate(context.Background(), tm, "")
	assert.True(t, engine.IsNotFound(err))
}

func TestTeam_SortedMembersByPriority(t *testing.T) {
	tm := &engine.PreceptorTeam{Members: []engine.TeamMember{
		{PreceptorID: "prec-c", Priority: 3},
		{PreceptorID: "prec-a", Priority: 1},
		{PreceptorID: "prec-b", Priority: 1},
	}}

	sorted := tm.SortedMembers()
	require.Len(t, sorted, 3)
	assert.Equal(t, engine.PreceptorID("prec-a"), sorted[0].PreceptorID)
	assert.Equal(t, engine.PreceptorID("prec-b"), sorted[1].PreceptorID)
	assert.Equal(t, engine.PreceptorID("prec-c"), sorted[2].PreceptorID)
}
