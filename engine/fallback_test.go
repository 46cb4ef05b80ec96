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

// newFallbackSource seeds a clerkship with a primary preceptor, two
// team fallbacks, and one global fallback, all available all week.
func newFallbackSource(t *testing.T) *store.Memory {
	t.Helper()

	m := store.NewMemory()
	m.AddStudent(engine.Student{ID: "stu-1", Name: "Alice"})
	m.AddClerkship(engine.Clerkship{ID: "clk-1", Name: "Family Medicine"})

	allWeek := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	seed := func(p engine.Preceptor) {
		m.AddPreceptor(p)
		m.AddPattern(weeklyPattern("pat-"+string(p.ID), p.ID, allWeek...))
		m.LinkPreceptor("clk-1", p.ID)
	}

	seed(engine.Preceptor{ID: "prec-primary", HealthSystemID: "hs-a", SiteIDs: []engine.SiteID{"site-1"}})
	seed(engine.Preceptor{ID: "prec-fb-1", HealthSystemID: "hs-a", SiteIDs: []engine.SiteID{"site-1"}})
	seed(engine.Preceptor{ID: "prec-fb-2", HealthSystemID: "hs-a", SiteIDs: []engine.SiteID{"site-1"}})
	seed(engine.Preceptor{ID: "prec-global-near", HealthSystemID: "hs-a",
		SiteIDs: []engine.SiteID{"site-1"}, IsGlobalFallbackOnly: true})
	seed(engine.Preceptor{ID: "prec-global-far", HealthSystemID: "hs-b",
		SiteIDs: []engine.SiteID{"site-9"}, IsGlobalFallbackOnly: true})

	return m
}

func newFallbackResolver(m *store.Memory) *engine.FallbackResolver {
	return &engine.FallbackResolver{
		Source:       m,
		Availability: engine.NewAvailabilityResolver(m),
		Capacity:     engine.NewCapacityResolver(m),
		Tracker:      engine.NewCapacityTracker(marchWeek()),
	}
}

func fallbackRequest(m *store.Memory, team *engine.PreceptorTeam) engine.FallbackRequest {
	primary, _ := m.Preceptor(context.Background(), "prec-primary")
	return engine.FallbackRequest{
		StudentID:       "stu-1",
		ClerkshipID:     "clk-1",
		RequirementType: engine.RequirementOutpatient,
		Date:            d(2026, time.March, 2),
		Range:           marchWeek(),
		Settings:        engine.DefaultSettings(),
		Primary:         primary,
		Team:            team,
	}
}

func fallbackTeam() *engine.PreceptorTeam {
	return &engine.PreceptorTeam{
		ID:              "team-1",
		ClerkshipID:     "clk-1",
		RequirementType: engine.RequirementOutpatient,
		Members: []engine.TeamMember{
			{PreceptorID: "prec-primary", Priority: 1},
			{PreceptorID: "prec-fb-2", Priority: 3, IsFallbackOnly: true},
			{PreceptorID: "prec-fb-1", Priority: 2, IsFallbackOnly: true},
		},
	}
}

// =============================================================================
// TEAM PHASE
// =============================================================================

func TestFallback_TeamMembersTriedByPriority(t *testing.T) {
	// GIVEN: Two fallback-only team members with priorities 2 and 3
	// WHEN: Resolving
	// THEN: The priority-2 member is chosen

	m := newFallbackSource(t)
	fr := newFallbackResolver(m)

	c, err := fr.Resolve(context.Background(), fallbackRequest(m, fallbackTeam()))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, engine.PreceptorID("prec-fb-1"), c.Preceptor.ID)
	assert.True(t, c.FromTeam)
	assert.True(t, c.RequiresApproval)
}

func TestFallback_SkipsExhaustedTeamMember(t *testing.T) {
	m := newFallbackSource(t)
	fr := newFallbackResolver(m)

	// prec-fb-1 has no capacity left on the requested date.
	require.NoError(t, m.AddCapacityRule(engine.CapacityRule{
		ID: "r1", PreceptorID: "prec-fb-1", MaxStudentsPerDay: 1, MaxStudentsPerYear: 10,
	}))
	fr.Tracker.Record(engine.Assignment{
		ID: "a1", StudentID: "stu-other", PreceptorID: "prec-fb-1", Date: d(2026, time.March, 2),
	}, 5)

	c, err := fr.Resolve(context.Background(), fallbackRequest(m, fallbackTeam()))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, engine.PreceptorID("prec-fb-2"), c.Preceptor.ID)
}

func TestFallback_SkipsUnavailableTeamMember(t *testing.T) {
	m := newFallbackSource(t)
	fr := newFallbackResolver(m)

	req := fallbackRequest(m, fallbackTeam())
	req.Date = d(2026, time.March, 7) // Saturday: nobody's pattern covers it

	c, err := fr.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, c)
}

// =============================================================================
// GLOBAL PHASE
// =============================================================================

func TestFallback_GlobalRequiresCompatibility(t *testing.T) {
	// No team: the chain goes straight to global fallbacks, and only the
	// one sharing the primary's health system qualifies.

	m := newFallbackSource(t)
	fr := newFallbackResolver(m)

	c, err := fr.Resolve(context.Background(), fallbackRequest(m, nil))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, engine.PreceptorID("prec-global-near"), c.Preceptor.ID)
	assert.False(t, c.FromTeam)
	assert.True(t, c.RequiresApproval)
}

func TestFallback_CrossSystemAllowedWidensChain(t *testing.T) {
	m := newFallbackSource(t)
	fr := newFallbackResolver(m)

	// Exhaust the compatible global fallback first.
	require.NoError(t, m.AddCapacityRule(engine.CapacityRule{
		ID: "r1", PreceptorID: "prec-global-near", MaxStudentsPerDay: 1, MaxStudentsPerYear: 10,
	}))
	fr.Tracker.Record(engine.Assignment{
		ID: "a1", StudentID: "stu-other", PreceptorID: "prec-global-near", Date: d(2026, time.March, 2),
	}, 5)

	req := fallbackRequest(m, nil)
	c, err := fr.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, c)

	req.Settings.FallbackAllowCrossSystem = true
	c, err = fr.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, engine.PreceptorID("prec-global-far"), c.Preceptor.ID)
}

func TestFallback_NoPrimaryAcceptsAnyGlobal(t *testing.T) {
	m := newFallbackSource(t)
	fr := newFallbackResolver(m)

	req := fallbackRequest(m, nil)
	req.Primary = nil

	c, err := fr.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, engine.PreceptorID("prec-global-near"), c.Preceptor.ID)
}

func TestFallback_ApprovalFollowsSettings(t *testing.T) {
	m := newFallbackSource(t)
	fr := newFallbackResolver(m)

	req := fallbackRequest(m, nil)
	req.Settings.FallbackRequiresApproval = false

	c, err := fr.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, c.RequiresApproval)
}

func TestFallback_ExhaustedChainReturnsNil(t *testing.T) {
	// Chain exhaustion is a nil result, never an error.
	m := store.NewMemory()
	m.AddClerkship(engine.Clerkship{ID: "clk-1"})
	fr := newFallbackResolver(m)

	c, err := fr.Resolve(context.Background(), engine.FallbackRequest{
		StudentID:   "stu-1",
		ClerkshipID: "clk-1",
		Date:        d(2026, time.March, 2),
		Range:       marchWeek(),
		Settings:    engine.DefaultSettings(),
	})
	require.NoError(t, err)
	assert.Nil(t, c)
}
