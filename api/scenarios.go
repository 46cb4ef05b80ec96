/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates students, preceptors,
	clerkships, and constraints that demonstrate specific engine features.

AVAILABLE SCENARIOS:

	capacity-crunch:    Two students competing for one preceptor slot per day
	team-continuity:    Preceptor teams with health-system continuity rules
	elective-overrides: Clerkship with required electives and settings overrides
	fallback-chain:     Primary pool exhausted, fallback preceptors engaged

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create clerkships via factory
 3. Create students, preceptors, sites
 4. Link preceptors to clerkships
 5. Add capacity rules and availability patterns

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "capacity-crunch"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Engine endpoints
  - factory/config.go: Clerkship JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridian/rotation-engine/engine"
	"github.com/meridian/rotation-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "capacity-crunch",
		Name:        "Capacity Crunch",
		Description: "Two students competing for a preceptor limited to one student per day",
	},
	{
		ID:          "team-continuity",
		Name:        "Team Continuity",
		Description: "Preceptor team with same-health-system continuity and admin approval",
	},
	{
		ID:          "elective-overrides",
		Name:        "Elective Overrides",
		Description: "Clerkship with required electives carrying their own settings",
	},
	{
		ID:          "fallback-chain",
		Name:        "Fallback Chain",
		Description: "Primary preceptors exhausted; team and global fallbacks take over",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.lastRunID = ""
	h.lastViolations = nil
	h.mu.Unlock()

	var err error
	switch req.ScenarioID {
	case "capacity-crunch":
		err = h.loadCapacityCrunchScenario(ctx)
	case "team-continuity":
		err = h.loadTeamContinuityScenario(ctx)
	case "elective-overrides":
		err = h.loadElectiveOverridesScenario(ctx)
	case "fallback-chain":
		err = h.loadFallbackChainScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.lastRunID = ""
	h.lastViolations = nil
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedBase creates the shared health systems, sites, and students that
// every scenario starts from.
func (h *Handler) seedBase(ctx context.Context) error {
	systems := []engine.HealthSystem{
		{ID: "hs-north", Name: "Northlake Health"},
		{ID: "hs-south", Name: "Southgate Medical"},
	}
	for _, s := range systems {
		if err := h.Store.SaveHealthSystem(ctx, s); err != nil {
			return err
		}
	}

	sites := []engine.Site{
		{ID: "site-north-1", Name: "Northlake Main Campus", HealthSystemID: "hs-north"},
		{ID: "site-north-2", Name: "Northlake Family Clinic", HealthSystemID: "hs-north"},
		{ID: "site-south-1", Name: "Southgate Hospital", HealthSystemID: "hs-south"},
	}
	for _, s := range sites {
		if err := h.Store.SaveSite(ctx, s); err != nil {
			return err
		}
	}

	students := []engine.Student{
		{ID: "stu-001", Name: "Alice Chen", Email: "alice@example.edu"},
		{ID: "stu-002", Name: "Ben Ortiz", Email: "ben@example.edu"},
		{ID: "stu-003", Name: "Carla Novak", Email: "carla@example.edu"},
	}
	for _, s := range students {
		if err := h.Store.SaveStudent(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// seedPreceptor saves a preceptor with an everyday weekly pattern.
func (h *Handler) seedPreceptor(ctx context.Context, p engine.Preceptor) error {
	if err := h.Store.SavePreceptor(ctx, p); err != nil {
		return err
	}
	return h.Store.SavePattern(ctx, engine.AvailabilityPattern{
		ID:          "pat-" + string(p.ID),
		PreceptorID: p.ID,
		Enabled:     true,
		Kind:        engine.RecurWeekly,
		Weekdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	})
}

// seedClerkship parses a config document and persists the result.
func (h *Handler) seedClerkship(ctx context.Context, configJSON string) (*factory.ClerkshipConfig, error) {
	cfg, err := h.Factory.ParseClerkship(configJSON)
	if err != nil {
		return nil, err
	}
	if err := h.Store.SaveClerkship(ctx, cfg.Clerkship); err != nil {
		return nil, err
	}
	for _, r := range cfg.Requirements {
		if err := h.Store.SaveRequirement(ctx, r); err != nil {
			return nil, err
		}
	}
	for _, e := range cfg.Electives {
		if err := h.Store.SaveElective(ctx, e); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadCapacityCrunchScenario: one clerkship, one primary preceptor
// capped at a single student per day. Scheduling two students over the
// same range forces contention and capacity violations.
func (h *Handler) loadCapacityCrunchScenario(ctx context.Context) error {
	if err := h.seedBase(ctx); err != nil {
		return err
	}

	cfg, err := h.seedClerkship(ctx, factory.CoreClerkshipJSON(
		"clk-im", "Internal Medicine", "internal medicine", 5, 5))
	if err != nil {
		return err
	}

	preceptor := engine.Preceptor{
		ID:             "prec-hart",
		Name:           "Dr. Miriam Hart",
		Specialty:      "internal medicine",
		HealthSystemID: "hs-north",
		SiteIDs:        []engine.SiteID{"site-north-1"},
	}
	if err := h.seedPreceptor(ctx, preceptor); err != nil {
		return err
	}
	if err := h.Store.LinkPreceptor(ctx, cfg.Clerkship.ID, preceptor.ID); err != nil {
		return err
	}

	return h.Store.SaveCapacityRule(ctx, engine.CapacityRule{
		ID:                 "cap-hart",
		PreceptorID:        preceptor.ID,
		MaxStudentsPerDay:  1,
		MaxStudentsPerYear: 40,
	})
}

// loadTeamContinuityScenario: a same-health-system team requiring admin
// approval, plus a lone preceptor in the other system to show the
// continuity rule rejecting mixed teams.
func (h *Handler) loadTeamContinuityScenario(ctx context.Context) error {
	if err := h.seedBase(ctx); err != nil {
		return err
	}

	cfg, err := h.seedClerkship(ctx, factory.CoreClerkshipJSON(
		"clk-peds", "Pediatrics", "pediatrics", 10, 5))
	if err != nil {
		return err
	}

	preceptors := []engine.Preceptor{
		{ID: "prec-iyer", Name: "Dr. Asha Iyer", Specialty: "pediatrics",
			HealthSystemID: "hs-north", SiteIDs: []engine.SiteID{"site-north-1"}},
		{ID: "prec-kim", Name: "Dr. Daniel Kim", Specialty: "pediatrics",
			HealthSystemID: "hs-north", SiteIDs: []engine.SiteID{"site-north-1", "site-north-2"}},
		{ID: "prec-ruiz", Name: "Dr. Elena Ruiz", Specialty: "pediatrics",
			HealthSystemID: "hs-south", SiteIDs: []engine.SiteID{"site-south-1"}},
	}
	for _, p := range preceptors {
		if err := h.seedPreceptor(ctx, p); err != nil {
			return err
		}
		if err := h.Store.LinkPreceptor(ctx, cfg.Clerkship.ID, p.ID); err != nil {
			return err
		}
		if err := h.Store.SaveCapacityRule(ctx, engine.CapacityRule{
			ID:                 "cap-" + string(p.ID),
			PreceptorID:        p.ID,
			MaxStudentsPerDay:  2,
			MaxStudentsPerYear: 60,
		}); err != nil {
			return err
		}
	}

	return h.Store.SaveTeam(ctx, engine.PreceptorTeam{
		ID:              "team-peds-north",
		Name:            "Northlake Pediatrics Team",
		ClerkshipID:     cfg.Clerkship.ID,
		RequirementType: engine.RequirementInpatient,
		Members: []engine.TeamMember{
			{PreceptorID: "prec-iyer", Priority: 1, Role: "lead"},
			{PreceptorID: "prec-kim", Priority: 2},
		},
		Continuity: engine.TeamContinuity{
			RequireSameHealthSystem: true,
			MinMembers:              2,
			MaxMembers:              4,
		},
		RequiresAdminApproval: true,
	})
}

// loadElectiveOverridesScenario: a clerkship whose required elective
// carries its own block strategy and preceptor scope.
func (h *Handler) loadElectiveOverridesScenario(ctx context.Context) error {
	if err := h.seedBase(ctx); err != nil {
		return err
	}

	cfg, err := h.seedClerkship(ctx, factory.ElectiveClerkshipJSON(
		"clk-surg", "Surgery", "surgery", "elec-trauma", "Trauma Service", 3))
	if err != nil {
		return err
	}

	preceptors := []engine.Preceptor{
		{ID: "prec-osei", Name: "Dr. Kwame Osei", Specialty: "surgery",
			HealthSystemID: "hs-north", SiteIDs: []engine.SiteID{"site-north-1"}},
		{ID: "prec-volk", Name: "Dr. Irina Volk", Specialty: "surgery",
			HealthSystemID: "hs-south", SiteIDs: []engine.SiteID{"site-south-1"}},
	}
	for _, p := range preceptors {
		if err := h.seedPreceptor(ctx, p); err != nil {
			return err
		}
		if err := h.Store.LinkPreceptor(ctx, cfg.Clerkship.ID, p.ID); err != nil {
			return err
		}
		if err := h.Store.SaveCapacityRule(ctx, engine.CapacityRule{
			ID:                 "cap-" + string(p.ID),
			PreceptorID:        p.ID,
			MaxStudentsPerDay:  2,
			MaxStudentsPerYear: 80,
		}); err != nil {
			return err
		}
	}

	// Scope the trauma elective to the southern trauma center.
	for _, e := range cfg.Electives {
		if e.ID == "elec-trauma" {
			e.SiteIDs = []engine.SiteID{"site-south-1"}
			e.PreceptorIDs = []engine.PreceptorID{"prec-volk"}
			if err := h.Store.SaveElective(ctx, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadFallbackChainScenario: a tightly capped primary, a fallback-only
// team member, and a global fallback in the same system. Scheduling more
// than the primary can hold walks the whole chain.
func (h *Handler) loadFallbackChainScenario(ctx context.Context) error {
	if err := h.seedBase(ctx); err != nil {
		return err
	}

	cfg, err := h.seedClerkship(ctx, factory.BlockClerkshipJSON(
		"clk-fm", "Family Medicine", "family medicine", 10, 5))
	if err != nil {
		return err
	}

	primary := engine.Preceptor{
		ID: "prec-adams", Name: "Dr. Nora Adams", Specialty: "family medicine",
		HealthSystemID: "hs-north", SiteIDs: []engine.SiteID{"site-north-2"},
	}
	backup := engine.Preceptor{
		ID: "prec-bell", Name: "Dr. Marcus Bell", Specialty: "family medicine",
		HealthSystemID: "hs-north", SiteIDs: []engine.SiteID{"site-north-2"},
	}
	floater := engine.Preceptor{
		ID: "prec-cruz", Name: "Dr. Sofia Cruz", Specialty: "family medicine",
		HealthSystemID: "hs-north", SiteIDs: []engine.SiteID{"site-north-1", "site-north-2"},
		IsGlobalFallbackOnly: true,
	}
	for _, p := range []engine.Preceptor{primary, backup, floater} {
		if err := h.seedPreceptor(ctx, p); err != nil {
			return err
		}
		if err := h.Store.LinkPreceptor(ctx, cfg.Clerkship.ID, p.ID); err != nil {
			return err
		}
	}

	rules := []engine.CapacityRule{
		{ID: "cap-adams", PreceptorID: "prec-adams", MaxStudentsPerDay: 1, MaxStudentsPerYear: 20},
		{ID: "cap-bell", PreceptorID: "prec-bell", MaxStudentsPerDay: 1, MaxStudentsPerYear: 30},
		{ID: "cap-cruz", PreceptorID: "prec-cruz", MaxStudentsPerDay: 2, MaxStudentsPerYear: 60},
	}
	for _, r := range rules {
		if err := h.Store.SaveCapacityRule(ctx, r); err != nil {
			return err
		}
	}

	return h.Store.SaveTeam(ctx, engine.PreceptorTeam{
		ID:              "team-fm",
		Name:            "Family Medicine Outpatient Team",
		ClerkshipID:     cfg.Clerkship.ID,
		RequirementType: engine.RequirementOutpatient,
		Members: []engine.TeamMember{
			{PreceptorID: "prec-adams", Priority: 1, Role: "lead"},
			{PreceptorID: "prec-bell", Priority: 2, IsFallbackOnly: true},
		},
		Continuity: engine.TeamContinuity{RequireSameHealthSystem: true},
	})
}
