package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian/rotation-engine/engine"
)

func strategyPtr(s engine.AssignmentStrategy) *engine.AssignmentStrategy { return &s }
func intPtr(n int) *int                                                 { return &n }
func boolPtr(b bool) *bool                                              { return &b }

// =============================================================================
// CASCADE RESOLUTION
// =============================================================================

func TestSettings_InheritKeepsClerkshipLayer(t *testing.T) {
	// GIVEN: A clerkship layer diverging from the defaults
	// WHEN: The requirement inherits
	// THEN: The clerkship layer passes through untouched

	clerkship := engine.DefaultSettings()
	clerkship.Strategy = engine.StrategyBlock
	clerkship.BlockLength = 10

	req := &engine.Requirement{
		ClerkshipID:  "clk-1",
		Type:         engine.RequirementInpatient,
		OverrideMode: engine.OverrideInherit,
	}

	resolved := engine.ResolveSettings(clerkship, req, nil)
	assert.Equal(t, clerkship, resolved)
}

func TestSettings_OverrideFieldsMergesOverParent(t *testing.T) {
	clerkship := engine.DefaultSettings()
	clerkship.Strategy = engine.StrategyBlock
	clerkship.BlockLength = 10

	req := &engine.Requirement{
		ClerkshipID:  "clk-1",
		Type:         engine.RequirementOutpatient,
		OverrideMode: engine.OverrideFields,
		Overrides: engine.SettingsPatch{
			BlockLength:     intPtr(3),
			EnableFallbacks: boolPtr(false),
		},
	}

	resolved := engine.ResolveSettings(clerkship, req, nil)

	// Patched fields take the patch value, the rest keep the parent's.
	assert.Equal(t, 3, resolved.BlockLength)
	assert.False(t, resolved.EnableFallbacks)
	assert.Equal(t, engine.StrategyBlock, resolved.Strategy)
}

func TestSettings_OverrideSectionRestartsFromDefaults(t *testing.T) {
	// GIVEN: A clerkship layer that changed the strategy and block length
	// WHEN: The requirement uses override_section with only one field set
	// THEN: Unset fields come from the global defaults, not the clerkship

	clerkship := engine.DefaultSettings()
	clerkship.Strategy = engine.StrategyBlock
	clerkship.BlockLength = 10
	clerkship.EnableTeamFormation = true

	req := &engine.Requirement{
		ClerkshipID:  "clk-1",
		Type:         engine.RequirementInpatient,
		OverrideMode: engine.OverrideSection,
		Overrides: engine.SettingsPatch{
			BlockLength: intPtr(7),
		},
	}

	resolved := engine.ResolveSettings(clerkship, req, nil)
	defaults := engine.DefaultSettings()

	assert.Equal(t, 7, resolved.BlockLength)
	assert.Equal(t, defaults.Strategy, resolved.Strategy)
	assert.Equal(t, defaults.EnableTeamFormation, resolved.EnableTeamFormation)
}

func TestSettings_ElectiveOverrideLayersOnRequirement(t *testing.T) {
	clerkship := engine.DefaultSettings()

	req := &engine.Requirement{
		ClerkshipID:  "clk-1",
		Type:         engine.RequirementElective,
		OverrideMode: engine.OverrideFields,
		Overrides: engine.SettingsPatch{
			Strategy:    strategyPtr(engine.StrategyBlock),
			BlockLength: intPtr(4),
		},
	}
	elective := &engine.Elective{
		ID:           "elec-1",
		ClerkshipID:  "clk-1",
		OverrideMode: engine.OverrideSimple,
		Overrides: engine.SettingsPatch{
			BlockLength: intPtr(2),
		},
	}

	resolved := engine.ResolveSettings(clerkship, req, elective)

	// The elective patch applies over the requirement layer.
	assert.Equal(t, 2, resolved.BlockLength)
	assert.Equal(t, engine.StrategyBlock, resolved.Strategy)
}

func TestSettings_ElectiveInheritKeepsRequirementLayer(t *testing.T) {
	clerkship := engine.DefaultSettings()

	req := &engine.Requirement{
		ClerkshipID:  "clk-1",
		Type:         engine.RequirementElective,
		OverrideMode: engine.OverrideFields,
		Overrides:    engine.SettingsPatch{EnableFallbacks: boolPtr(false)},
	}
	elective := &engine.Elective{
		ID:           "elec-1",
		ClerkshipID:  "clk-1",
		OverrideMode: engine.OverrideInherit,
	}

	resolved := engine.ResolveSettings(clerkship, req, elective)
	assert.False(t, resolved.EnableFallbacks)
}

func TestSettings_UnknownModeTreatedAsInherit(t *testing.T) {
	clerkship := engine.DefaultSettings()
	clerkship.BlockLength = 8

	req := &engine.Requirement{
		ClerkshipID:  "clk-1",
		Type:         engine.RequirementInpatient,
		OverrideMode: engine.OverrideMode("bogus"),
		Overrides:    engine.SettingsPatch{BlockLength: intPtr(1)},
	}

	resolved := engine.ResolveSettings(clerkship, req, nil)
	assert.Equal(t, 8, resolved.BlockLength)
}

// =============================================================================
// PATCH MECHANICS
// =============================================================================

func TestSettings_EmptyPatchIsNoop(t *testing.T) {
	base := engine.DefaultSettings()
	var patch engine.SettingsPatch

	assert.True(t, patch.IsEmpty())
	assert.Equal(t, base, patch.ApplyTo(base))
}

func TestSettings_PatchDistinguishesFalseFromUnset(t *testing.T) {
	base := engine.DefaultSettings()
	base.PreferSamePreceptor = true

	patch := engine.SettingsPatch{PreferSamePreceptor: boolPtr(false)}
	assert.False(t, patch.IsEmpty())
	assert.False(t, patch.ApplyTo(base).PreferSamePreceptor)
}
