/*
settings.go - Layered scheduling settings and override resolution

PURPOSE:
  Scheduling behavior is configured in layers: a global default, refined
  per clerkship, optionally overridden per requirement type, and finally
  per elective. This file resolves the layers into one flat Settings
  value the scheduler reads from.

OVERRIDE MODES:
  inherit:          The child layer contributes nothing; parent wins.
  override_fields:  Only the fields the child sets replace the parent's
                    (field-by-field, pointer-patch merge).
  override_section: The child replaces the whole section; unset child
                    fields fall back to the GLOBAL default, not the parent.
  override:         The elective two-mode form; same field-by-field
                    semantics as override_fields.

DESIGN:
  Settings is a plain value struct. Layers are SettingsPatch values with
  pointer fields, applied outer-to-inner with explicit precedence. There
  is no inheritance hierarchy and no polymorphism here on purpose: the
  merge must stay obviously correct.

EXAMPLE:
  resolved := engine.ResolveSettings(clerkship.Settings, &requirement, elective)
  if resolved.Strategy == engine.StrategyBlock { ... }

SEE ALSO:
  - scheduler.go: Reads the resolved settings per requirement
  - factory/config.go: Builds clerkship settings from JSON
*/
package engine

// =============================================================================
// SETTINGS - Flat, fully resolved configuration
// =============================================================================

// AssignmentStrategy selects how required days are laid out.
type AssignmentStrategy string

const (
	// StrategyBlock places days in contiguous runs of BlockLength with a
	// single preceptor per run where possible.
	StrategyBlock AssignmentStrategy = "block"

	// StrategyDaily places each day independently.
	StrategyDaily AssignmentStrategy = "daily"
)

// HealthSystemRule constrains which health systems may host a student.
type HealthSystemRule string

const (
	HealthSystemAny        HealthSystemRule = "any"
	HealthSystemSameAsSite HealthSystemRule = "same_system"
	HealthSystemPreferSame HealthSystemRule = "prefer_same"
)

// Settings is the fully resolved configuration a requirement is scheduled
// under. Every field has a concrete value after resolution.
type Settings struct {
	Strategy         AssignmentStrategy
	HealthSystemRule HealthSystemRule

	// BlockLength is the contiguous run size under StrategyBlock.
	BlockLength int

	// AllowSplitAssignment permits splitting a requirement's days across
	// multiple preceptors.
	AllowSplitAssignment bool

	// Continuity preferences: soft ordering hints, not hard constraints.
	PreferSamePreceptor bool
	PreferSameSite      bool

	EnableTeamFormation bool
	EnableFallbacks     bool

	FallbackAllowCrossSystem bool
	FallbackRequiresApproval bool
}

// DefaultSettings is the global root of the cascade.
func DefaultSettings() Settings {
	return Settings{
		Strategy:                 StrategyDaily,
		HealthSystemRule:         HealthSystemAny,
		BlockLength:              5,
		AllowSplitAssignment:     true,
		PreferSamePreceptor:      true,
		PreferSameSite:           false,
		EnableTeamFormation:      false,
		EnableFallbacks:          true,
		FallbackAllowCrossSystem: false,
		FallbackRequiresApproval: true,
	}
}

// =============================================================================
// OVERRIDE MODES
// =============================================================================

type OverrideMode string

const (
	OverrideInherit OverrideMode = "inherit"
	OverrideFields  OverrideMode = "override_fields"
	OverrideSection OverrideMode = "override_section"

	// OverrideSimple is the elective two-mode form ("override"):
	// field-by-field, same semantics as OverrideFields.
	OverrideSimple OverrideMode = "override"
)

// SettingsPatch is one layer of the cascade. Nil fields defer to the
// parent layer.
type SettingsPatch struct {
	Strategy         *AssignmentStrategy
	HealthSystemRule *HealthSystemRule
	BlockLength      *int

	AllowSplitAssignment *bool
	PreferSamePreceptor  *bool
	PreferSameSite       *bool

	EnableTeamFormation *bool
	EnableFallbacks     *bool

	FallbackAllowCrossSystem *bool
	FallbackRequiresApproval *bool
}

// IsEmpty reports whether the patch sets nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.Strategy == nil && p.HealthSystemRule == nil && p.BlockLength == nil &&
		p.AllowSplitAssignment == nil && p.PreferSamePreceptor == nil && p.PreferSameSite == nil &&
		p.EnableTeamFormation == nil && p.EnableFallbacks == nil &&
		p.FallbackAllowCrossSystem == nil && p.FallbackRequiresApproval == nil
}

// ApplyTo merges the patch over base, field-by-field.
func (p SettingsPatch) ApplyTo(base Settings) Settings {
	out := base
	if p.Strategy != nil {
		out.Strategy = *p.Strategy
	}
	if p.HealthSystemRule != nil {
		out.HealthSystemRule = *p.HealthSystemRule
	}
	if p.BlockLength != nil {
		out.BlockLength = *p.BlockLength
	}
	if p.AllowSplitAssignment != nil {
		out.AllowSplitAssignment = *p.AllowSplitAssignment
	}
	if p.PreferSamePreceptor != nil {
		out.PreferSamePreceptor = *p.PreferSamePreceptor
	}
	if p.PreferSameSite != nil {
		out.PreferSameSite = *p.PreferSameSite
	}
	if p.EnableTeamFormation != nil {
		out.EnableTeamFormation = *p.EnableTeamFormation
	}
	if p.EnableFallbacks != nil {
		out.EnableFallbacks = *p.EnableFallbacks
	}
	if p.FallbackAllowCrossSystem != nil {
		out.FallbackAllowCrossSystem = *p.FallbackAllowCrossSystem
	}
	if p.FallbackRequiresApproval != nil {
		out.FallbackRequiresApproval = *p.FallbackRequiresApproval
	}
	return out
}

// =============================================================================
// RESOLUTION - global default -> clerkship -> requirement -> elective
// =============================================================================

// ResolveSettings flattens the cascade for one requirement. Either of
// requirement/elective may be nil. Pure function; no I/O.
func ResolveSettings(clerkship Settings, requirement *Requirement, elective *Elective) Settings {
	resolved := clerkship

	if requirement != nil {
		resolved = applyLayer(resolved, requirement.OverrideMode, requirement.Overrides)
	}
	if elective != nil {
		resolved = applyLayer(resolved, elective.OverrideMode, elective.Overrides)
	}
	return resolved
}

func applyLayer(parent Settings, mode OverrideMode, patch SettingsPatch) Settings {
	switch mode {
	case OverrideFields, OverrideSimple:
		return patch.ApplyTo(parent)
	case OverrideSection:
		// Wholesale replacement: the section restarts from the global
		// default, ignoring the parent entirely.
		return patch.ApplyTo(DefaultSettings())
	default: // OverrideInherit or unset
		return parent
	}
}
