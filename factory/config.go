/*
Package factory provides JSON to Go clerkship configuration conversion.

PURPOSE:
  Converts JSON clerkship definitions into engine.Clerkship,
  engine.Requirement and engine.Elective values. Program administrators
  can define rotations in JSON without code changes; the factory builds
  the proper Go structs and applies defaults.

JSON SCHEMA:
  {
    "id": "fm-core",
    "name": "Family Medicine Core",
    "specialty": "family medicine",
    "settings": {
      "strategy": "block",
      "block_length": 5,
      "enable_fallbacks": true
    },
    "requirements": [
      {"type": "inpatient", "days": 10},
      {"type": "outpatient", "days": 15, "override_mode": "override_fields",
       "overrides": {"strategy": "daily"}}
    ],
    "electives": [
      {"id": "fm-sports", "name": "Sports Medicine", "min_days": 3,
       "required": true, "override_mode": "override",
       "overrides": {"enable_team_formation": false}}
    ]
  }

KEY FEATURES:
  - Validates structure and override modes
  - Applies the global default settings underneath each clerkship
  - Ships presets the demo scenarios and tests build on

USAGE:
  f := factory.NewConfigFactory()
  cfg, err := f.ParseClerkship(jsonStr)
  // cfg.Clerkship, cfg.Requirements, cfg.Electives

SEE ALSO:
  - engine/settings.go: Settings, SettingsPatch and the cascade
  - api/scenarios.go: Demo datasets built from presets
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/meridian/rotation-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ClerkshipJSON is the JSON representation of a clerkship and its
// requirement structure.
type ClerkshipJSON struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Specialty    string            `json:"specialty,omitempty"`
	Settings     *SettingsJSON     `json:"settings,omitempty"`
	Requirements []RequirementJSON `json:"requirements"`
	Electives    []ElectiveJSON    `json:"electives,omitempty"`
}

// SettingsJSON is a settings layer; absent fields inherit.
type SettingsJSON struct {
	Strategy         *string `json:"strategy,omitempty"` // block, daily
	HealthSystemRule *string `json:"health_system_rule,omitempty"`
	BlockLength      *int    `json:"block_length,omitempty"`

	AllowSplitAssignment *bool `json:"allow_split_assignment,omitempty"`
	PreferSamePreceptor  *bool `json:"prefer_same_preceptor,omitempty"`
	PreferSameSite       *bool `json:"prefer_same_site,omitempty"`

	EnableTeamFormation *bool `json:"enable_team_formation,omitempty"`
	EnableFallbacks     *bool `json:"enable_fallbacks,omitempty"`

	FallbackAllowCrossSystem *bool `json:"fallback_allow_cross_system,omitempty"`
	FallbackRequiresApproval *bool `json:"fallback_requires_approval,omitempty"`
}

type RequirementJSON struct {
	Type         string        `json:"type"` // inpatient, outpatient, elective
	Days         int           `json:"days"`
	OverrideMode string        `json:"override_mode,omitempty"`
	Overrides    *SettingsJSON `json:"overrides,omitempty"`
}

type ElectiveJSON struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	MinDays      int           `json:"min_days"`
	Required     bool          `json:"required"`
	SiteIDs      []string      `json:"site_ids,omitempty"`
	PreceptorIDs []string      `json:"preceptor_ids,omitempty"`
	OverrideMode string        `json:"override_mode,omitempty"` // inherit, override
	Overrides    *SettingsJSON `json:"overrides,omitempty"`
}

// ClerkshipConfig is the parsed result.
type ClerkshipConfig struct {
	Clerkship    engine.Clerkship
	Requirements []engine.Requirement
	Electives    []engine.Elective
}

// =============================================================================
// CONFIG FACTORY
// =============================================================================

type ConfigFactory struct{}

func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{}
}

// ParseClerkship parses a JSON document into a ClerkshipConfig.
func (f *ConfigFactory) ParseClerkship(jsonStr string) (*ClerkshipConfig, error) {
	var cj ClerkshipJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse clerkship JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts ClerkshipJSON into engine types.
func (f *ConfigFactory) FromJSON(cj ClerkshipJSON) (*ClerkshipConfig, error) {
	if cj.ID == "" || cj.Name == "" {
		return nil, engine.NewValidation("clerkship requires id and name", "id", "name")
	}

	settings := engine.DefaultSettings()
	if cj.Settings != nil {
		settings = patchFromJSON(*cj.Settings).ApplyTo(settings)
	}

	cfg := &ClerkshipConfig{
		Clerkship: engine.Clerkship{
			ID:        engine.ClerkshipID(cj.ID),
			Name:      cj.Name,
			Specialty: cj.Specialty,
			Settings:  settings,
		},
	}

	totalDays := 0
	for _, rj := range cj.Requirements {
		req, err := requirementFromJSON(cfg.Clerkship.ID, rj)
		if err != nil {
			return nil, err
		}
		totalDays += req.Days
		cfg.Requirements = append(cfg.Requirements, req)
	}
	cfg.Clerkship.RequiredDays = totalDays

	for _, ej := range cj.Electives {
		el, err := electiveFromJSON(cfg.Clerkship.ID, ej)
		if err != nil {
			return nil, err
		}
		cfg.Electives = append(cfg.Electives, el)
	}

	return cfg, nil
}

func requirementFromJSON(clerkshipID engine.ClerkshipID, rj RequirementJSON) (engine.Requirement, error) {
	t := engine.RequirementType(rj.Type)
	switch t {
	case engine.RequirementInpatient, engine.RequirementOutpatient, engine.RequirementElective:
	default:
		return engine.Requirement{}, engine.NewValidation(
			fmt.Sprintf("unknown requirement type %q", rj.Type), "requirements.type")
	}
	if rj.Days <= 0 {
		return engine.Requirement{}, engine.NewValidation("requirement days must be positive", "requirements.days")
	}

	mode, err := parseOverrideMode(rj.OverrideMode, false)
	if err != nil {
		return engine.Requirement{}, err
	}

	req := engine.Requirement{
		ClerkshipID:  clerkshipID,
		Type:         t,
		Days:         rj.Days,
		OverrideMode: mode,
	}
	if rj.Overrides != nil {
		req.Overrides = patchFromJSON(*rj.Overrides)
	}
	return req, nil
}

func electiveFromJSON(clerkshipID engine.ClerkshipID, ej ElectiveJSON) (engine.Elective, error) {
	if ej.ID == "" || ej.Name == "" {
		return engine.Elective{}, engine.NewValidation("elective requires id and name", "electives.id", "electives.name")
	}
	if ej.MinDays <= 0 {
		return engine.Elective{}, engine.NewValidation("elective min_days must be positive", "electives.min_days")
	}

	mode, err := parseOverrideMode(ej.OverrideMode, true)
	if err != nil {
		return engine.Elective{}, err
	}

	el := engine.Elective{
		ID:           engine.ElectiveID(ej.ID),
		ClerkshipID:  clerkshipID,
		Name:         ej.Name,
		MinDays:      ej.MinDays,
		Required:     ej.Required,
		OverrideMode: mode,
	}
	for _, s := range ej.SiteIDs {
		el.SiteIDs = append(el.SiteIDs, engine.SiteID(s))
	}
	for _, p := range ej.PreceptorIDs {
		el.PreceptorIDs = append(el.PreceptorIDs, engine.PreceptorID(p))
	}
	if ej.Overrides != nil {
		el.Overrides = patchFromJSON(*ej.Overrides)
	}
	return el, nil
}

// parseOverrideMode validates the mode for its layer: electives use the
// two-mode form (inherit/override), requirements the three-mode form.
func parseOverrideMode(s string, elective bool) (engine.OverrideMode, error) {
	if s == "" {
		return engine.OverrideInherit, nil
	}
	mode := engine.OverrideMode(s)
	if elective {
		if mode == engine.OverrideInherit || mode == engine.OverrideSimple {
			return mode, nil
		}
		return "", engine.NewValidation(fmt.Sprintf("invalid elective override mode %q", s), "override_mode")
	}
	switch mode {
	case engine.OverrideInherit, engine.OverrideFields, engine.OverrideSection:
		return mode, nil
	}
	return "", engine.NewValidation(fmt.Sprintf("invalid override mode %q", s), "override_mode")
}

func patchFromJSON(sj SettingsJSON) engine.SettingsPatch {
	patch := engine.SettingsPatch{
		BlockLength:              sj.BlockLength,
		AllowSplitAssignment:     sj.AllowSplitAssignment,
		PreferSamePreceptor:      sj.PreferSamePreceptor,
		PreferSameSite:           sj.PreferSameSite,
		EnableTeamFormation:      sj.EnableTeamFormation,
		EnableFallbacks:          sj.EnableFallbacks,
		FallbackAllowCrossSystem: sj.FallbackAllowCrossSystem,
		FallbackRequiresApproval: sj.FallbackRequiresApproval,
	}
	if sj.Strategy != nil {
		s := engine.AssignmentStrategy(*sj.Strategy)
		patch.Strategy = &s
	}
	if sj.HealthSystemRule != nil {
		h := engine.HealthSystemRule(*sj.HealthSystemRule)
		patch.HealthSystemRule = &h
	}
	return patch
}

// =============================================================================
// PRESETS - JSON builders used by scenarios and tests
// =============================================================================

// CoreClerkshipJSON builds a standard inpatient+outpatient clerkship.
func CoreClerkshipJSON(id, name, specialty string, inpatientDays, outpatientDays int) string {
	doc := ClerkshipJSON{
		ID:        id,
		Name:      name,
		Specialty: specialty,
		Requirements: []RequirementJSON{
			{Type: string(engine.RequirementInpatient), Days: inpatientDays},
			{Type: string(engine.RequirementOutpatient), Days: outpatientDays},
		},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// BlockClerkshipJSON builds a block-strategy clerkship with the given
// block length.
func BlockClerkshipJSON(id, name, specialty string, outpatientDays, blockLength int) string {
	strategy := string(engine.StrategyBlock)
	doc := ClerkshipJSON{
		ID:        id,
		Name:      name,
		Specialty: specialty,
		Settings:  &SettingsJSON{Strategy: &strategy, BlockLength: &blockLength},
		Requirements: []RequirementJSON{
			{Type: string(engine.RequirementOutpatient), Days: outpatientDays},
		},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// ElectiveClerkshipJSON builds a clerkship with one required elective.
func ElectiveClerkshipJSON(id, name, specialty string, electiveID, electiveName string, minDays int) string {
	doc := ClerkshipJSON{
		ID:        id,
		Name:      name,
		Specialty: specialty,
		Requirements: []RequirementJSON{
			{Type: string(engine.RequirementElective), Days: minDays},
		},
		Electives: []ElectiveJSON{
			{ID: electiveID, Name: electiveName, MinDays: minDays, Required: true},
		},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}
