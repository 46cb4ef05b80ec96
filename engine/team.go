/*
team.go - Team formation and continuity validation

PURPOSE:
  Groups of preceptors can jointly own a requirement. Before the
  scheduler commits a team it validates the prospective group against
  the team's continuity constraints (same health system, shared site,
  same specialty) and size bounds.

ERRORS vs WARNINGS:
  Errors block (IsValid = false); warnings do not. A member with no
  health system on file downgrades the same-health-system check to a
  warning for that member: missing data should not silently reject a
  team an administrator set up on purpose.

APPROVAL:
  RequiresAdminApproval never blocks. It surfaces as RequiresApproval
  in the result and flows through to the produced assignments as
  PendingApproval, signalling a downstream human step.

SEE ALSO:
  - types.go: PreceptorTeam, TeamMember, TeamContinuity
  - scheduler.go: Rejects invalid teams and tries the next candidate
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// TeamValidation is the advisory result of validating a prospective team.
// It has no side effects; the engine decides what to do with it.
type TeamValidation struct {
	IsValid          bool
	Errors           []string
	Warnings         []string
	RequiresApproval bool
}

// =============================================================================
// TEAM VALIDATOR
// =============================================================================

// TeamValidator checks teams against their continuity configuration.
// Preceptor lookups are memoized for the life of the validator (one run).
type TeamValidator struct {
	Source DataSource

	preceptors map[PreceptorID]*Preceptor
}

func NewTeamValidator(source DataSource) *TeamValidator {
	return &TeamValidator{Source: source, preceptors: make(map[PreceptorID]*Preceptor)}
}

// Validate checks the team for the given specialty context. Structural
// failures (unknown preceptor) return an error; constraint breaches are
// reported in the result.
func (tv *TeamValidator) Validate(ctx context.Context, team *PreceptorTeam, specialty string) (*TeamValidation, error) {
	result := &TeamValidation{RequiresApproval: team.RequiresAdminApproval}

	if len(team.Members) == 0 {
		result.Errors = append(result.Errors, "team must have at least one member")
		return finishValidation(result), nil
	}

	minMembers := team.Continuity.MinMembers
	if minMembers <= 0 {
		minMembers = 1
	}
	if len(team.Members) < minMembers {
		result.Errors = append(result.Errors,
			fmt.Sprintf("team has %d members, minimum is %d", len(team.Members), minMembers))
	}
	if team.Continuity.MaxMembers > 0 && len(team.Members) > team.Continuity.MaxMembers {
		result.Errors = append(result.Errors,
			fmt.Sprintf("team has %d members, maximum is %d", len(team.Members), team.Continuity.MaxMembers))
	}

	members := make([]*Preceptor, 0, len(team.Members))
	for _, m := range team.Members {
		p, err := tv.preceptor(ctx, m.PreceptorID)
		if err != nil {
			return nil, err
		}
		members = append(members, p)
	}

	if team.Continuity.RequireSameHealthSystem {
		tv.checkSameHealthSystem(members, result)
	}
	if team.Continuity.RequireSameSite {
		tv.checkSharedSite(members, result)
	}
	if team.Continuity.RequireSameSpecialty {
		tv.checkSpecialty(members, specialty, result)
	}

	return finishValidation(result), nil
}

func finishValidation(r *TeamValidation) *TeamValidation {
	r.IsValid = len(r.Errors) == 0
	return r
}

func (tv *TeamValidator) preceptor(ctx context.Context, id PreceptorID) (*Preceptor, error) {
	if p, ok := tv.preceptors[id]; ok {
		return p, nil
	}
	p, err := tv.Source.Preceptor(ctx, id)
	if err != nil {
		return nil, err
	}
	tv.preceptors[id] = p
	return p, nil
}

// =============================================================================
// CONTINUITY CHECKS
// =============================================================================

func (tv *TeamValidator) checkSameHealthSystem(members []*Preceptor, result *TeamValidation) {
	systems := make(map[HealthSystemID][]string)
	for _, p := range members {
		if p.HealthSystemID == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("preceptor %s has no health system on file", p.ID))
			continue
		}
		systems[p.HealthSystemID] = append(systems[p.HealthSystemID], string(p.ID))
	}
	if len(systems) > 1 {
		var parts []string
		for sys, ids := range systems {
			parts = append(parts, fmt.Sprintf("%s: %s", sys, strings.Join(ids, ",")))
		}
		sort.Strings(parts)
		result.Errors = append(result.Errors,
			"members span multiple health systems ("+strings.Join(parts, "; ")+")")
	}
}

func (tv *TeamValidator) checkSharedSite(members []*Preceptor, result *TeamValidation) {
	shared := make(map[SiteID]bool)
	for _, s := range members[0].SiteIDs {
		shared[s] = true
	}
	for _, p := range members[1:] {
		next := make(map[SiteID]bool)
		for _, s := range p.SiteIDs {
			if shared[s] {
				next[s] = true
			}
		}
		shared = next
		if len(shared) == 0 {
			break
		}
	}
	if len(shared) == 0 {
		result.Errors = append(result.Errors, "members do not share any site")
	}
}

func (tv *TeamValidator) checkSpecialty(members []*Preceptor, specialty string, result *TeamValidation) {
	if specialty == "" {
		return
	}
	for _, p := range members {
		if !strings.EqualFold(p.Specialty, specialty) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("preceptor %s specialty %q does not match required %q", p.ID, p.Specialty, specialty))
		}
	}
}
