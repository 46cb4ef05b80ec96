/*
fallback.go - Fallback chain resolution

PURPOSE:
  When a primary preceptor (or team) has no capacity or availability for
  a date, the engine walks an ordered fallback chain:
    1. Team members flagged fallback-only, in ascending priority order
    2. Global fallback preceptors, filtered by site / health-system
       compatibility with the primary unless cross-system is allowed
  The first candidate with both availability and remaining capacity wins.

EXHAUSTION:
  An exhausted chain returns nil, never an error. The caller records the
  day as unmet and moves on.

APPROVAL:
  If the resolved settings require approval for fallbacks, the chosen
  candidate is flagged; the assignment is still produced but marked
  pending approval rather than finalized.

SEE ALSO:
  - settings.go: FallbackAllowCrossSystem / FallbackRequiresApproval
  - scheduler.go: Invokes the chain after primaries are exhausted
*/
package engine

import (
	"context"
)

// =============================================================================
// FALLBACK REQUEST / CANDIDATE
// =============================================================================

// FallbackRequest describes one exhausted placement slot.
type FallbackRequest struct {
	StudentID       StudentID
	ClerkshipID     ClerkshipID
	RequirementType RequirementType
	Date            Date
	Range           DateRange
	Settings        Settings

	// Primary is the exhausted preceptor, used for compatibility
	// filtering of global fallbacks. May be nil when a whole team was
	// exhausted.
	Primary *Preceptor

	// Team is the team whose fallback-only members are tried first.
	// Nil when the requirement is not team-based.
	Team *PreceptorTeam
}

// FallbackCandidate is a chain hit.
type FallbackCandidate struct {
	Preceptor        *Preceptor
	FromTeam         bool
	RequiresApproval bool
}

// =============================================================================
// FALLBACK RESOLVER
// =============================================================================

// FallbackResolver walks the fallback chain for one run. It shares the
// run's availability resolver and capacity tracker so every candidate
// check sees capacity already consumed by earlier placements.
type FallbackResolver struct {
	Source       DataSource
	Availability *AvailabilityResolver
	Capacity     *CapacityResolver
	Tracker      *CapacityTracker
}

// Resolve returns the first eligible fallback for the slot, or nil when
// the chain is exhausted.
func (fr *FallbackResolver) Resolve(ctx context.Context, req FallbackRequest) (*FallbackCandidate, error) {
	// Phase 1: team-level fallback members, ascending priority.
	if req.Team != nil {
		for _, m := range req.Team.SortedMembers() {
			if !m.IsFallbackOnly {
				continue
			}
			if req.Primary != nil && m.PreceptorID == req.Primary.ID {
				continue
			}
			p, err := fr.Source.Preceptor(ctx, m.PreceptorID)
			if err != nil {
				return nil, err
			}
			ok, err := fr.canTake(ctx, p, req)
			if err != nil {
				return nil, err
			}
			if ok {
				return &FallbackCandidate{
					Preceptor:        p,
					FromTeam:         true,
					RequiresApproval: req.Settings.FallbackRequiresApproval || req.Team.RequiresAdminApproval,
				}, nil
			}
		}
	}

	// Phase 2: global fallback preceptors within the requirement scope.
	candidates, err := fr.Source.EligiblePreceptors(ctx, req.ClerkshipID, req.RequirementType)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		p := &candidates[i]
		if !p.IsGlobalFallbackOnly {
			continue
		}
		if req.Primary != nil && p.ID == req.Primary.ID {
			continue
		}
		if !req.Settings.FallbackAllowCrossSystem && !fr.compatible(p, req.Primary) {
			continue
		}
		ok, err := fr.canTake(ctx, p, req)
		if err != nil {
			return nil, err
		}
		if ok {
			return &FallbackCandidate{
				Preceptor:        p,
				RequiresApproval: req.Settings.FallbackRequiresApproval,
			}, nil
		}
	}

	// Chain exhausted. Surfaced as an unmet slot, not an error.
	return nil, nil
}

// compatible checks site / health-system compatibility with the primary.
// With no primary to compare against, any fallback is acceptable.
func (fr *FallbackResolver) compatible(candidate, primary *Preceptor) bool {
	if primary == nil {
		return true
	}
	if candidate.HealthSystemID != "" && candidate.HealthSystemID == primary.HealthSystemID {
		return true
	}
	for _, s := range candidate.SiteIDs {
		if primary.HasSite(s) {
			return true
		}
	}
	return false
}

func (fr *FallbackResolver) canTake(ctx context.Context, p *Preceptor, req FallbackRequest) (bool, error) {
	available, err := fr.Availability.ResolveSet(ctx, p.ID, req.Range)
	if err != nil {
		return false, err
	}
	if !available[req.Date] {
		return false, nil
	}

	capacity, err := fr.Capacity.Effective(ctx, p.ID, req.ClerkshipID, req.RequirementType)
	if err != nil {
		return false, err
	}
	return fr.Tracker.HasCapacity(p.ID, req.StudentID, req.Date, capacity, req.Settings.BlockLength), nil
}
