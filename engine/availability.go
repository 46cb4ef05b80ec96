/*
availability.go - Expands availability patterns into concrete dates

PURPOSE:
  A preceptor's availability is stored as recurrence patterns (e.g.,
  "Mondays and Thursdays", "second Tuesday of each month") plus explicit
  add/remove exceptions. The resolver expands these into an ordered,
  deduplicated list of concrete dates within a range, minus global
  blackout dates.

PIPELINE:
  1. Expand each enabled pattern's recurrence over the range
  2. Apply the pattern's own exceptions (adds and carve-outs)
  3. Merge patterns, subtract blackout dates, clip to range
  4. Sort ascending, deduplicate

MEMOIZATION:
  Results are memoized per (preceptor, range, site scope) within a
  resolver instance. A resolver is scoped to a single run; configuration
  is a snapshot, so the memo can never go stale inside a run.

SEE ALSO:
  - types.go: AvailabilityPattern, AvailabilityException, BlackoutDate
  - scheduler.go: Consumes resolved dates per candidate preceptor
*/
package engine

import (
	"context"
	"sort"
	"strings"
)

// =============================================================================
// AVAILABILITY RESOLVER
// =============================================================================

// AvailabilityResolver expands patterns into concrete available dates.
// Not safe for concurrent use; create one per run.
type AvailabilityResolver struct {
	Source DataSource

	memo map[availabilityKey][]Date
}

type availabilityKey struct {
	preceptor PreceptorID
	start     Date
	end       Date
	sites     string
}

func NewAvailabilityResolver(source DataSource) *AvailabilityResolver {
	return &AvailabilityResolver{
		Source: source,
		memo:   make(map[availabilityKey][]Date),
	}
}

// Resolve returns the preceptor's available dates within the range,
// ascending and deduplicated. Returns NotFoundError if the preceptor
// does not exist.
func (ar *AvailabilityResolver) Resolve(ctx context.Context, preceptorID PreceptorID, r DateRange) ([]Date, error) {
	return ar.ResolveForSites(ctx, preceptorID, r, nil)
}

// ResolveForSites restricts expansion to patterns usable at one of the
// given sites. A pattern without a site applies everywhere; an empty
// site list means no restriction.
func (ar *AvailabilityResolver) ResolveForSites(ctx context.Context, preceptorID PreceptorID, r DateRange, sites []SiteID) ([]Date, error) {
	if !r.Valid() {
		return nil, NewValidation("invalid date range", "start_date", "end_date")
	}

	key := availabilityKey{preceptor: preceptorID, start: r.Start, end: r.End, sites: siteScopeKey(sites)}
	if cached, ok := ar.memo[key]; ok {
		out := make([]Date, len(cached))
		copy(out, cached)
		return out, nil
	}

	if _, err := ar.Source.Preceptor(ctx, preceptorID); err != nil {
		return nil, err
	}

	patterns, err := ar.Source.Patterns(ctx, preceptorID)
	if err != nil {
		return nil, err
	}
	blackouts, err := ar.Source.Blackouts(ctx, r)
	if err != nil {
		return nil, err
	}

	var dates []Date
	for _, p := range patterns {
		if !p.Enabled || !patternServesSites(p, sites) {
			continue
		}
		dates = append(dates, expandPattern(p, r)...)
	}

	dates = filterBlackouts(dates, blackouts)
	SortDates(dates)
	dates = DedupDates(dates)

	ar.memo[key] = dates

	out := make([]Date, len(dates))
	copy(out, dates)
	return out, nil
}

// ResolveSet is Resolve with set-membership output, for the scheduler's
// per-day checks.
func (ar *AvailabilityResolver) ResolveSet(ctx context.Context, preceptorID PreceptorID, r DateRange) (map[Date]bool, error) {
	return ar.ResolveSetForSites(ctx, preceptorID, r, nil)
}

// ResolveSetForSites is ResolveForSites with set-membership output.
func (ar *AvailabilityResolver) ResolveSetForSites(ctx context.Context, preceptorID PreceptorID, r DateRange, sites []SiteID) (map[Date]bool, error) {
	dates, err := ar.ResolveForSites(ctx, preceptorID, r, sites)
	if err != nil {
		return nil, err
	}
	set := make(map[Date]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set, nil
}

func siteScopeKey(sites []SiteID) string {
	if len(sites) == 0 {
		return ""
	}
	ss := make([]string, len(sites))
	for i, s := range sites {
		ss[i] = string(s)
	}
	sort.Strings(ss)
	return strings.Join(ss, ",")
}

func patternServesSites(p AvailabilityPattern, sites []SiteID) bool {
	if len(sites) == 0 || p.SiteID == "" {
		return true
	}
	for _, s := range sites {
		if s == p.SiteID {
			return true
		}
	}
	return false
}

// =============================================================================
// PATTERN EXPANSION
// =============================================================================

func expandPattern(p AvailabilityPattern, r DateRange) []Date {
	var dates []Date

	switch p.Kind {
	case RecurWeekly:
		for cur := r.Start; cur.BeforeOrEqual(r.End); cur = cur.AddDays(1) {
			for _, wd := range p.Weekdays {
				if cur.Weekday() == wd {
					dates = append(dates, cur)
					break
				}
			}
		}

	case RecurWeekdayOfMonth:
		for cur := r.Start; cur.BeforeOrEqual(r.End); cur = cur.AddDays(1) {
			if cur.Weekday() != p.Weekday {
				continue
			}
			if p.Ordinal == -1 {
				if cur.IsLastWeekdayOfMonth() {
					dates = append(dates, cur)
				}
			} else if cur.WeekdayOrdinal() == p.Ordinal {
				dates = append(dates, cur)
			}
		}

	case RecurExplicit:
		// Dates come solely from add-exceptions below.
	}

	return applyExceptions(dates, p.Exceptions, r)
}

func applyExceptions(dates []Date, exceptions []AvailabilityException, r DateRange) []Date {
	if len(exceptions) == 0 {
		return dates
	}

	removed := make(map[Date]bool)
	for _, ex := range exceptions {
		if !ex.Add {
			removed[ex.Date] = true
		}
	}

	out := dates[:0]
	for _, d := range dates {
		if !removed[d] {
			out = append(out, d)
		}
	}
	for _, ex := range exceptions {
		if ex.Add && r.Contains(ex.Date) && !removed[ex.Date] {
			out = append(out, ex.Date)
		}
	}
	return out
}

func filterBlackouts(dates []Date, blackouts []BlackoutDate) []Date {
	if len(blackouts) == 0 {
		return dates
	}
	out := dates[:0]
	for _, d := range dates {
		blocked := false
		for _, b := range blackouts {
			if b.Covers(d) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, d)
		}
	}
	return out
}
