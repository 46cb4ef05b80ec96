/*
violations.go - Append-only constraint violation log

PURPOSE:
  Every rule breach or shortfall a run encounters is recorded here: a
  day with no capacity, an invalid team, an exhausted fallback chain.
  Violations are diagnostics, not control flow - recording one never
  aborts anything.

DESIGN:
  The log is a plain sequential container. Stats are recomputed from the
  live log on every call rather than maintained incrementally: the log
  mutates throughout a run and freshness is worth more than caching
  here. This keeps the aggregation semantics obviously correct.

LIFECYCLE:
  A tracker is scoped to one run. It is mutated throughout the run and
  must not be shared across concurrent runs without isolation, since its
  counts are run-scoped. Export() returns an independent copy; later
  mutations never retroactively change an exported snapshot.

SEE ALSO:
  - scheduler.go: The only writer during a run
  - api/handlers.go: Violation report endpoint
*/
package engine

import (
	"sort"
	"time"
)

// =============================================================================
// VIOLATION - Append-only record, never mutated after creation
// =============================================================================

// Violation records one constraint breach against an assignment or
// candidate placement. Fields that don't apply stay zero (an unmet day
// has no preceptor).
type Violation struct {
	Constraint  string
	StudentID   StudentID
	PreceptorID PreceptorID
	ClerkshipID ClerkshipID
	Date        Date
	Reason      string
	Metadata    map[string]string
	RecordedAt  time.Time
}

// Well-known constraint names.
const (
	ConstraintNoCapacity        = "capacity_exhausted"
	ConstraintNoAvailability    = "no_availability"
	ConstraintUnmetDay          = "unmet_day"
	ConstraintInvalidTeam       = "invalid_team"
	ConstraintFallbackExhausted = "fallback_exhausted"
)

// =============================================================================
// VIOLATION TRACKER
// =============================================================================

// ViolationTracker is the run's append-only violation accumulator.
type ViolationTracker struct {
	entries []Violation

	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewViolationTracker() *ViolationTracker {
	return &ViolationTracker{now: time.Now}
}

// Record appends a timestamped entry. Duplicates are kept: two breaches
// of the same constraint are two entries.
func (vt *ViolationTracker) Record(constraint string, candidate Assignment, reason string, metadata map[string]string) {
	vt.entries = append(vt.entries, Violation{
		Constraint:  constraint,
		StudentID:   candidate.StudentID,
		PreceptorID: candidate.PreceptorID,
		ClerkshipID: candidate.ClerkshipID,
		Date:        candidate.Date,
		Reason:      reason,
		Metadata:    copyMetadata(metadata),
		RecordedAt:  vt.now(),
	})
}

// Total returns the number of recorded entries. Always equals
// len(Export()).
func (vt *ViolationTracker) Total() int { return len(vt.entries) }

// Clear resets all state; subsequent recordings start from zero.
func (vt *ViolationTracker) Clear() { vt.entries = nil }

// Export returns an independent copy of the log. Mutating the tracker
// afterwards does not change the exported snapshot.
func (vt *ViolationTracker) Export() []Violation {
	out := make([]Violation, len(vt.entries))
	for i, v := range vt.entries {
		v.Metadata = copyMetadata(v.Metadata)
		out[i] = v
	}
	return out
}

// =============================================================================
// AGGREGATION - Recomputed on demand from the live log
// =============================================================================

// ConstraintStats aggregates one constraint's entries.
type ConstraintStats struct {
	Constraint string
	Count      int

	// Distinct affected students/preceptors/dates, in first-seen order.
	Students   []StudentID
	Preceptors []PreceptorID
	Dates      []Date

	Entries []Violation
}

// StatsByConstraint groups entries by constraint name, in first-seen
// order. Recomputed from the log on every call.
func (vt *ViolationTracker) StatsByConstraint() []ConstraintStats {
	index := make(map[string]int)
	var stats []ConstraintStats

	for _, v := range vt.entries {
		i, ok := index[v.Constraint]
		if !ok {
			i = len(stats)
			index[v.Constraint] = i
			stats = append(stats, ConstraintStats{Constraint: v.Constraint})
		}
		s := &stats[i]
		s.Count++
		s.Entries = append(s.Entries, v)
		if v.StudentID != "" && !containsStudent(s.Students, v.StudentID) {
			s.Students = append(s.Students, v.StudentID)
		}
		if v.PreceptorID != "" && !containsPreceptor(s.Preceptors, v.PreceptorID) {
			s.Preceptors = append(s.Preceptors, v.PreceptorID)
		}
		if !v.Date.IsZero() && !containsDate(s.Dates, v.Date) {
			s.Dates = append(s.Dates, v.Date)
		}
	}
	return stats
}

// ConstraintCount is one entry in the top-violations ranking.
type ConstraintCount struct {
	Constraint string
	Count      int
}

// TopViolations returns up to n constraint names ranked by descending
// count, ties broken by first-seen order.
func (vt *ViolationTracker) TopViolations(n int) []ConstraintCount {
	stats := vt.StatsByConstraint()
	counts := make([]ConstraintCount, len(stats))
	for i, s := range stats {
		counts[i] = ConstraintCount{Constraint: s.Constraint, Count: s.Count}
	}
	// stats is already in first-seen order; a stable sort preserves the
	// tie-break.
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if n >= 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func containsStudent(s []StudentID, id StudentID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func containsPreceptor(s []PreceptorID, id PreceptorID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func containsDate(s []Date, d Date) bool {
	for _, v := range s {
		if v.Equal(d) {
			return true
		}
	}
	return false
}
