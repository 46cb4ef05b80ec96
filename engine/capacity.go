/*
capacity.go - Capacity rule precedence and run-scoped accounting

PURPOSE:
  Computes the effective student ceilings for a preceptor and tracks how
  much of that capacity a run has consumed. Rules live in a flat
  collection keyed by (preceptor, optional clerkship, optional
  requirement-type); the most specific matching rule wins.

PRECEDENCE (explicit specificity scoring, no polymorphic dispatch):
  (preceptor, clerkship, requirement-type)  score 3
  (preceptor, clerkship)                    score 2
  (preceptor, requirement-type)             score 1
  (preceptor)                               score 0
  Ties at equal score resolve to the first rule in source order.

ACCOUNTING:
  The CapacityTracker is seeded with persisted assignments (per-year and
  per-block ceilings span beyond one run) and updated after every
  placement. Exhausted capacity is reported as zero remaining, never as
  an error - the scheduler reacts by trying fallbacks.

CEILING SEMANTICS:
  MaxStudentsPerDay:   concurrent students on one calendar day
  MaxStudentsPerYear:  distinct students in one calendar year
  MaxStudentsPerBlock: distinct students within one block
  MaxBlocksPerYear:    distinct blocks hosting any student in one year

SEE ALSO:
  - types.go: CapacityRule and its validation invariants
  - scheduler.go: Consults Remaining() before every placement
*/
package engine

import (
	"context"
)

// =============================================================================
// EFFECTIVE CAPACITY
// =============================================================================

// EffectiveCapacity is the resolved ceiling set for one
// (preceptor, clerkship, requirement-type) query.
type EffectiveCapacity struct {
	PerDay        int
	PerYear       int
	PerBlock      *int
	BlocksPerYear *int

	// Unlimited is true when no rule matches the preceptor at all.
	Unlimited bool
}

// =============================================================================
// CAPACITY RESOLVER - Picks the most specific rule
// =============================================================================

// CapacityResolver selects effective capacity for a preceptor. Rule sets
// are memoized per preceptor for the life of the resolver (one run).
type CapacityResolver struct {
	Source DataSource

	memo map[PreceptorID][]CapacityRule
}

func NewCapacityResolver(source DataSource) *CapacityResolver {
	return &CapacityResolver{Source: source, memo: make(map[PreceptorID][]CapacityRule)}
}

// Effective returns the ceilings for the preceptor in the given scope.
func (cr *CapacityResolver) Effective(ctx context.Context, preceptorID PreceptorID, clerkshipID ClerkshipID, t RequirementType) (EffectiveCapacity, error) {
	rules, ok := cr.memo[preceptorID]
	if !ok {
		var err error
		rules, err = cr.Source.CapacityRules(ctx, preceptorID)
		if err != nil {
			return EffectiveCapacity{}, err
		}
		cr.memo[preceptorID] = rules
	}

	rule := SelectCapacityRule(rules, clerkshipID, t)
	if rule == nil {
		return EffectiveCapacity{Unlimited: true}, nil
	}
	return EffectiveCapacity{
		PerDay:        rule.MaxStudentsPerDay,
		PerYear:       rule.MaxStudentsPerYear,
		PerBlock:      rule.MaxStudentsPerBlock,
		BlocksPerYear: rule.MaxBlocksPerYear,
	}, nil
}

// SelectCapacityRule picks the single most specific matching rule, or nil
// when none match. Exported for rule-editing collaborators that preview
// which rule would apply.
func SelectCapacityRule(rules []CapacityRule, clerkshipID ClerkshipID, t RequirementType) *CapacityRule {
	var best *CapacityRule
	bestScore := -1

	for i := range rules {
		r := &rules[i]
		score, ok := ruleSpecificity(r, clerkshipID, t)
		if ok && score > bestScore {
			best = r
			bestScore = score
		}
	}
	return best
}

func ruleSpecificity(r *CapacityRule, clerkshipID ClerkshipID, t RequirementType) (int, bool) {
	score := 0
	if r.ClerkshipID != nil {
		if *r.ClerkshipID != clerkshipID {
			return 0, false
		}
		score += 2
	}
	if r.RequirementType != nil {
		if *r.RequirementType != t {
			return 0, false
		}
		score++
	}
	return score, true
}

// =============================================================================
// CAPACITY TRACKER - Run-scoped usage accounting
// =============================================================================

type dayKey struct {
	preceptor PreceptorID
	date      Date
}

type yearKey struct {
	preceptor PreceptorID
	year      int
}

type blockKey struct {
	preceptor  PreceptorID
	blockStart Date
}

// CapacityTracker counts assignments against a preceptor's ceilings.
// Placements within a run are recorded immediately so every later
// decision sees the capacity consumed by earlier ones. Usage is
// reference counted per assignment so Release can undo a Record
// exactly. Not safe for concurrent use; one tracker per run.
type CapacityTracker struct {
	runRange DateRange

	perDay   map[dayKey]int
	perYear  map[yearKey]map[StudentID]int
	perBlock map[blockKey]map[StudentID]int

	// blocksInYear tracks which blocks a preceptor has hosted, per year.
	blocksInYear map[yearKey]map[Date]int
}

func NewCapacityTracker(runRange DateRange) *CapacityTracker {
	return &CapacityTracker{
		runRange:     runRange,
		perDay:       make(map[dayKey]int),
		perYear:      make(map[yearKey]map[StudentID]int),
		perBlock:     make(map[blockKey]map[StudentID]int),
		blocksInYear: make(map[yearKey]map[Date]int),
	}
}

// blockStart maps a date to its block's first day, relative to the run
// range start. Dates before the range (persisted history) fall into
// backward-extended blocks of the same length.
func (ct *CapacityTracker) blockStart(d Date, blockLength int) Date {
	if blockLength <= 0 {
		blockLength = DefaultSettings().BlockLength
	}
	offset := DaysBetween(ct.runRange.Start, d)
	idx := offset / blockLength
	if offset < 0 && offset%blockLength != 0 {
		idx--
	}
	return ct.runRange.Start.AddDays(idx * blockLength)
}

// Record accounts one assignment against the preceptor's usage.
func (ct *CapacityTracker) Record(a Assignment, blockLength int) {
	ct.perDay[dayKey{a.PreceptorID, a.Date}]++

	yk := yearKey{a.PreceptorID, a.Date.Year()}
	if ct.perYear[yk] == nil {
		ct.perYear[yk] = make(map[StudentID]int)
	}
	ct.perYear[yk][a.StudentID]++

	bs := ct.blockStart(a.Date, blockLength)
	bk := blockKey{a.PreceptorID, bs}
	if ct.perBlock[bk] == nil {
		ct.perBlock[bk] = make(map[StudentID]int)
	}
	ct.perBlock[bk][a.StudentID]++

	if ct.blocksInYear[yk] == nil {
		ct.blocksInYear[yk] = make(map[Date]int)
	}
	ct.blocksInYear[yk][bs]++
}

// Release undoes a Record. A student whose last assignment with the
// preceptor is released drops out of the year and block sets; the same
// goes for a block's last hosted day.
func (ct *CapacityTracker) Release(a Assignment, blockLength int) {
	k := dayKey{a.PreceptorID, a.Date}
	if ct.perDay[k] > 0 {
		ct.perDay[k]--
	}

	yk := yearKey{a.PreceptorID, a.Date.Year()}
	releaseStudent(ct.perYear[yk], a.StudentID)

	bs := ct.blockStart(a.Date, blockLength)
	releaseStudent(ct.perBlock[blockKey{a.PreceptorID, bs}], a.StudentID)

	if blocks := ct.blocksInYear[yk]; blocks != nil {
		if blocks[bs] > 1 {
			blocks[bs]--
		} else {
			delete(blocks, bs)
		}
	}
}

func releaseStudent(m map[StudentID]int, s StudentID) {
	if m == nil {
		return
	}
	if m[s] > 1 {
		m[s]--
	} else {
		delete(m, s)
	}
}

// Seed accounts persisted assignments so per-year and per-block ceilings
// see history from outside the run.
func (ct *CapacityTracker) Seed(assignments []Assignment, blockLength int) {
	for _, a := range assignments {
		ct.Record(a, blockLength)
	}
}

// Remaining computes how many more students the preceptor can take on
// the given date for this student, under the effective ceilings. Zero
// means exhausted; this is a normal outcome, not an error.
func (ct *CapacityTracker) Remaining(preceptorID PreceptorID, studentID StudentID, date Date, cap EffectiveCapacity, blockLength int) int {
	if cap.Unlimited {
		return 1
	}

	dayUsed := ct.perDay[dayKey{preceptorID, date}]
	remaining := cap.PerDay - dayUsed
	if remaining <= 0 {
		return 0
	}

	yk := yearKey{preceptorID, date.Year()}
	yearStudents := ct.perYear[yk]
	if _, counted := yearStudents[studentID]; !counted && len(yearStudents) >= cap.PerYear {
		return 0
	}

	if cap.PerBlock != nil {
		bs := ct.blockStart(date, blockLength)
		blockStudents := ct.perBlock[blockKey{preceptorID, bs}]
		if _, counted := blockStudents[studentID]; !counted && len(blockStudents) >= *cap.PerBlock {
			return 0
		}
		if cap.BlocksPerYear != nil {
			blocks := ct.blocksInYear[yk]
			if _, used := blocks[bs]; !used && len(blocks) >= *cap.BlocksPerYear {
				return 0
			}
		}
	}

	return remaining
}

// HasCapacity is the boolean form of Remaining.
func (ct *CapacityTracker) HasCapacity(preceptorID PreceptorID, studentID StudentID, date Date, cap EffectiveCapacity, blockLength int) bool {
	return ct.Remaining(preceptorID, studentID, date, cap, blockLength) > 0
}

// DayCount returns how many students the preceptor has on a date. Used
// by reporting and the invariant tests.
func (ct *CapacityTracker) DayCount(preceptorID PreceptorID, date Date) int {
	return ct.perDay[dayKey{preceptorID, date}]
}
