/*
scheduler.go - The scheduling engine orchestrator

PURPOSE:
  Places every student's clerkship requirements against eligible
  preceptors and teams over a date range, one deterministic sequential
  pass plus bounded retries. Pulls resolved settings and capacity from
  the settings/capacity resolvers, candidate dates from the availability
  resolver, team validation from the team validator, and fallback order
  from the fallback resolver; funnels every rule breach through the
  violation tracker.

STATE MACHINE (per student-requirement slot):
  Pending -> Searching -> { Satisfied | PartiallySatisfied | Unmet }

ORDERING (all deterministic):
  - Students: input order, stable
  - Requirements: inpatient, outpatient, elective
  - Days: chronological
  - Candidates at equal priority: ascending identifier (DataSource order)

PARTIAL FAILURE:
  A day that cannot be placed is recorded as a violation and the engine
  moves to the next day; a requirement that cannot be satisfied never
  blocks other requirements or students. Only structural errors
  (not-found, data source failure) abort a run.

DRY RUN:
  Identical computation, persistence skipped. Two dry runs over the same
  snapshot produce identical assignments and violations (timestamps
  aside); assignment IDs are deterministic composites for this reason.

SEE ALSO:
  - availability.go, settings.go, capacity.go, team.go, fallback.go,
    violations.go: The components this file orchestrates
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// OPTIONS AND RESULT
// =============================================================================

// Options configures one run.
type Options struct {
	Range DateRange

	EnableTeamFormation bool
	EnableFallbacks     bool

	// EnableOptimization is accepted and recorded but currently an
	// extension point: no optimization pass is performed.
	EnableOptimization bool

	// MaxRetriesPerStudent bounds re-attempts of unsatisfied slots after
	// every student has had a first pass.
	MaxRetriesPerStudent int

	// DryRun executes the identical algorithm without persisting.
	DryRun bool
}

// DefaultOptions enables team formation and fallbacks with one retry.
func DefaultOptions(start, end Date) Options {
	return Options{
		Range:                NewDateRange(start, end),
		EnableTeamFormation:  true,
		EnableFallbacks:      true,
		MaxRetriesPerStudent: 1,
	}
}

// RequirementStatus is the terminal state of one student-requirement slot.
type RequirementStatus string

const (
	StatusPending            RequirementStatus = "pending"
	StatusSearching          RequirementStatus = "searching"
	StatusSatisfied          RequirementStatus = "satisfied"
	StatusPartiallySatisfied RequirementStatus = "partially_satisfied"
	StatusUnmet              RequirementStatus = "unmet"
)

// RequirementOutcome reports the terminal state of one slot.
type RequirementOutcome struct {
	StudentID   StudentID
	ClerkshipID ClerkshipID
	Type        RequirementType
	ElectiveID  ElectiveID
	Status      RequirementStatus
	DaysNeeded  int
	DaysPlaced  int
}

// UnmetRequirement is one slot that ended below its required days.
type UnmetRequirement struct {
	StudentID   StudentID
	ClerkshipID ClerkshipID
	Type        RequirementType
	ElectiveID  ElectiveID
	DaysNeeded  int
	DaysPlaced  int
	DaysMissing int
}

// PendingApproval flags an assignment awaiting human sign-off.
type PendingApproval struct {
	AssignmentID AssignmentID
	StudentID    StudentID
	PreceptorID  PreceptorID
	Date         Date
	Reason       string
}

// Stats summarizes a run. Rates use exact decimal arithmetic.
type Stats struct {
	Students              int
	RequirementsAttempted int
	Satisfied             int
	PartiallySatisfied    int
	Unmet                 int
	TotalAssignments      int
	FallbackAssignments   int
	PendingApprovals      int
	DaysNeeded            int
	DaysPlaced            int
	FillRate              decimal.Decimal
	FallbackRate          decimal.Decimal
}

// Result is the output of Schedule, Reassign and Swap.
type Result struct {
	RunID             string
	Success           bool
	DryRun            bool
	Assignments       []Assignment
	UnmetRequirements []UnmetRequirement
	Outcomes          []RequirementOutcome
	Statistics        Stats
	Violations        []Violation
	PendingApprovals  []PendingApproval
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler is the engine entry point. Safe to reuse across runs; all
// mutable run state lives in a per-run context.
type Scheduler struct {
	Source DataSource
	Store  AssignmentStore
}

func NewScheduler(source DataSource, store AssignmentStore) *Scheduler {
	return &Scheduler{Source: source, Store: store}
}

// run bundles the per-invocation state. Capacity and the violation log
// are consulted and updated between successive placement decisions, so
// a later placement always sees what an earlier one consumed.
type run struct {
	source       DataSource
	opts         Options
	availability *AvailabilityResolver
	capacity     *CapacityResolver
	tracker      *CapacityTracker
	violations   *ViolationTracker
	teams        *TeamValidator

	assignments []Assignment
	approvals   []PendingApproval

	// studentDays enforces at most one assignment per (student, date).
	studentDays map[studentDayKey]bool
}

type studentDayKey struct {
	student StudentID
	date    Date
}

// slot is one (student, requirement) unit of work.
type slot struct {
	student     Student
	clerkship   *Clerkship
	requirement Requirement
	elective    *Elective

	settings Settings
	needed   int
	placed   int
	status   RequirementStatus

	// lastPreceptor supports the same-preceptor continuity preference
	// and the no-split constraint.
	lastPreceptor PreceptorID

	// healthSystem pins the slot's health system once the first
	// placement decides it, under HealthSystemSameAsSite.
	healthSystem HealthSystemID

	// reportedDays and rejectedTeams keep retry passes from logging the
	// same violation twice.
	reportedDays  map[Date]bool
	rejectedTeams map[TeamID]bool
}

// siteScope is the site restriction placements must honor, if any.
func (sl *slot) siteScope() []SiteID {
	if sl.elective != nil {
		return sl.elective.SiteIDs
	}
	return nil
}

// Schedule runs the engine for the given students and clerkships.
func (s *Scheduler) Schedule(ctx context.Context, studentIDs []StudentID, clerkshipIDs []ClerkshipID, opts Options) (*Result, error) {
	if !opts.Range.Valid() {
		return nil, NewValidation("invalid scheduling range", "start_date", "end_date")
	}
	if !opts.DryRun && s.Store == nil {
		return nil, NewValidation("persistence is not configured; use dry run", "dry_run")
	}

	r := &run{
		source:       s.Source,
		opts:         opts,
		availability: NewAvailabilityResolver(s.Source),
		capacity:     NewCapacityResolver(s.Source),
		tracker:      NewCapacityTracker(opts.Range),
		violations:   NewViolationTracker(),
		teams:        NewTeamValidator(s.Source),
		studentDays:  make(map[studentDayKey]bool),
	}

	if err := r.seed(ctx); err != nil {
		return nil, err
	}

	slots, err := r.buildSlots(ctx, studentIDs, clerkshipIDs)
	if err != nil {
		return nil, err
	}

	// First pass: every slot, input order.
	for i := range slots {
		if err := r.attempt(ctx, &slots[i]); err != nil {
			return nil, err
		}
	}

	// Bounded retries: capacity may have freed up where other students
	// failed earlier placements.
	for retry := 0; retry < opts.MaxRetriesPerStudent; retry++ {
		progressed := false
		for i := range slots {
			sl := &slots[i]
			if sl.placed >= sl.needed {
				continue
			}
			before := sl.placed
			if err := r.attempt(ctx, sl); err != nil {
				return nil, err
			}
			if sl.placed > before {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	for i := range slots {
		slots[i].finish()
	}

	if !opts.DryRun && len(r.assignments) > 0 {
		if err := s.Store.SaveAssignments(ctx, r.assignments); err != nil {
			return nil, &DataSourceError{Op: "save assignments", Err: err}
		}
	}

	return buildResult(r, slots, len(studentIDs)), nil
}

// seed accounts persisted assignments so per-year/per-block ceilings and
// the one-place-per-day invariant see history from outside the run.
func (r *run) seed(ctx context.Context) error {
	span := DateRange{
		Start: StartOfYear(r.opts.Range.Start.Year()),
		End:   EndOfYear(r.opts.Range.End.Year()),
	}
	persisted, err := r.source.AssignmentsInRange(ctx, span)
	if err != nil {
		return &DataSourceError{Op: "load persisted assignments", Err: err}
	}
	r.tracker.Seed(persisted, DefaultSettings().BlockLength)
	for _, a := range persisted {
		r.studentDays[studentDayKey{a.StudentID, a.Date}] = true
	}
	return nil
}

// buildSlots expands (students x clerkships x requirements) into work
// units. Required electives become their own slots; elective days they
// do not claim stay on a generic slot for the requirement.
func (r *run) buildSlots(ctx context.Context, studentIDs []StudentID, clerkshipIDs []ClerkshipID) ([]slot, error) {
	var slots []slot

	for _, sid := range studentIDs {
		student, err := r.source.Student(ctx, sid)
		if err != nil {
			return nil, err
		}

		for _, cid := range clerkshipIDs {
			clerkship, err := r.source.Clerkship(ctx, cid)
			if err != nil {
				return nil, err
			}
			reqs, err := r.source.Requirements(ctx, cid)
			if err != nil {
				return nil, err
			}

			for _, want := range RequirementOrder {
				for i := range reqs {
					req := reqs[i]
					if req.Type != want || req.Days <= 0 {
						continue
					}

					if req.Type == RequirementElective {
						electiveSlots, err := r.electiveSlots(ctx, *student, clerkship, req)
						if err != nil {
							return nil, err
						}
						slots = append(slots, electiveSlots...)
						continue
					}

					slots = append(slots, slot{
						student:     *student,
						clerkship:   clerkship,
						requirement: req,
						settings:    ResolveSettings(clerkship.Settings, &req, nil),
						needed:      req.Days,
						status:      StatusPending,
					})
				}
			}
		}
	}
	return slots, nil
}

func (r *run) electiveSlots(ctx context.Context, student Student, clerkship *Clerkship, req Requirement) ([]slot, error) {
	electives, err := r.source.Electives(ctx, clerkship.ID)
	if err != nil {
		return nil, err
	}

	var slots []slot
	claimed := 0
	for i := range electives {
		el := electives[i]
		if !el.Required || el.MinDays <= 0 {
			continue
		}
		claimed += el.MinDays
		slots = append(slots, slot{
			student:     student,
			clerkship:   clerkship,
			requirement: req,
			elective:    &electives[i],
			settings:    ResolveSettings(clerkship.Settings, &req, &el),
			needed:      el.MinDays,
			status:      StatusPending,
		})
	}

	// The requirement's remaining days are still owed even when required
	// electives claim part of the total.
	if remainder := req.Days - claimed; remainder > 0 {
		slots = append(slots, slot{
			student:     student,
			clerkship:   clerkship,
			requirement: req,
			settings:    ResolveSettings(clerkship.Settings, &req, nil),
			needed:      remainder,
			status:      StatusPending,
		})
	}
	return slots, nil
}

// =============================================================================
// PLACEMENT
// =============================================================================

// attempt walks the range chronologically and fills the slot's remaining
// days. Shortfalls are recorded, never returned as errors.
func (r *run) attempt(ctx context.Context, sl *slot) error {
	sl.status = StatusSearching

	candidates, team, err := r.candidatesFor(ctx, sl)
	if err != nil {
		return err
	}

	for _, day := range r.opts.Range.Days() {
		if sl.placed >= sl.needed {
			break
		}
		if r.studentDays[studentDayKey{sl.student.ID, day}] {
			continue
		}
		if err := r.placeDay(ctx, sl, day, candidates, team); err != nil {
			return err
		}
	}
	return nil
}

// candidatesFor enumerates the primary candidates for a slot. With team
// formation enabled, the first team that validates supplies the
// candidate list; invalid teams are rejected with a violation and the
// next candidate team is tried.
func (r *run) candidatesFor(ctx context.Context, sl *slot) ([]*Preceptor, *PreceptorTeam, error) {
	if r.opts.EnableTeamFormation && sl.settings.EnableTeamFormation {
		teams, err := r.source.Teams(ctx, sl.clerkship.ID, sl.requirement.Type)
		if err != nil {
			return nil, nil, err
		}
		for i := range teams {
			team := &teams[i]
			validation, err := r.teams.Validate(ctx, team, sl.clerkship.Specialty)
			if err != nil {
				return nil, nil, err
			}
			if !validation.IsValid {
				if !sl.rejectedTeams[team.ID] {
					if sl.rejectedTeams == nil {
						sl.rejectedTeams = make(map[TeamID]bool)
					}
					sl.rejectedTeams[team.ID] = true
					r.violations.Record(ConstraintInvalidTeam, Assignment{
						StudentID:       sl.student.ID,
						ClerkshipID:     sl.clerkship.ID,
						RequirementType: sl.requirement.Type,
						TeamID:          team.ID,
					}, fmt.Sprintf("team %s rejected: %v", team.ID, validation.Errors), nil)
				}
				continue
			}

			var members []*Preceptor
			for _, m := range team.SortedMembers() {
				if m.IsFallbackOnly {
					continue
				}
				p, err := r.source.Preceptor(ctx, m.PreceptorID)
				if err != nil {
					return nil, nil, err
				}
				if r.eligibleForSlot(p, sl) {
					members = append(members, p)
				}
			}
			if len(members) > 0 {
				return members, team, nil
			}
		}
		// No usable team; fall through to individual candidates.
	}

	all, err := r.source.EligiblePreceptors(ctx, sl.clerkship.ID, sl.requirement.Type)
	if err != nil {
		return nil, nil, err
	}
	var candidates []*Preceptor
	for i := range all {
		p := &all[i]
		if p.IsGlobalFallbackOnly {
			continue
		}
		if r.eligibleForSlot(p, sl) {
			candidates = append(candidates, p)
		}
	}
	return candidates, nil, nil
}

// eligibleForSlot applies the slot's scope: elective preceptor and site
// lists, and the pinned health system under the same-system rule. The
// pin can tighten mid-pass, so placement re-checks this per day.
func (r *run) eligibleForSlot(p *Preceptor, sl *slot) bool {
	if sl.elective != nil {
		if len(sl.elective.PreceptorIDs) > 0 && !containsPreceptor(sl.elective.PreceptorIDs, p.ID) {
			return false
		}
		if len(sl.elective.SiteIDs) > 0 {
			found := false
			for _, site := range sl.elective.SiteIDs {
				if p.HasSite(site) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	if sl.settings.HealthSystemRule == HealthSystemSameAsSite && sl.healthSystem != "" {
		if p.HealthSystemID != sl.healthSystem {
			return false
		}
	}
	return true
}

// placeDay tries primaries in order, then the fallback chain, and records
// a violation when the day stays open.
func (r *run) placeDay(ctx context.Context, sl *slot, day Date, candidates []*Preceptor, team *PreceptorTeam) error {
	ordered := r.orderCandidates(sl, candidates)

	sawAvailable := false
	var exhaustedPrimary *Preceptor

	for _, p := range ordered {
		// The candidate list predates this day's pin state; a commit on
		// an earlier day may have narrowed the slot's health system.
		if !r.eligibleForSlot(p, sl) {
			continue
		}

		available, err := r.availability.ResolveSetForSites(ctx, p.ID, r.opts.Range, sl.siteScope())
		if err != nil {
			return err
		}
		if !available[day] {
			continue
		}
		sawAvailable = true

		capacity, err := r.capacity.Effective(ctx, p.ID, sl.clerkship.ID, sl.requirement.Type)
		if err != nil {
			return err
		}
		if !r.tracker.HasCapacity(p.ID, sl.student.ID, day, capacity, sl.settings.BlockLength) {
			exhaustedPrimary = p
			continue
		}

		r.commit(sl, p, day, team, false, team != nil && team.RequiresAdminApproval)
		return nil
	}

	// Primary chain exhausted for this day.
	if r.opts.EnableFallbacks && sl.settings.EnableFallbacks {
		fb := &FallbackResolver{
			Source:       r.source,
			Availability: r.availability,
			Capacity:     r.capacity,
			Tracker:      r.tracker,
		}
		candidate, err := fb.Resolve(ctx, FallbackRequest{
			StudentID:       sl.student.ID,
			ClerkshipID:     sl.clerkship.ID,
			RequirementType: sl.requirement.Type,
			Date:            day,
			Range:           r.opts.Range,
			Settings:        sl.settings,
			Primary:         exhaustedPrimary,
			Team:            team,
		})
		if err != nil {
			return err
		}
		if candidate != nil {
			r.commit(sl, candidate.Preceptor, day, team, true, candidate.RequiresApproval)
			return nil
		}
		r.recordOpenDay(sl, day, ConstraintFallbackExhausted, "no fallback preceptor with capacity and availability")
		return nil
	}

	if sawAvailable {
		r.recordOpenDay(sl, day, ConstraintNoCapacity, "all available preceptors at capacity")
	} else {
		r.recordOpenDay(sl, day, ConstraintNoAvailability, "no eligible preceptor available")
	}
	return nil
}

// orderCandidates applies soft continuity preferences: the slot's last
// preceptor first (block continuity and same-preceptor preference), and
// the pinned-preferred health system ahead of others. Ties keep the
// deterministic source order.
func (r *run) orderCandidates(sl *slot, candidates []*Preceptor) []*Preceptor {
	if len(candidates) < 2 {
		return candidates
	}

	// Without splitting, the first committed preceptor is the only one.
	if !sl.settings.AllowSplitAssignment && sl.lastPreceptor != "" {
		for _, p := range candidates {
			if p.ID == sl.lastPreceptor {
				return []*Preceptor{p}
			}
		}
		return nil
	}

	preferLast := sl.lastPreceptor != "" &&
		(sl.settings.PreferSamePreceptor || sl.settings.Strategy == StrategyBlock)
	preferSystem := sl.settings.HealthSystemRule == HealthSystemPreferSame && sl.healthSystem != ""

	if !preferLast && !preferSystem {
		return candidates
	}

	ordered := make([]*Preceptor, 0, len(candidates))
	rest := make([]*Preceptor, 0, len(candidates))
	for _, p := range candidates {
		switch {
		case preferLast && p.ID == sl.lastPreceptor:
			ordered = append(ordered, p)
		case preferSystem && p.HealthSystemID == sl.healthSystem:
			ordered = append(ordered, p)
		default:
			rest = append(rest, p)
		}
	}
	return append(ordered, rest...)
}

// commit records a placement everywhere it must be visible before the
// next decision: the assignment list, the capacity tracker, the
// student-day index, and the slot's continuity state.
func (r *run) commit(sl *slot, p *Preceptor, day Date, team *PreceptorTeam, viaFallback, needsApproval bool) {
	a := Assignment{
		ID:              assignmentID(sl, day),
		StudentID:       sl.student.ID,
		PreceptorID:     p.ID,
		ClerkshipID:     sl.clerkship.ID,
		RequirementType: sl.requirement.Type,
		Date:            day,
		UsedFallback:    viaFallback,
		PendingApproval: needsApproval,
	}
	if sl.elective != nil {
		a.ElectiveID = sl.elective.ID
	}
	if team != nil && !viaFallback {
		a.TeamID = team.ID
	}

	r.assignments = append(r.assignments, a)
	r.tracker.Record(a, sl.settings.BlockLength)
	r.studentDays[studentDayKey{sl.student.ID, day}] = true

	if needsApproval {
		reason := "team requires administrative approval"
		if viaFallback {
			reason = "fallback placement requires approval"
		}
		r.approvals = append(r.approvals, PendingApproval{
			AssignmentID: a.ID,
			StudentID:    a.StudentID,
			PreceptorID:  a.PreceptorID,
			Date:         day,
			Reason:       reason,
		})
	}

	sl.placed++
	sl.lastPreceptor = p.ID
	if sl.healthSystem == "" && p.HealthSystemID != "" {
		sl.healthSystem = p.HealthSystemID
	}
}

// recordOpenDay logs an unfilled day once per slot; retry passes revisit
// the same open days and must not double-count them.
func (r *run) recordOpenDay(sl *slot, day Date, constraint, reason string) {
	if sl.reportedDays[day] {
		return
	}
	if sl.reportedDays == nil {
		sl.reportedDays = make(map[Date]bool)
	}
	sl.reportedDays[day] = true
	r.violations.Record(constraint, Assignment{
		StudentID:       sl.student.ID,
		ClerkshipID:     sl.clerkship.ID,
		RequirementType: sl.requirement.Type,
		Date:            day,
	}, reason, nil)
}

// assignmentID builds a deterministic identity so dry runs over the same
// snapshot reproduce byte-identical output.
func assignmentID(sl *slot, day Date) AssignmentID {
	base := fmt.Sprintf("%s:%s:%s:%s", sl.student.ID, sl.clerkship.ID, sl.requirement.Type, day)
	if sl.elective != nil {
		base = fmt.Sprintf("%s:%s", base, sl.elective.ID)
	}
	return AssignmentID(base)
}

func (sl *slot) finish() {
	switch {
	case sl.placed >= sl.needed:
		sl.status = StatusSatisfied
	case sl.placed > 0:
		sl.status = StatusPartiallySatisfied
	default:
		sl.status = StatusUnmet
	}
}

// =============================================================================
// RESULT ASSEMBLY
// =============================================================================

func buildResult(r *run, slots []slot, studentCount int) *Result {
	result := &Result{
		RunID:            uuid.NewString(),
		DryRun:           r.opts.DryRun,
		Assignments:      r.assignments,
		Violations:       r.violations.Export(),
		PendingApprovals: r.approvals,
	}

	stats := Stats{
		Students:              studentCount,
		RequirementsAttempted: len(slots),
		TotalAssignments:      len(r.assignments),
		PendingApprovals:      len(r.approvals),
	}

	for _, a := range r.assignments {
		if a.UsedFallback {
			stats.FallbackAssignments++
		}
	}

	for i := range slots {
		sl := &slots[i]
		outcome := RequirementOutcome{
			StudentID:   sl.student.ID,
			ClerkshipID: sl.clerkship.ID,
			Type:        sl.requirement.Type,
			Status:      sl.status,
			DaysNeeded:  sl.needed,
			DaysPlaced:  sl.placed,
		}
		if sl.elective != nil {
			outcome.ElectiveID = sl.elective.ID
		}
		result.Outcomes = append(result.Outcomes, outcome)

		stats.DaysNeeded += sl.needed
		stats.DaysPlaced += sl.placed

		switch sl.status {
		case StatusSatisfied:
			stats.Satisfied++
		case StatusPartiallySatisfied:
			stats.PartiallySatisfied++
		default:
			stats.Unmet++
		}

		if sl.status != StatusSatisfied {
			result.UnmetRequirements = append(result.UnmetRequirements, UnmetRequirement{
				StudentID:   outcome.StudentID,
				ClerkshipID: outcome.ClerkshipID,
				Type:        outcome.Type,
				ElectiveID:  outcome.ElectiveID,
				DaysNeeded:  sl.needed,
				DaysPlaced:  sl.placed,
				DaysMissing: sl.needed - sl.placed,
			})
		}
	}

	if stats.DaysNeeded > 0 {
		stats.FillRate = decimal.NewFromInt(int64(stats.DaysPlaced)).
			Div(decimal.NewFromInt(int64(stats.DaysNeeded))).Round(4)
	}
	if stats.TotalAssignments > 0 {
		stats.FallbackRate = decimal.NewFromInt(int64(stats.FallbackAssignments)).
			Div(decimal.NewFromInt(int64(stats.TotalAssignments))).Round(4)
	}

	result.Statistics = stats
	result.Success = stats.Unmet == 0 && stats.PartiallySatisfied == 0
	return result
}
