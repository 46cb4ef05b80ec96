/*
Package engine provides the clerkship rotation scheduling core.

PURPOSE:
  This package contains the types and algorithms that place medical
  students with preceptors over a date range: expanding availability,
  resolving layered settings, enforcing capacity ceilings, validating
  team continuity, walking fallback chains, and recording every rule
  breach along the way.

KEY CONCEPTS IN THIS FILE (types.go):
  - Student / Preceptor / Site / HealthSystem: the people and places
  - Clerkship / Requirement / Elective: what must be completed
  - PreceptorTeam / TeamMember: shared responsibility with continuity rules
  - CapacityRule: per-day/per-year/per-block student ceilings
  - AvailabilityPattern / BlackoutDate: when placement is possible
  - Assignment: the unit of output (student, preceptor, clerkship, date)

DESIGN PRINCIPLES:
  1. Snapshot semantics: the engine treats all configuration as a read
     snapshot for the duration of one Schedule() invocation
  2. Identifier references: entities reference each other by typed ID and
     are resolved through lookups, never through live object pointers
  3. Recoverable shortfalls: missing capacity or availability is a normal
     outcome recorded as a violation, never an abort

USAGE:
  src := store.NewMemory()           // or sqlite
  eng := engine.NewScheduler(src, src)
  result, err := eng.Schedule(ctx, studentIDs, clerkshipIDs, engine.Options{
      Range: engine.NewDateRange(start, end),
  })

SEE ALSO:
  - scheduler.go: The orchestrator and run result types
  - settings.go: Layered settings resolution
  - capacity.go: Capacity rule precedence and accounting
*/
package engine

import (
	"sort"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type PreceptorID string
type ClerkshipID string
type ElectiveID string
type SiteID string
type HealthSystemID string
type TeamID string
type AssignmentID string

// =============================================================================
// PEOPLE AND PLACES
// =============================================================================

// Student is consumed read-only by the engine.
type Student struct {
	ID    StudentID
	Name  string
	Email string
}

// Preceptor is a supervising clinician. Site affiliations and the health
// system are resolved by ID through the DataSource.
type Preceptor struct {
	ID             PreceptorID
	Name           string
	Email          string
	Phone          string
	Specialty      string
	HealthSystemID HealthSystemID // empty = none on file
	SiteIDs        []SiteID

	// IsGlobalFallbackOnly marks a preceptor who only receives students
	// when a primary chain is exhausted.
	IsGlobalFallbackOnly bool
}

// HasSite reports whether the preceptor is affiliated with the site.
func (p *Preceptor) HasSite(id SiteID) bool {
	for _, s := range p.SiteIDs {
		if s == id {
			return true
		}
	}
	return false
}

type Site struct {
	ID             SiteID
	Name           string
	HealthSystemID HealthSystemID
}

type HealthSystem struct {
	ID   HealthSystemID
	Name string
}

// =============================================================================
// CLERKSHIPS AND REQUIREMENTS
// =============================================================================

// RequirementType orders requirement processing: inpatient, then
// outpatient, then elective.
type RequirementType string

const (
	RequirementInpatient  RequirementType = "inpatient"
	RequirementOutpatient RequirementType = "outpatient"
	RequirementElective   RequirementType = "elective"
)

// RequirementOrder is the processing order within a clerkship.
var RequirementOrder = []RequirementType{
	RequirementInpatient,
	RequirementOutpatient,
	RequirementElective,
}

// Clerkship is a rotation definition. RequiredDays may be split into
// inpatient/outpatient components via its Requirements.
type Clerkship struct {
	ID           ClerkshipID
	Name         string
	Specialty    string
	RequiredDays int
	Settings     Settings
}

// Requirement is a typed quantity of days a student must complete for a
// clerkship. It may override the clerkship settings.
type Requirement struct {
	ClerkshipID  ClerkshipID
	Type         RequirementType
	Days         int
	OverrideMode OverrideMode
	Overrides    SettingsPatch
}

// Elective is a named sub-requirement of a clerkship with its own scope
// of sites and preceptors.
type Elective struct {
	ID           ElectiveID
	ClerkshipID  ClerkshipID
	Name         string
	MinDays      int
	Required     bool
	SiteIDs      []SiteID
	PreceptorIDs []PreceptorID
	OverrideMode OverrideMode // OverrideInherit or OverrideSimple
	Overrides    SettingsPatch
}

// =============================================================================
// TEAMS
// =============================================================================

// TeamMember is one preceptor's slot on a team. Lower priority numbers
// are tried first.
type TeamMember struct {
	PreceptorID PreceptorID
	Priority    int
	Role        string

	// IsFallbackOnly members are skipped during primary placement and
	// only considered by the fallback chain.
	IsFallbackOnly bool
}

// PreceptorTeam is an ordered group of preceptors sharing responsibility
// for a requirement.
type PreceptorTeam struct {
	ID              TeamID
	Name            string
	ClerkshipID     ClerkshipID
	RequirementType RequirementType
	Members         []TeamMember

	Continuity TeamContinuity

	// RequiresAdminApproval does not block validation; it flags the team's
	// assignments for a downstream human-approval step.
	RequiresAdminApproval bool
}

// TeamContinuity is the continuity/size constraint set for a team.
type TeamContinuity struct {
	RequireSameHealthSystem bool
	RequireSameSite         bool
	RequireSameSpecialty    bool
	MinMembers              int // 0 = default minimum of one member
	MaxMembers              int // 0 = unbounded
}

// SortedMembers returns members ordered by ascending priority, ties kept
// in declaration order.
func (t *PreceptorTeam) SortedMembers() []TeamMember {
	out := make([]TeamMember, len(t.Members))
	copy(out, t.Members)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// =============================================================================
// CAPACITY RULES
// =============================================================================

// CapacityRule bounds how many students a preceptor can supervise. The
// optional Clerkship/RequirementType fields narrow where it applies; a
// more specific rule overrides a less specific one.
type CapacityRule struct {
	ID              string
	PreceptorID     PreceptorID
	ClerkshipID     *ClerkshipID
	RequirementType *RequirementType

	MaxStudentsPerDay  int
	MaxStudentsPerYear int

	// Block ceilings are both-or-neither.
	MaxStudentsPerBlock *int
	MaxBlocksPerYear    *int
}

// Validate enforces the rule invariants:
// MaxStudentsPerYear >= MaxStudentsPerDay, and block fields both-or-neither.
func (r CapacityRule) Validate() error {
	if r.PreceptorID == "" {
		return NewValidation("capacity rule requires a preceptor", "preceptor_id")
	}
	if r.MaxStudentsPerDay <= 0 {
		return NewValidation("max students per day must be positive", "max_students_per_day")
	}
	if r.MaxStudentsPerYear < r.MaxStudentsPerDay {
		return NewValidation("per-year ceiling below per-day ceiling",
			"max_students_per_year", "max_students_per_day")
	}
	if (r.MaxStudentsPerBlock == nil) != (r.MaxBlocksPerYear == nil) {
		return NewValidation("block ceilings must be set together",
			"max_students_per_block", "max_blocks_per_year")
	}
	return nil
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// RecurrenceKind selects how a pattern expands into dates.
type RecurrenceKind string

const (
	// RecurWeekly: the listed weekdays, every week.
	RecurWeekly RecurrenceKind = "weekly"

	// RecurWeekdayOfMonth: the Nth occurrence of a weekday each month
	// (Ordinal -1 = the last occurrence).
	RecurWeekdayOfMonth RecurrenceKind = "weekday_of_month"

	// RecurExplicit: only the dates listed in add-exceptions.
	RecurExplicit RecurrenceKind = "explicit"
)

// AvailabilityPattern is a recurrence rule scoped to a preceptor and
// optionally a site, with explicit add/remove date overrides.
type AvailabilityPattern struct {
	ID          string
	PreceptorID PreceptorID
	SiteID      SiteID // empty = any site
	Enabled     bool

	Kind     RecurrenceKind
	Weekdays []time.Weekday // RecurWeekly
	Weekday  time.Weekday   // RecurWeekdayOfMonth
	Ordinal  int            // RecurWeekdayOfMonth: 1..5, or -1 for last

	Exceptions []AvailabilityException
}

// AvailabilityException adds or removes a single date from a pattern.
type AvailabilityException struct {
	Date Date
	Add  bool // true = extra available date, false = carve-out
}

// BlackoutDate excludes a date (or inclusive range) from all scheduling.
type BlackoutDate struct {
	ID     string
	Start  Date
	End    Date // zero = single day
	Reason string
}

// Covers reports whether the blackout excludes the given date.
func (b BlackoutDate) Covers(d Date) bool {
	end := b.End
	if end.IsZero() {
		end = b.Start
	}
	return d.AfterOrEqual(b.Start) && d.BeforeOrEqual(end)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// Assignment is the unit of engine output: one student with one preceptor
// on one date for one clerkship requirement slot.
type Assignment struct {
	ID              AssignmentID
	StudentID       StudentID
	PreceptorID     PreceptorID
	ClerkshipID     ClerkshipID
	ElectiveID      ElectiveID // empty unless the requirement is an elective
	RequirementType RequirementType
	Date            Date
	TeamID          TeamID // set when placed through a validated team

	// UsedFallback marks assignments produced through the fallback chain.
	UsedFallback bool

	// PendingApproval marks assignments that need human sign-off before
	// they are final (approval-requiring fallbacks and teams).
	PendingApproval bool
}
