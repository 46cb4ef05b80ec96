/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  People:
    StudentDTO, PreceptorDTO

  Clerkships:
    ClerkshipDTO (wraps factory.ClerkshipJSON for creation)

  Scheduling:
    ScheduleRequest, ReassignRequest, SwapRequest, ScheduleResultDTO

  Diagnostics:
    ViolationDTO, ViolationReportDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator struct tags; handlers run them through a
  shared *validator.Validate before touching the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: ClerkshipJSON type
*/
package api

import (
	"time"

	"github.com/meridian/rotation-engine/engine"
	"github.com/meridian/rotation-engine/factory"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CreateStudentRequest is the request to create a student.
type CreateStudentRequest struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

// PreceptorDTO represents a preceptor in API responses.
type PreceptorDTO struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Email                string   `json:"email,omitempty"`
	Specialty            string   `json:"specialty,omitempty"`
	HealthSystemID       string   `json:"health_system_id,omitempty"`
	SiteIDs              []string `json:"site_ids,omitempty"`
	IsGlobalFallbackOnly bool     `json:"is_global_fallback_only,omitempty"`
}

// ClerkshipDTO represents a clerkship in API responses.
type ClerkshipDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Specialty    string `json:"specialty,omitempty"`
	RequiredDays int    `json:"required_days"`
}

// CreateClerkshipRequest is the request to create a clerkship from config.
type CreateClerkshipRequest struct {
	Config factory.ClerkshipJSON `json:"config"`
}

// AvailabilityDTO is the expanded calendar for one preceptor.
type AvailabilityDTO struct {
	PreceptorID string   `json:"preceptor_id"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Dates       []string `json:"dates"`
}

// ScheduleRequest is the request to run the scheduler.
type ScheduleRequest struct {
	StudentIDs   []string `json:"student_ids" validate:"required,min=1"`
	ClerkshipIDs []string `json:"clerkship_ids" validate:"required,min=1"`
	Start        string   `json:"start" validate:"required"`
	End          string   `json:"end" validate:"required"`

	EnableTeamFormation  *bool `json:"enable_team_formation,omitempty"`
	EnableFallbacks      *bool `json:"enable_fallbacks,omitempty"`
	EnableOptimization   *bool `json:"enable_optimization,omitempty"`
	MaxRetriesPerStudent *int  `json:"max_retries_per_student,omitempty" validate:"omitempty,min=0"`
	DryRun               bool  `json:"dry_run"`
}

// ReassignRequest moves an assignment to a different preceptor.
type ReassignRequest struct {
	PreceptorID string `json:"preceptor_id" validate:"required"`
	DryRun      bool   `json:"dry_run"`
}

// SwapRequest exchanges the preceptors of two assignments.
type SwapRequest struct {
	AssignmentID1 string `json:"assignment_id_1" validate:"required"`
	AssignmentID2 string `json:"assignment_id_2" validate:"required,nefield=AssignmentID1"`
	DryRun        bool   `json:"dry_run"`
}

// AssignmentDTO represents one scheduled day.
type AssignmentDTO struct {
	ID              string `json:"id"`
	StudentID       string `json:"student_id"`
	PreceptorID     string `json:"preceptor_id"`
	ClerkshipID     string `json:"clerkship_id"`
	ElectiveID      string `json:"elective_id,omitempty"`
	RequirementType string `json:"requirement_type"`
	Date            string `json:"date"`
	TeamID          string `json:"team_id,omitempty"`
	UsedFallback    bool   `json:"used_fallback,omitempty"`
	PendingApproval bool   `json:"pending_approval,omitempty"`
}

// OutcomeDTO is the final status of one requirement slot.
type OutcomeDTO struct {
	StudentID   string `json:"student_id"`
	ClerkshipID string `json:"clerkship_id"`
	Type        string `json:"type"`
	ElectiveID  string `json:"elective_id,omitempty"`
	Status      string `json:"status"`
	DaysNeeded  int    `json:"days_needed"`
	DaysPlaced  int    `json:"days_placed"`
}

// UnmetDTO is one requirement that ended below its target.
type UnmetDTO struct {
	StudentID   string `json:"student_id"`
	ClerkshipID string `json:"clerkship_id"`
	Type        string `json:"type"`
	ElectiveID  string `json:"elective_id,omitempty"`
	DaysNeeded  int    `json:"days_needed"`
	DaysPlaced  int    `json:"days_placed"`
	DaysMissing int    `json:"days_missing"`
}

// PendingApprovalDTO flags an assignment that needs human sign-off.
type PendingApprovalDTO struct {
	AssignmentID string `json:"assignment_id"`
	StudentID    string `json:"student_id"`
	PreceptorID  string `json:"preceptor_id"`
	Date         string `json:"date"`
	Reason       string `json:"reason"`
}

// StatsDTO summarizes a scheduling run.
type StatsDTO struct {
	Students              int    `json:"students"`
	RequirementsAttempted int    `json:"requirements_attempted"`
	Satisfied             int    `json:"satisfied"`
	PartiallySatisfied    int    `json:"partially_satisfied"`
	Unmet                 int    `json:"unmet"`
	TotalAssignments      int    `json:"total_assignments"`
	FallbackAssignments   int    `json:"fallback_assignments"`
	PendingApprovals      int    `json:"pending_approvals"`
	DaysNeeded            int    `json:"days_needed"`
	DaysPlaced            int    `json:"days_placed"`
	FillRate              string `json:"fill_rate"`
	FallbackRate          string `json:"fallback_rate"`
}

// ScheduleResultDTO is the full engine result.
type ScheduleResultDTO struct {
	RunID             string               `json:"run_id"`
	Success           bool                 `json:"success"`
	DryRun            bool                 `json:"dry_run"`
	Assignments       []AssignmentDTO      `json:"assignments"`
	UnmetRequirements []UnmetDTO           `json:"unmet_requirements"`
	Outcomes          []OutcomeDTO         `json:"outcomes"`
	Statistics        StatsDTO             `json:"statistics"`
	Violations        []ViolationDTO       `json:"violations"`
	PendingApprovals  []PendingApprovalDTO `json:"pending_approvals"`
}

// ViolationDTO represents one recorded constraint breach.
type ViolationDTO struct {
	Constraint  string            `json:"constraint"`
	StudentID   string            `json:"student_id,omitempty"`
	PreceptorID string            `json:"preceptor_id,omitempty"`
	ClerkshipID string            `json:"clerkship_id,omitempty"`
	Date        string            `json:"date,omitempty"`
	Reason      string            `json:"reason"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	RecordedAt  string            `json:"recorded_at"`
}

// ConstraintStatsDTO aggregates violations for one constraint.
type ConstraintStatsDTO struct {
	Constraint string   `json:"constraint"`
	Count      int      `json:"count"`
	Students   []string `json:"students"`
	Preceptors []string `json:"preceptors"`
	Dates      []string `json:"dates"`
}

// ViolationReportDTO is the aggregate report for the last run.
type ViolationReportDTO struct {
	RunID         string               `json:"run_id"`
	Total         int                  `json:"total"`
	ByConstraint  []ConstraintStatsDTO `json:"by_constraint"`
	TopViolations []ConstraintCountDTO `json:"top_violations"`
}

// ConstraintCountDTO is one entry in a ranked violation list.
type ConstraintCountDTO struct {
	Constraint string `json:"constraint"`
	Count      int    `json:"count"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAssignmentDTO(a engine.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:              string(a.ID),
		StudentID:       string(a.StudentID),
		PreceptorID:     string(a.PreceptorID),
		ClerkshipID:     string(a.ClerkshipID),
		ElectiveID:      string(a.ElectiveID),
		RequirementType: string(a.RequirementType),
		Date:            a.Date.String(),
		TeamID:          string(a.TeamID),
		UsedFallback:    a.UsedFallback,
		PendingApproval: a.PendingApproval,
	}
}

func toViolationDTO(v engine.Violation) ViolationDTO {
	dto := ViolationDTO{
		Constraint:  v.Constraint,
		StudentID:   string(v.StudentID),
		PreceptorID: string(v.PreceptorID),
		ClerkshipID: string(v.ClerkshipID),
		Reason:      v.Reason,
		Metadata:    v.Metadata,
		RecordedAt:  v.RecordedAt.Format(time.RFC3339),
	}
	if !v.Date.IsZero() {
		dto.Date = v.Date.String()
	}
	return dto
}

func toResultDTO(res *engine.Result) ScheduleResultDTO {
	dto := ScheduleResultDTO{
		RunID:             res.RunID,
		Success:           res.Success,
		DryRun:            res.DryRun,
		Assignments:       make([]AssignmentDTO, len(res.Assignments)),
		UnmetRequirements: make([]UnmetDTO, len(res.UnmetRequirements)),
		Outcomes:          make([]OutcomeDTO, len(res.Outcomes)),
		Violations:        make([]ViolationDTO, len(res.Violations)),
		PendingApprovals:  make([]PendingApprovalDTO, len(res.PendingApprovals)),
		Statistics: StatsDTO{
			Students:              res.Statistics.Students,
			RequirementsAttempted: res.Statistics.RequirementsAttempted,
			Satisfied:             res.Statistics.Satisfied,
			PartiallySatisfied:    res.Statistics.PartiallySatisfied,
			Unmet:                 res.Statistics.Unmet,
			TotalAssignments:      res.Statistics.TotalAssignments,
			FallbackAssignments:   res.Statistics.FallbackAssignments,
			PendingApprovals:      res.Statistics.PendingApprovals,
			DaysNeeded:            res.Statistics.DaysNeeded,
			DaysPlaced:            res.Statistics.DaysPlaced,
			FillRate:              res.Statistics.FillRate.String(),
			FallbackRate:          res.Statistics.FallbackRate.String(),
		},
	}
	for i, a := range res.Assignments {
		dto.Assignments[i] = toAssignmentDTO(a)
	}
	for i, u := range res.UnmetRequirements {
		dto.UnmetRequirements[i] = UnmetDTO{
			StudentID:   string(u.StudentID),
			ClerkshipID: string(u.ClerkshipID),
			Type:        string(u.Type),
			ElectiveID:  string(u.ElectiveID),
			DaysNeeded:  u.DaysNeeded,
			DaysPlaced:  u.DaysPlaced,
			DaysMissing: u.DaysMissing,
		}
	}
	for i, o := range res.Outcomes {
		dto.Outcomes[i] = OutcomeDTO{
			StudentID:   string(o.StudentID),
			ClerkshipID: string(o.ClerkshipID),
			Type:        string(o.Type),
			ElectiveID:  string(o.ElectiveID),
			Status:      string(o.Status),
			DaysNeeded:  o.DaysNeeded,
			DaysPlaced:  o.DaysPlaced,
		}
	}
	for i, v := range res.Violations {
		dto.Violations[i] = toViolationDTO(v)
	}
	for i, p := range res.PendingApprovals {
		dto.PendingApprovals[i] = PendingApprovalDTO{
			AssignmentID: string(p.AssignmentID),
			StudentID:    string(p.StudentID),
			PreceptorID:  string(p.PreceptorID),
			Date:         p.Date.String(),
			Reason:       p.Reason,
		}
	}
	return dto
}
