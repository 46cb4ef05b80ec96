/*
handlers.go - HTTP API handlers for the rotation scheduling system

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  People:
    GET    /api/students                     List all students
    POST   /api/students                     Create student
    GET    /api/preceptors                   List all preceptors
    GET    /api/preceptors/{id}/availability Expanded calendar for a range

  Clerkships:
    GET    /api/clerkships                   List all clerkships
    POST   /api/clerkships                   Create clerkship from JSON config

  Scheduling:
    POST   /api/schedule                     Run the scheduling engine
    GET    /api/assignments                  List assignments in a range
    POST   /api/assignments/{id}/reassign    Move one assignment
    POST   /api/assignments/swap             Exchange two assignments

  Diagnostics:
    GET    /api/violations/report            Aggregate report for the last run

  Scenarios:
    GET    /api/scenarios                    List demo scenarios
    POST   /api/scenarios/load               Load a demo scenario
    POST   /api/scenarios/reset              Wipe the database

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (DataSource + AssignmentStore)
  - Scheduler: The engine entry point
  - Validator: Request body validation
  - Logger: Structured request logging

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (scheduler, resolvers)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Engine errors map onto HTTP status via the error taxonomy:
  - 400: engine.IsValidation
  - 404: engine.IsNotFound
  - 409: engine.IsConflict
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meridian/rotation-engine/engine"
	"github.com/meridian/rotation-engine/factory"
	"github.com/meridian/rotation-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Scheduler *engine.Scheduler
	Factory   *factory.ConfigFactory
	Logger    *zap.Logger

	validate *validator.Validate

	// Last run state for the violations report.
	mu              sync.Mutex
	lastRunID       string
	lastViolations  []engine.Violation
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:     store,
		Scheduler: engine.NewScheduler(store, store),
		Factory:   factory.NewConfigFactory(),
		Logger:    logger,
		validate:  validator.New(),
	}
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = StudentDTO{ID: string(s.ID), Name: s.Name, Email: s.Email}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent creates a new student.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid student", err)
		return
	}

	student := engine.Student{ID: engine.StudentID(req.ID), Name: req.Name, Email: req.Email}
	if err := h.Store.SaveStudent(r.Context(), student); err != nil {
		writeEngineError(w, "Failed to create student", err)
		return
	}

	writeJSON(w, http.StatusCreated, StudentDTO{ID: req.ID, Name: req.Name, Email: req.Email})
}

// =============================================================================
// PRECEPTOR HANDLERS
// =============================================================================

// ListPreceptors returns all preceptors.
func (h *Handler) ListPreceptors(w http.ResponseWriter, r *http.Request) {
	preceptors, err := h.Store.ListPreceptors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list preceptors", err)
		return
	}

	dtos := make([]PreceptorDTO, len(preceptors))
	for i, p := range preceptors {
		dtos[i] = toPreceptorDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func toPreceptorDTO(p engine.Preceptor) PreceptorDTO {
	sites := make([]string, len(p.SiteIDs))
	for i, s := range p.SiteIDs {
		sites[i] = string(s)
	}
	return PreceptorDTO{
		ID:                   string(p.ID),
		Name:                 p.Name,
		Email:                p.Email,
		Specialty:            p.Specialty,
		HealthSystemID:       string(p.HealthSystemID),
		SiteIDs:              sites,
		IsGlobalFallbackOnly: p.IsGlobalFallbackOnly,
	}
}

// GetAvailability returns the expanded available dates for one preceptor.
// GET /api/preceptors/{id}/availability?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := engine.PreceptorID(chi.URLParam(r, "id"))

	rng, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	resolver := engine.NewAvailabilityResolver(h.Store)
	dates, err := resolver.Resolve(r.Context(), id, rng)
	if err != nil {
		writeEngineError(w, "Failed to resolve availability", err)
		return
	}

	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		PreceptorID: string(id),
		Start:       rng.Start.String(),
		End:         rng.End.String(),
		Dates:       out,
	})
}

// =============================================================================
// CLERKSHIP HANDLERS
// =============================================================================

// ListClerkships returns all clerkships.
func (h *Handler) ListClerkships(w http.ResponseWriter, r *http.Request) {
	clerkships, err := h.Store.ListClerkships(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clerkships", err)
		return
	}

	dtos := make([]ClerkshipDTO, len(clerkships))
	for i, c := range clerkships {
		dtos[i] = ClerkshipDTO{
			ID:           string(c.ID),
			Name:         c.Name,
			Specialty:    c.Specialty,
			RequiredDays: c.RequiredDays,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClerkship creates a clerkship (with its requirements and
// electives) from a JSON config document.
func (h *Handler) CreateClerkship(w http.ResponseWriter, r *http.Request) {
	var req CreateClerkshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := h.Factory.FromJSON(req.Config)
	if err != nil {
		writeEngineError(w, "Invalid clerkship config", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveClerkship(ctx, cfg.Clerkship); err != nil {
		writeEngineError(w, "Failed to save clerkship", err)
		return
	}
	for _, req := range cfg.Requirements {
		if err := h.Store.SaveRequirement(ctx, req); err != nil {
			writeEngineError(w, "Failed to save requirement", err)
			return
		}
	}
	for _, e := range cfg.Electives {
		if err := h.Store.SaveElective(ctx, e); err != nil {
			writeEngineError(w, "Failed to save elective", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, ClerkshipDTO{
		ID:           string(cfg.Clerkship.ID),
		Name:         cfg.Clerkship.Name,
		Specialty:    cfg.Clerkship.Specialty,
		RequiredDays: cfg.Clerkship.RequiredDays,
	})
}

// =============================================================================
// SCHEDULING HANDLERS
// =============================================================================

// RunSchedule executes the engine for the requested students and
// clerkships.
// POST /api/schedule
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule request", err)
		return
	}

	rng, err := parseRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	opts := engine.DefaultOptions(rng.Start, rng.End)
	opts.DryRun = req.DryRun
	if req.EnableTeamFormation != nil {
		opts.EnableTeamFormation = *req.EnableTeamFormation
	}
	if req.EnableFallbacks != nil {
		opts.EnableFallbacks = *req.EnableFallbacks
	}
	if req.EnableOptimization != nil {
		opts.EnableOptimization = *req.EnableOptimization
	}
	if req.MaxRetriesPerStudent != nil {
		opts.MaxRetriesPerStudent = *req.MaxRetriesPerStudent
	}

	students := make([]engine.StudentID, len(req.StudentIDs))
	for i, id := range req.StudentIDs {
		students[i] = engine.StudentID(id)
	}
	clerkships := make([]engine.ClerkshipID, len(req.ClerkshipIDs))
	for i, id := range req.ClerkshipIDs {
		clerkships[i] = engine.ClerkshipID(id)
	}

	result, err := h.Scheduler.Schedule(r.Context(), students, clerkships, opts)
	if err != nil {
		writeEngineError(w, "Scheduling failed", err)
		return
	}

	h.recordRun(result)
	h.Logger.Info("schedule run complete",
		zap.String("run_id", result.RunID),
		zap.Bool("success", result.Success),
		zap.Bool("dry_run", result.DryRun),
		zap.Int("assignments", len(result.Assignments)),
		zap.Int("unmet", len(result.UnmetRequirements)),
		zap.Int("violations", len(result.Violations)))

	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// ListAssignments returns persisted assignments in a date range.
// GET /api/assignments?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	assignments, err := h.Store.AssignmentsInRange(r.Context(), rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assignments", err)
		return
	}

	dtos := make([]AssignmentDTO, len(assignments))
	for i, a := range assignments {
		dtos[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Reassign moves one assignment to a different preceptor, subject to
// the same availability and capacity checks as a fresh placement.
// POST /api/assignments/{id}/reassign
func (h *Handler) Reassign(w http.ResponseWriter, r *http.Request) {
	id := engine.AssignmentID(chi.URLParam(r, "id"))

	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reassign request", err)
		return
	}

	result, err := h.Scheduler.ReassignToPreceptor(r.Context(), id, engine.PreceptorID(req.PreceptorID), req.DryRun)
	if err != nil {
		writeEngineError(w, "Reassignment failed", err)
		return
	}

	h.recordRun(result)
	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// Swap exchanges the preceptors of two assignments atomically.
// POST /api/assignments/swap
func (h *Handler) Swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid swap request", err)
		return
	}

	result, err := h.Scheduler.SwapAssignments(r.Context(),
		engine.AssignmentID(req.AssignmentID1), engine.AssignmentID(req.AssignmentID2), req.DryRun)
	if err != nil {
		writeEngineError(w, "Swap failed", err)
		return
	}

	h.recordRun(result)
	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// =============================================================================
// VIOLATION REPORT
// =============================================================================

// recordRun captures the run's violation log for the report endpoint.
func (h *Handler) recordRun(result *engine.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRunID = result.RunID
	h.lastViolations = result.Violations
}

// ViolationReport returns the aggregate violation report for the most
// recent run.
// GET /api/violations/report
func (h *Handler) ViolationReport(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	runID := h.lastRunID
	violations := h.lastViolations
	h.mu.Unlock()

	if runID == "" {
		writeError(w, http.StatusNotFound, "No scheduling run recorded yet", nil)
		return
	}

	tracker := engine.NewViolationTracker()
	for _, v := range violations {
		tracker.Record(v.Constraint, engine.Assignment{
			StudentID:   v.StudentID,
			PreceptorID: v.PreceptorID,
			ClerkshipID: v.ClerkshipID,
			Date:        v.Date,
		}, v.Reason, v.Metadata)
	}

	stats := tracker.StatsByConstraint()
	byConstraint := make([]ConstraintStatsDTO, len(stats))
	for i, s := range stats {
		dto := ConstraintStatsDTO{
			Constraint: s.Constraint,
			Count:      s.Count,
			Students:   make([]string, len(s.Students)),
			Preceptors: make([]string, len(s.Preceptors)),
			Dates:      make([]string, len(s.Dates)),
		}
		for j, id := range s.Students {
			dto.Students[j] = string(id)
		}
		for j, id := range s.Preceptors {
			dto.Preceptors[j] = string(id)
		}
		for j, d := range s.Dates {
			dto.Dates[j] = d.String()
		}
		byConstraint[i] = dto
	}

	top := tracker.TopViolations(5)
	topDTOs := make([]ConstraintCountDTO, len(top))
	for i, t := range top {
		topDTOs[i] = ConstraintCountDTO{Constraint: t.Constraint, Count: t.Count}
	}

	writeJSON(w, http.StatusOK, ViolationReportDTO{
		RunID:         runID,
		Total:         tracker.Total(),
		ByConstraint:  byConstraint,
		TopViolations: topDTOs,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRange(start, end string) (engine.DateRange, error) {
	s, err := engine.ParseDate(start)
	if err != nil {
		return engine.DateRange{}, err
	}
	e, err := engine.ParseDate(end)
	if err != nil {
		return engine.DateRange{}, err
	}
	rng := engine.DateRange{Start: s, End: e}
	if !rng.Valid() {
		return engine.DateRange{}, engine.NewValidation("end date precedes start date", "start", "end")
	}
	return rng, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps the engine's error taxonomy onto HTTP status.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
