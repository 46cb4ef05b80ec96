// Package store provides DataSource and AssignmentStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/meridian/rotation-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.DataSource and engine.AssignmentStore with
// plain maps. Seed it with the Add* methods before a run.
type Memory struct {
	mu sync.RWMutex

	students      map[engine.StudentID]engine.Student
	preceptors    map[engine.PreceptorID]engine.Preceptor
	sites         map[engine.SiteID]engine.Site
	healthSystems map[engine.HealthSystemID]engine.HealthSystem
	clerkships    map[engine.ClerkshipID]engine.Clerkship
	requirements  map[engine.ClerkshipID][]engine.Requirement
	electives     map[engine.ClerkshipID][]engine.Elective
	teams         map[engine.ClerkshipID][]engine.PreceptorTeam
	capacityRules map[engine.PreceptorID][]engine.CapacityRule
	patterns      map[engine.PreceptorID][]engine.AvailabilityPattern
	blackouts     []engine.BlackoutDate

	// eligible links preceptors to the clerkships they may host.
	eligible map[engine.ClerkshipID][]engine.PreceptorID

	assignments map[engine.AssignmentID]engine.Assignment
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.students = make(map[engine.StudentID]engine.Student)
	m.preceptors = make(map[engine.PreceptorID]engine.Preceptor)
	m.sites = make(map[engine.SiteID]engine.Site)
	m.healthSystems = make(map[engine.HealthSystemID]engine.HealthSystem)
	m.clerkships = make(map[engine.ClerkshipID]engine.Clerkship)
	m.requirements = make(map[engine.ClerkshipID][]engine.Requirement)
	m.electives = make(map[engine.ClerkshipID][]engine.Elective)
	m.teams = make(map[engine.ClerkshipID][]engine.PreceptorTeam)
	m.capacityRules = make(map[engine.PreceptorID][]engine.CapacityRule)
	m.patterns = make(map[engine.PreceptorID][]engine.AvailabilityPattern)
	m.blackouts = nil
	m.eligible = make(map[engine.ClerkshipID][]engine.PreceptorID)
	m.assignments = make(map[engine.AssignmentID]engine.Assignment)
}

// Reset clears all data. Dev/demo use only.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) AddStudent(s engine.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) AddPreceptor(p engine.Preceptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preceptors[p.ID] = p
}

func (m *Memory) AddSite(s engine.Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[s.ID] = s
}

func (m *Memory) AddHealthSystem(h engine.HealthSystem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthSystems[h.ID] = h
}

func (m *Memory) AddClerkship(c engine.Clerkship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clerkships[c.ID] = c
}

func (m *Memory) AddRequirement(r engine.Requirement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requirements[r.ClerkshipID] = append(m.requirements[r.ClerkshipID], r)
}

func (m *Memory) AddElective(e engine.Elective) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.electives[e.ClerkshipID] = append(m.electives[e.ClerkshipID], e)
	sort.Slice(m.electives[e.ClerkshipID], func(i, j int) bool {
		list := m.electives[e.ClerkshipID]
		return list[i].ID < list[j].ID
	})
}

func (m *Memory) AddTeam(t engine.PreceptorTeam) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ClerkshipID] = append(m.teams[t.ClerkshipID], t)
	sort.Slice(m.teams[t.ClerkshipID], func(i, j int) bool {
		list := m.teams[t.ClerkshipID]
		return list[i].ID < list[j].ID
	})
}

// AddCapacityRule validates before accepting; invalid rules never enter
// the snapshot.
func (m *Memory) AddCapacityRule(r engine.CapacityRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacityRules[r.PreceptorID] = append(m.capacityRules[r.PreceptorID], r)
	return nil
}

func (m *Memory) AddPattern(p engine.AvailabilityPattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[p.PreceptorID] = append(m.patterns[p.PreceptorID], p)
}

func (m *Memory) AddBlackout(b engine.BlackoutDate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blackouts = append(m.blackouts, b)
}

// LinkPreceptor marks a preceptor as eligible for a clerkship.
func (m *Memory) LinkPreceptor(clerkshipID engine.ClerkshipID, preceptorID engine.PreceptorID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.eligible[clerkshipID] {
		if id == preceptorID {
			return
		}
	}
	m.eligible[clerkshipID] = append(m.eligible[clerkshipID], preceptorID)
	sort.Slice(m.eligible[clerkshipID], func(i, j int) bool {
		list := m.eligible[clerkshipID]
		return list[i] < list[j]
	})
}

// =============================================================================
// DATA SOURCE
// =============================================================================

func (m *Memory) Student(_ context.Context, id engine.StudentID) (*engine.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, engine.NewNotFound("student", string(id))
	}
	return &s, nil
}

func (m *Memory) Preceptor(_ context.Context, id engine.PreceptorID) (*engine.Preceptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.preceptors[id]
	if !ok {
		return nil, engine.NewNotFound("preceptor", string(id))
	}
	return &p, nil
}

func (m *Memory) Clerkship(_ context.Context, id engine.ClerkshipID) (*engine.Clerkship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clerkships[id]
	if !ok {
		return nil, engine.NewNotFound("clerkship", string(id))
	}
	return &c, nil
}

func (m *Memory) Site(_ context.Context, id engine.SiteID) (*engine.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, engine.NewNotFound("site", string(id))
	}
	return &s, nil
}

func (m *Memory) Requirements(_ context.Context, clerkshipID engine.ClerkshipID) ([]engine.Requirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Requirement, len(m.requirements[clerkshipID]))
	copy(out, m.requirements[clerkshipID])
	return out, nil
}

func (m *Memory) Electives(_ context.Context, clerkshipID engine.ClerkshipID) ([]engine.Elective, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Elective, len(m.electives[clerkshipID]))
	copy(out, m.electives[clerkshipID])
	return out, nil
}

func (m *Memory) EligiblePreceptors(_ context.Context, clerkshipID engine.ClerkshipID, _ engine.RequirementType) ([]engine.Preceptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Preceptor
	for _, id := range m.eligible[clerkshipID] {
		if p, ok := m.preceptors[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) Teams(_ context.Context, clerkshipID engine.ClerkshipID, t engine.RequirementType) ([]engine.PreceptorTeam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PreceptorTeam
	for _, team := range m.teams[clerkshipID] {
		if team.RequirementType == t {
			out = append(out, team)
		}
	}
	return out, nil
}

func (m *Memory) CapacityRules(_ context.Context, preceptorID engine.PreceptorID) ([]engine.CapacityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.CapacityRule, len(m.capacityRules[preceptorID]))
	copy(out, m.capacityRules[preceptorID])
	return out, nil
}

func (m *Memory) Patterns(_ context.Context, preceptorID engine.PreceptorID) ([]engine.AvailabilityPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.AvailabilityPattern, len(m.patterns[preceptorID]))
	copy(out, m.patterns[preceptorID])
	return out, nil
}

func (m *Memory) Blackouts(_ context.Context, r engine.DateRange) ([]engine.BlackoutDate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.BlackoutDate
	for _, b := range m.blackouts {
		end := b.End
		if end.IsZero() {
			end = b.Start
		}
		if b.Start.BeforeOrEqual(r.End) && end.AfterOrEqual(r.Start) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) AssignmentsInRange(_ context.Context, r engine.DateRange) ([]engine.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Assignment
	for _, a := range m.assignments {
		if r.Contains(a.Date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

func (m *Memory) SaveAssignments(_ context.Context, assignments []engine.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Atomic batch: check for collisions first, then write.
	for _, a := range assignments {
		if _, exists := m.assignments[a.ID]; exists {
			return &engine.ConflictError{Kind: "assignment", ID: string(a.ID), Reason: "already exists"}
		}
	}
	for _, a := range assignments {
		m.assignments[a.ID] = a
	}
	return nil
}

func (m *Memory) Assignment(_ context.Context, id engine.AssignmentID) (*engine.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, engine.NewNotFound("assignment", string(id))
	}
	return &a, nil
}

func (m *Memory) UpdateAssignments(_ context.Context, assignments []engine.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range assignments {
		if _, exists := m.assignments[a.ID]; !exists {
			return engine.NewNotFound("assignment", string(a.ID))
		}
	}
	for _, a := range assignments {
		m.assignments[a.ID] = a
	}
	return nil
}
