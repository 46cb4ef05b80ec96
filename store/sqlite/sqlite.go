/*
Package sqlite provides a SQLite-backed implementation of the engine's
collaborator interfaces.

PURPOSE:
  Implements engine.DataSource and engine.AssignmentStore using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  health_systems, sites, students, preceptors: the people and places
  clerkships, requirements, electives:         rotation definitions
  clerkship_preceptors:                        eligibility links
  teams, capacity_rules:                       scheduling constraints
  availability_patterns, blackout_dates:       calendar configuration
  assignments:                                 engine output

STRUCTURED COLUMNS:
  Nested configuration (settings, team members, pattern exceptions,
  site lists) is stored as JSON blobs. The engine only ever reads whole
  entities, so there is nothing to gain from normalizing these further.

INDEXES:
  idx_assignments_preceptor_date: capacity accounting (hot path)
  idx_assignments_student_date:   one-place-per-day checks
  idx_assignments_date:           range loads

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and WAL mode so readers don't
  block. With PostgreSQL the database's own concurrency control would
  handle this instead.

USAGE:
  store, err := sqlite.New("./data/rotations.db")
  if err != nil { log.Fatal(err) }
  defer store.Close()

  scheduler := engine.NewScheduler(store, store)

SEE ALSO:
  - engine/source.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian/rotation-engine/engine"
)

// Store implements engine.DataSource and engine.AssignmentStore.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database and migrates the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS health_systems (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sites (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	health_system_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS students (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS preceptors (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	email                   TEXT NOT NULL DEFAULT '',
	phone                   TEXT NOT NULL DEFAULT '',
	specialty               TEXT NOT NULL DEFAULT '',
	health_system_id        TEXT NOT NULL DEFAULT '',
	site_ids_json           TEXT NOT NULL DEFAULT '[]',
	is_global_fallback_only INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS clerkships (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	specialty     TEXT NOT NULL DEFAULT '',
	required_days INTEGER NOT NULL DEFAULT 0,
	settings_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS requirements (
	clerkship_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	days           INTEGER NOT NULL,
	override_mode  TEXT NOT NULL DEFAULT 'inherit',
	overrides_json TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (clerkship_id, type)
);
CREATE TABLE IF NOT EXISTS electives (
	id                 TEXT PRIMARY KEY,
	clerkship_id       TEXT NOT NULL,
	name               TEXT NOT NULL,
	min_days           INTEGER NOT NULL,
	required           INTEGER NOT NULL DEFAULT 0,
	site_ids_json      TEXT NOT NULL DEFAULT '[]',
	preceptor_ids_json TEXT NOT NULL DEFAULT '[]',
	override_mode      TEXT NOT NULL DEFAULT 'inherit',
	overrides_json     TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS clerkship_preceptors (
	clerkship_id TEXT NOT NULL,
	preceptor_id TEXT NOT NULL,
	PRIMARY KEY (clerkship_id, preceptor_id)
);
CREATE TABLE IF NOT EXISTS teams (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL DEFAULT '',
	clerkship_id            TEXT NOT NULL,
	requirement_type        TEXT NOT NULL,
	members_json            TEXT NOT NULL,
	continuity_json         TEXT NOT NULL,
	requires_admin_approval INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS capacity_rules (
	id                     TEXT PRIMARY KEY,
	preceptor_id           TEXT NOT NULL,
	clerkship_id           TEXT,
	requirement_type       TEXT,
	max_students_per_day   INTEGER NOT NULL,
	max_students_per_year  INTEGER NOT NULL,
	max_students_per_block INTEGER,
	max_blocks_per_year    INTEGER
);
CREATE TABLE IF NOT EXISTS availability_patterns (
	id              TEXT PRIMARY KEY,
	preceptor_id    TEXT NOT NULL,
	site_id         TEXT NOT NULL DEFAULT '',
	enabled         INTEGER NOT NULL DEFAULT 1,
	kind            TEXT NOT NULL,
	weekdays_json   TEXT NOT NULL DEFAULT '[]',
	weekday         INTEGER NOT NULL DEFAULT 0,
	ordinal         INTEGER NOT NULL DEFAULT 0,
	exceptions_json TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS blackout_dates (
	id         TEXT PRIMARY KEY,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS assignments (
	id               TEXT PRIMARY KEY,
	student_id       TEXT NOT NULL,
	preceptor_id     TEXT NOT NULL,
	clerkship_id     TEXT NOT NULL,
	elective_id      TEXT NOT NULL DEFAULT '',
	requirement_type TEXT NOT NULL,
	date             TEXT NOT NULL,
	team_id          TEXT NOT NULL DEFAULT '',
	used_fallback    INTEGER NOT NULL DEFAULT 0,
	pending_approval INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_assignments_preceptor_date ON assignments(preceptor_id, date);
CREATE INDEX IF NOT EXISTS idx_assignments_student_date ON assignments(student_id, date);
CREATE INDEX IF NOT EXISTS idx_assignments_date ON assignments(date);
CREATE INDEX IF NOT EXISTS idx_capacity_rules_preceptor ON capacity_rules(preceptor_id);
CREATE INDEX IF NOT EXISTS idx_patterns_preceptor ON availability_patterns(preceptor_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Reset clears all data. Dev/demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tables := []string{
		"health_systems", "sites", "students", "preceptors", "clerkships",
		"requirements", "electives", "clerkship_preceptors", "teams",
		"capacity_rules", "availability_patterns", "blackout_dates", "assignments",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SEEDING / ADMIN WRITES
// =============================================================================

func (s *Store) SaveHealthSystem(ctx context.Context, h engine.HealthSystem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO health_systems (id, name) VALUES (?, ?)`, h.ID, h.Name)
	return err
}

func (s *Store) SaveSite(ctx context.Context, site engine.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sites (id, name, health_system_id) VALUES (?, ?, ?)`,
		site.ID, site.Name, site.HealthSystemID)
	return err
}

func (s *Store) SaveStudent(ctx context.Context, st engine.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO students (id, name, email) VALUES (?, ?, ?)`,
		st.ID, st.Name, st.Email)
	return err
}

func (s *Store) SavePreceptor(ctx context.Context, p engine.Preceptor) error {
	sites, err := json.Marshal(p.SiteIDs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO preceptors
		 (id, name, email, phone, specialty, health_system_id, site_ids_json, is_global_fallback_only)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.Phone, p.Specialty, p.HealthSystemID, string(sites), p.IsGlobalFallbackOnly)
	return err
}

func (s *Store) SaveClerkship(ctx context.Context, c engine.Clerkship) error {
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO clerkships (id, name, specialty, required_days, settings_json)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Specialty, c.RequiredDays, string(settings))
	return err
}

func (s *Store) SaveRequirement(ctx context.Context, r engine.Requirement) error {
	overrides, err := json.Marshal(r.Overrides)
	if err != nil {
		return err
	}
	mode := r.OverrideMode
	if mode == "" {
		mode = engine.OverrideInherit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO requirements (clerkship_id, type, days, override_mode, overrides_json)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ClerkshipID, r.Type, r.Days, mode, string(overrides))
	return err
}

func (s *Store) SaveElective(ctx context.Context, e engine.Elective) error {
	sites, err := json.Marshal(e.SiteIDs)
	if err != nil {
		return err
	}
	preceptors, err := json.Marshal(e.PreceptorIDs)
	if err != nil {
		return err
	}
	overrides, err := json.Marshal(e.Overrides)
	if err != nil {
		return err
	}
	mode := e.OverrideMode
	if mode == "" {
		mode = engine.OverrideInherit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO electives
		 (id, clerkship_id, name, min_days, required, site_ids_json, preceptor_ids_json, override_mode, overrides_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClerkshipID, e.Name, e.MinDays, e.Required, string(sites), string(preceptors), mode, string(overrides))
	return err
}

func (s *Store) SaveTeam(ctx context.Context, t engine.PreceptorTeam) error {
	members, err := json.Marshal(t.Members)
	if err != nil {
		return err
	}
	continuity, err := json.Marshal(t.Continuity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO teams
		 (id, name, clerkship_id, requirement_type, members_json, continuity_json, requires_admin_approval)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.ClerkshipID, t.RequirementType, string(members), string(continuity), t.RequiresAdminApproval)
	return err
}

// SaveCapacityRule validates before persisting; contradictory limits
// never reach the scheduler.
func (s *Store) SaveCapacityRule(ctx context.Context, r engine.CapacityRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var clerkship, reqType interface{}
	if r.ClerkshipID != nil {
		clerkship = string(*r.ClerkshipID)
	}
	if r.RequirementType != nil {
		reqType = string(*r.RequirementType)
	}
	var perBlock, blocksPerYear interface{}
	if r.MaxStudentsPerBlock != nil {
		perBlock = *r.MaxStudentsPerBlock
	}
	if r.MaxBlocksPerYear != nil {
		blocksPerYear = *r.MaxBlocksPerYear
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO capacity_rules
		 (id, preceptor_id, clerkship_id, requirement_type, max_students_per_day, max_students_per_year, max_students_per_block, max_blocks_per_year)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PreceptorID, clerkship, reqType, r.MaxStudentsPerDay, r.MaxStudentsPerYear, perBlock, blocksPerYear)
	return err
}

func (s *Store) SavePattern(ctx context.Context, p engine.AvailabilityPattern) error {
	weekdays, err := json.Marshal(p.Weekdays)
	if err != nil {
		return err
	}
	exceptions, err := json.Marshal(p.Exceptions)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO availability_patterns
		 (id, preceptor_id, site_id, enabled, kind, weekdays_json, weekday, ordinal, exceptions_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PreceptorID, p.SiteID, p.Enabled, p.Kind, string(weekdays), p.Weekday, p.Ordinal, string(exceptions))
	return err
}

func (s *Store) SaveBlackout(ctx context.Context, b engine.BlackoutDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := ""
	if !b.End.IsZero() {
		end = b.End.String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blackout_dates (id, start_date, end_date, reason) VALUES (?, ?, ?, ?)`,
		b.ID, b.Start.String(), end, b.Reason)
	return err
}

// LinkPreceptor marks a preceptor as eligible for a clerkship.
func (s *Store) LinkPreceptor(ctx context.Context, clerkshipID engine.ClerkshipID, preceptorID engine.PreceptorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO clerkship_preceptors (clerkship_id, preceptor_id) VALUES (?, ?)`,
		clerkshipID, preceptorID)
	return err
}

// =============================================================================
// LISTS (for the API layer)
// =============================================================================

func (s *Store) ListStudents(ctx context.Context) ([]engine.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Student
	for rows.Next() {
		var st engine.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Email); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ListPreceptors(ctx context.Context) ([]engine.Preceptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, phone, specialty, health_system_id, site_ids_json, is_global_fallback_only
		 FROM preceptors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Preceptor
	for rows.Next() {
		p, err := scanPreceptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) ListClerkships(ctx context.Context) ([]engine.Clerkship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, specialty, required_days, settings_json FROM clerkships ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Clerkship
	for rows.Next() {
		var c engine.Clerkship
		var settings string
		if err := rows.Scan(&c.ID, &c.Name, &c.Specialty, &c.RequiredDays, &settings); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(settings), &c.Settings); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// DATA SOURCE
// =============================================================================

func (s *Store) Student(ctx context.Context, id engine.StudentID) (*engine.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st engine.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM students WHERE id = ?`, id).
		Scan(&st.ID, &st.Name, &st.Email)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("student", string(id))
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPreceptor(row rowScanner) (*engine.Preceptor, error) {
	var p engine.Preceptor
	var sites string
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty,
		&p.HealthSystemID, &sites, &p.IsGlobalFallbackOnly); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sites), &p.SiteIDs); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Preceptor(ctx context.Context, id engine.PreceptorID) (*engine.Preceptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, specialty, health_system_id, site_ids_json, is_global_fallback_only
		 FROM preceptors WHERE id = ?`, id)
	p, err := scanPreceptor(row)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("preceptor", string(id))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) Clerkship(ctx context.Context, id engine.ClerkshipID) (*engine.Clerkship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c engine.Clerkship
	var settings string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, specialty, required_days, settings_json FROM clerkships WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Specialty, &c.RequiredDays, &settings)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("clerkship", string(id))
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settings), &c.Settings); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) Site(ctx context.Context, id engine.SiteID) (*engine.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var site engine.Site
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, health_system_id FROM sites WHERE id = ?`, id).
		Scan(&site.ID, &site.Name, &site.HealthSystemID)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("site", string(id))
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Store) Requirements(ctx context.Context, clerkshipID engine.ClerkshipID) ([]engine.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT clerkship_id, type, days, override_mode, overrides_json
		 FROM requirements WHERE clerkship_id = ? ORDER BY type`, clerkshipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Requirement
	for rows.Next() {
		var r engine.Requirement
		var overrides string
		if err := rows.Scan(&r.ClerkshipID, &r.Type, &r.Days, &r.OverrideMode, &overrides); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(overrides), &r.Overrides); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Electives(ctx context.Context, clerkshipID engine.ClerkshipID) ([]engine.Elective, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, clerkship_id, name, min_days, required, site_ids_json, preceptor_ids_json, override_mode, overrides_json
		 FROM electives WHERE clerkship_id = ? ORDER BY id`, clerkshipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Elective
	for rows.Next() {
		var e engine.Elective
		var sites, preceptors, overrides string
		if err := rows.Scan(&e.ID, &e.ClerkshipID, &e.Name, &e.MinDays, &e.Required,
			&sites, &preceptors, &e.OverrideMode, &overrides); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sites), &e.SiteIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(preceptors), &e.PreceptorIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(overrides), &e.Overrides); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EligiblePreceptors(ctx context.Context, clerkshipID engine.ClerkshipID, _ engine.RequirementType) ([]engine.Preceptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.email, p.phone, p.specialty, p.health_system_id, p.site_ids_json, p.is_global_fallback_only
		 FROM preceptors p
		 JOIN clerkship_preceptors cp ON cp.preceptor_id = p.id
		 WHERE cp.clerkship_id = ?
		 ORDER BY p.id`, clerkshipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Preceptor
	for rows.Next() {
		p, err := scanPreceptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) Teams(ctx context.Context, clerkshipID engine.ClerkshipID, t engine.RequirementType) ([]engine.PreceptorTeam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, clerkship_id, requirement_type, members_json, continuity_json, requires_admin_approval
		 FROM teams WHERE clerkship_id = ? AND requirement_type = ? ORDER BY id`, clerkshipID, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.PreceptorTeam
	for rows.Next() {
		var team engine.PreceptorTeam
		var members, continuity string
		if err := rows.Scan(&team.ID, &team.Name, &team.ClerkshipID, &team.RequirementType,
			&members, &continuity, &team.RequiresAdminApproval); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &team.Members); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(continuity), &team.Continuity); err != nil {
			return nil, err
		}
		out = append(out, team)
	}
	return out, rows.Err()
}

func (s *Store) CapacityRules(ctx context.Context, preceptorID engine.PreceptorID) ([]engine.CapacityRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, preceptor_id, clerkship_id, requirement_type, max_students_per_day, max_students_per_year, max_students_per_block, max_blocks_per_year
		 FROM capacity_rules WHERE preceptor_id = ? ORDER BY id`, preceptorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.CapacityRule
	for rows.Next() {
		var r engine.CapacityRule
		var clerkship, reqType sql.NullString
		var perBlock, blocksPerYear sql.NullInt64
		if err := rows.Scan(&r.ID, &r.PreceptorID, &clerkship, &reqType,
			&r.MaxStudentsPerDay, &r.MaxStudentsPerYear, &perBlock, &blocksPerYear); err != nil {
			return nil, err
		}
		if clerkship.Valid {
			id := engine.ClerkshipID(clerkship.String)
			r.ClerkshipID = &id
		}
		if reqType.Valid {
			t := engine.RequirementType(reqType.String)
			r.RequirementType = &t
		}
		if perBlock.Valid {
			v := int(perBlock.Int64)
			r.MaxStudentsPerBlock = &v
		}
		if blocksPerYear.Valid {
			v := int(blocksPerYear.Int64)
			r.MaxBlocksPerYear = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Patterns(ctx context.Context, preceptorID engine.PreceptorID) ([]engine.AvailabilityPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, preceptor_id, site_id, enabled, kind, weekdays_json, weekday, ordinal, exceptions_json
		 FROM availability_patterns WHERE preceptor_id = ? ORDER BY id`, preceptorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.AvailabilityPattern
	for rows.Next() {
		var p engine.AvailabilityPattern
		var weekdays, exceptions string
		if err := rows.Scan(&p.ID, &p.PreceptorID, &p.SiteID, &p.Enabled, &p.Kind,
			&weekdays, &p.Weekday, &p.Ordinal, &exceptions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(weekdays), &p.Weekdays); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(exceptions), &p.Exceptions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Blackouts(ctx context.Context, r engine.DateRange) ([]engine.BlackoutDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_date, end_date, reason FROM blackout_dates ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.BlackoutDate
	for rows.Next() {
		var b engine.BlackoutDate
		var start, end string
		if err := rows.Scan(&b.ID, &start, &end, &b.Reason); err != nil {
			return nil, err
		}
		if b.Start, err = engine.ParseDate(start); err != nil {
			return nil, err
		}
		if end != "" {
			if b.End, err = engine.ParseDate(end); err != nil {
				return nil, err
			}
		}
		last := b.End
		if last.IsZero() {
			last = b.Start
		}
		if b.Start.BeforeOrEqual(r.End) && last.AfterOrEqual(r.Start) {
			out = append(out, b)
		}
	}
	return out, rows.Err()
}

func (s *Store) AssignmentsInRange(ctx context.Context, r engine.DateRange) ([]engine.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, preceptor_id, clerkship_id, elective_id, requirement_type, date, team_id, used_fallback, pending_approval
		 FROM assignments WHERE date >= ? AND date <= ? ORDER BY id`,
		r.Start.String(), r.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAssignment(row rowScanner) (*engine.Assignment, error) {
	var a engine.Assignment
	var date string
	if err := row.Scan(&a.ID, &a.StudentID, &a.PreceptorID, &a.ClerkshipID,
		&a.ElectiveID, &a.RequirementType, &date, &a.TeamID,
		&a.UsedFallback, &a.PendingApproval); err != nil {
		return nil, err
	}
	var err error
	if a.Date, err = engine.ParseDate(date); err != nil {
		return nil, err
	}
	return &a, nil
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

// SaveAssignments writes a batch inside a single transaction. A primary
// key collision rolls back the whole batch.
func (s *Store) SaveAssignments(ctx context.Context, assignments []engine.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range assignments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO assignments
			 (id, student_id, preceptor_id, clerkship_id, elective_id, requirement_type, date, team_id, used_fallback, pending_approval)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.StudentID, a.PreceptorID, a.ClerkshipID, a.ElectiveID,
			a.RequirementType, a.Date.String(), a.TeamID, a.UsedFallback, a.PendingApproval)
		if err != nil {
			return &engine.ConflictError{Kind: "assignment", ID: string(a.ID), Reason: err.Error()}
		}
	}
	return tx.Commit()
}

func (s *Store) Assignment(ctx context.Context, id engine.AssignmentID) (*engine.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, preceptor_id, clerkship_id, elective_id, requirement_type, date, team_id, used_fallback, pending_approval
		 FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("assignment", string(id))
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) UpdateAssignments(ctx context.Context, assignments []engine.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range assignments {
		res, err := tx.ExecContext(ctx,
			`UPDATE assignments SET student_id = ?, preceptor_id = ?, clerkship_id = ?, elective_id = ?,
			 requirement_type = ?, date = ?, team_id = ?, used_fallback = ?, pending_approval = ?
			 WHERE id = ?`,
			a.StudentID, a.PreceptorID, a.ClerkshipID, a.ElectiveID,
			a.RequirementType, a.Date.String(), a.TeamID, a.UsedFallback, a.PendingApproval, a.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return engine.NewNotFound("assignment", string(a.ID))
		}
	}
	return tx.Commit()
}
