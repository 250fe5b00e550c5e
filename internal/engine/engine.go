// Package engine is the single mutation entry point for the allocation
// core. Every operation opens one transaction, re-validates its
// preconditions under the owning project's lock, applies the change and
// appends an audit event before committing.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"homeline/internal/config"
	"homeline/internal/domain"
	"homeline/internal/events"
	"homeline/internal/ledger"
	"homeline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Ledger ledger.Ledger
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *projectLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Ledger: ledger.Ledger{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newProjectLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) today() string {
	return e.now().UTC().Format("2006-01-02")
}

// projectLocks serializes mutating operations per project. Cross-project
// operations never take more than one lock.
type projectLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{m: map[string]*sync.Mutex{}}
}

func (l *projectLocks) lock(projectID string) func() {
	l.mu.Lock()
	m, ok := l.m[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.m[projectID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (e Engine) lockProject(projectID string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.lock(projectID)
}

func newID() string {
	return uuid.NewString()
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// --- actors ---

type ActorUpsertOptions struct {
	ID            string
	Name          string
	Age           int
	MaritalStatus string
	Role          string
	ActorID       string
}

func (e Engine) UpsertActor(ctx context.Context, opts ActorUpsertOptions) (domain.Actor, error) {
	if strings.TrimSpace(opts.ID) == "" {
		return domain.Actor{}, errors.New("id is required")
	}
	switch opts.Role {
	case domain.RoleApplicant, domain.RoleOfficer, domain.RoleManager:
	default:
		return domain.Actor{}, fmt.Errorf("unknown role %q", opts.Role)
	}
	switch opts.MaritalStatus {
	case domain.Single, domain.Married:
	case "":
		if opts.Role != domain.RoleManager {
			return domain.Actor{}, errors.New("marital_status is required")
		}
	default:
		return domain.Actor{}, fmt.Errorf("unknown marital status %q", opts.MaritalStatus)
	}
	if opts.Age < 0 {
		return domain.Actor{}, errors.New("age must not be negative")
	}
	a := domain.Actor{
		ID:            opts.ID,
		Name:          opts.Name,
		Age:           opts.Age,
		MaritalStatus: opts.MaritalStatus,
		Role:          opts.Role,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertActor(ctx, tx, a); err != nil {
		return domain.Actor{}, fmt.Errorf("upsert actor: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "actor.upsert", "", "actor", a.ID, opts.ActorID, events.EventPayload{"role": a.Role}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// --- projects ---

type ProjectCreateOptions struct {
	ID           string
	Name         string
	Neighborhood string
	OpenDate     string
	CloseDate    string
	Visible      bool
	ManagerID    string
	OfficerSlots int
	Units        map[string]int
	ActorID      string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if e.Config == nil {
		return domain.Project{}, errors.New("config not loaded")
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if !validDate(opts.OpenDate) || !validDate(opts.CloseDate) {
		return domain.Project{}, errors.New("open_date and close_date must be YYYY-MM-DD")
	}
	if opts.CloseDate < opts.OpenDate {
		return domain.Project{}, errors.New("close_date before open_date")
	}
	if opts.OfficerSlots < 1 || opts.OfficerSlots > e.Config.Officers.MaxSlots {
		return domain.Project{}, fmt.Errorf("officer_slots must be between 1 and %d", e.Config.Officers.MaxSlots)
	}
	for unitType, total := range opts.Units {
		if !e.Config.KnownUnitType(unitType) {
			return domain.Project{}, fmt.Errorf("unknown unit type %q", unitType)
		}
		if total < 0 {
			return domain.Project{}, fmt.Errorf("unit type %s has negative total", unitType)
		}
	}
	manager, err := e.Repo.GetActor(ctx, opts.ManagerID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("manager %s: %w", opts.ManagerID, err)
	}
	if manager.Role != domain.RoleManager {
		return domain.Project{}, fmt.Errorf("actor %s is not a manager", manager.ID)
	}
	id := opts.ID
	if id == "" {
		id = newID()
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:           id,
		Name:         opts.Name,
		Neighborhood: opts.Neighborhood,
		OpenDate:     opts.OpenDate,
		CloseDate:    opts.CloseDate,
		Visible:      opts.Visible,
		ManagerID:    manager.ID,
		OfficerSlots: opts.OfficerSlots,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for _, unitType := range e.Config.UnitTypeNames() {
		total, ok := opts.Units[unitType]
		if !ok {
			continue
		}
		if err := e.Ledger.Init(ctx, tx, p.ID, unitType, total); err != nil {
			return domain.Project{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "project.create", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"name": p.Name, "open_date": p.OpenDate, "close_date": p.CloseDate,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

type ProjectUpdateOptions struct {
	ProjectID    string
	Name         *string
	Neighborhood *string
	OpenDate     *string
	CloseDate    *string
	OfficerSlots *int
	ActorID      string
}

// UpdateProject edits a project's descriptive fields and window. Name,
// dates and inventory are frozen while today is inside the window.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	unlock := e.lockProject(opts.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.ManagerID != opts.ActorID {
		return domain.Project{}, NotOwnerError{ActorID: opts.ActorID, ProjectID: p.ID}
	}
	frozen := WindowOpen(p, e.today())
	if frozen && (opts.Name != nil || opts.OpenDate != nil || opts.CloseDate != nil) {
		return domain.Project{}, ErrProjectFrozen
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Project{}, errors.New("name is required")
		}
		p.Name = *opts.Name
	}
	if opts.Neighborhood != nil {
		p.Neighborhood = *opts.Neighborhood
	}
	if opts.OpenDate != nil {
		if !validDate(*opts.OpenDate) {
			return domain.Project{}, errors.New("open_date must be YYYY-MM-DD")
		}
		p.OpenDate = *opts.OpenDate
	}
	if opts.CloseDate != nil {
		if !validDate(*opts.CloseDate) {
			return domain.Project{}, errors.New("close_date must be YYYY-MM-DD")
		}
		p.CloseDate = *opts.CloseDate
	}
	if p.CloseDate < p.OpenDate {
		return domain.Project{}, errors.New("close_date before open_date")
	}
	if opts.OfficerSlots != nil {
		if *opts.OfficerSlots < p.SlotsFilled {
			return domain.Project{}, ErrSlotsFull
		}
		if *opts.OfficerSlots < 1 || *opts.OfficerSlots > e.Config.Officers.MaxSlots {
			return domain.Project{}, fmt.Errorf("officer_slots must be between 1 and %d", e.Config.Officers.MaxSlots)
		}
		p.OfficerSlots = *opts.OfficerSlots
	}
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.update", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"open_date": p.OpenDate, "close_date": p.CloseDate,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// SetVisibility toggles whether applicants can see and apply to the
// project. Unlike the window fields it is never frozen.
func (e Engine) SetVisibility(ctx context.Context, projectID string, visible bool, actorID string) (domain.Project, error) {
	unlock := e.lockProject(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.ManagerID != actorID {
		return domain.Project{}, NotOwnerError{ActorID: actorID, ProjectID: p.ID}
	}
	if p.Visible == visible {
		return p, tx.Commit()
	}
	p.Visible = visible
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.visibility", p.ID, "project", p.ID, actorID, events.EventPayload{"visible": visible}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// SetCapacity changes the total for one inventory cell. Frozen while the
// window is open; refused when the new total would drop below the units
// already committed to successful or booked applications.
func (e Engine) SetCapacity(ctx context.Context, projectID, unitType string, total int, actorID string) (domain.UnitCount, error) {
	if e.Config == nil {
		return domain.UnitCount{}, errors.New("config not loaded")
	}
	if !e.Config.KnownUnitType(unitType) {
		return domain.UnitCount{}, fmt.Errorf("unknown unit type %q", unitType)
	}
	unlock := e.lockProject(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UnitCount{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.UnitCount{}, err
	}
	if p.ManagerID != actorID {
		return domain.UnitCount{}, NotOwnerError{ActorID: actorID, ProjectID: p.ID}
	}
	if WindowOpen(p, e.today()) {
		return domain.UnitCount{}, ErrProjectFrozen
	}
	committed, err := e.Repo.CountApplicationsByStatus(ctx, tx, p.ID, unitType, []string{domain.AppSuccessful, domain.AppBooked})
	if err != nil {
		return domain.UnitCount{}, err
	}
	if err := e.Ledger.SetCapacity(ctx, tx, p.ID, unitType, total, committed); err != nil {
		return domain.UnitCount{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.capacity", p.ID, "inventory", unitType, actorID, events.EventPayload{
		"unit_type": unitType, "total": total,
	}); err != nil {
		return domain.UnitCount{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UnitCount{}, err
	}
	return e.Ledger.Get(ctx, p.ID, unitType)
}

// --- eligibility queries ---

// eligibilityInput assembles the evaluator snapshot inside the caller's
// transaction so the hard gate and the mutation see the same state.
func (e Engine) eligibilityInput(ctx context.Context, tx *sql.Tx, applicant domain.Actor, project domain.Project) (EligibilityInput, error) {
	in := EligibilityInput{
		Applicant: applicant,
		Project:   project,
		Today:     e.today(),
	}
	_, err := e.Repo.ActiveApplicationTx(ctx, tx, applicant.ID)
	if err == nil {
		in.HasActiveApp = true
	} else if !errors.Is(err, repo.ErrNotFound) {
		return in, err
	}
	if applicant.Role == domain.RoleOfficer {
		handled, err := e.Repo.ApprovedProjectsForOfficerTx(ctx, tx, applicant.ID)
		if err != nil {
			return in, err
		}
		for _, h := range handled {
			if h.ID == project.ID {
				in.HandlesProject = true
			}
		}
		in.HandledProjects = handled
	}
	units, err := e.Ledger.ListTx(ctx, tx, project.ID)
	if err != nil {
		return in, err
	}
	in.Units = units
	return in, nil
}

// EligibleProjects lists the projects the applicant could apply to
// today, with at least one selectable unit type.
func (e Engine) EligibleProjects(ctx context.Context, applicantID string) ([]domain.Project, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	applicant, err := e.Repo.GetActor(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{VisibleOnly: true})
	if err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var res []domain.Project
	for _, p := range projects {
		in, err := e.eligibilityInput(ctx, tx, applicant, p)
		if err != nil {
			return nil, err
		}
		if len(EligibleUnitTypes(e.Config, in)) > 0 {
			res = append(res, p)
		}
	}
	return res, nil
}

// EligibleUnitTypesFor returns the unit types the applicant may select
// on one project right now.
func (e Engine) EligibleUnitTypesFor(ctx context.Context, applicantID, projectID string) ([]string, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	applicant, err := e.Repo.GetActor(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	in, err := e.eligibilityInput(ctx, tx, applicant, project)
	if err != nil {
		return nil, err
	}
	return EligibleUnitTypes(e.Config, in), nil
}
