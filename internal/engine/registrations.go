package engine

import (
	"context"
	"fmt"
	"time"

	"homeline/internal/domain"
	"homeline/internal/events"
)

func ensureRegistrationTransition(old, next string) error {
	if old == domain.RegPending && (next == domain.RegApproved || next == domain.RegRejected) {
		return nil
	}
	return InvalidStateError{Entity: "registration", From: old, Attempted: next}
}

// overlapsApproved reports whether the window of project conflicts with
// any project the officer is already approved to handle.
func overlapsApproved(project domain.Project, handled []domain.Project) bool {
	for _, h := range handled {
		if h.ID == project.ID {
			continue
		}
		if domain.WindowsOverlap(project.OpenDate, project.CloseDate, h.OpenDate, h.CloseDate) {
			return true
		}
	}
	return false
}

// RegisterOfficer files a pending registration to handle a project. An
// officer who has applied to the project, holds an approved assignment
// with an overlapping window, or targets a project with no free slots
// is turned away up front.
func (e Engine) RegisterOfficer(ctx context.Context, officerID, projectID string) (domain.Registration, error) {
	officer, err := e.Repo.GetActor(ctx, officerID)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("officer %s: %w", officerID, err)
	}
	if officer.Role != domain.RoleOfficer {
		return domain.Registration{}, fmt.Errorf("actor %s is not an officer", officer.ID)
	}
	unlock := e.lockProject(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Registration{}, err
	}
	defer tx.Rollback()

	project, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Registration{}, err
	}
	applied, err := e.Repo.HasApplicationToProject(ctx, tx, officer.ID, project.ID)
	if err != nil {
		return domain.Registration{}, err
	}
	if applied {
		return domain.Registration{}, fmt.Errorf("officer %s has applied to project %s", officer.ID, project.ID)
	}
	registered, err := e.Repo.HasRegistrationToProject(ctx, tx, officer.ID, project.ID)
	if err != nil {
		return domain.Registration{}, err
	}
	if registered {
		return domain.Registration{}, fmt.Errorf("officer %s already registered for project %s", officer.ID, project.ID)
	}
	handled, err := e.Repo.ApprovedProjectsForOfficerTx(ctx, tx, officer.ID)
	if err != nil {
		return domain.Registration{}, err
	}
	if overlapsApproved(project, handled) {
		return domain.Registration{}, ErrOverlappingAssignment
	}
	if project.SlotsFilled >= project.OfficerSlots {
		return domain.Registration{}, ErrSlotsFull
	}
	now := e.now().UTC().Format(time.RFC3339)
	reg := domain.Registration{
		ID:        newID(),
		OfficerID: officer.ID,
		ProjectID: project.ID,
		Status:    domain.RegPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertRegistration(ctx, tx, reg); err != nil {
		return domain.Registration{}, fmt.Errorf("insert registration: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "registration.create", project.ID, "registration", reg.ID, officer.ID, events.EventPayload{
		"officer_id": reg.OfficerID,
	}); err != nil {
		return domain.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Registration{}, err
	}
	return reg, nil
}

// ApproveRegistration consumes a slot and binds the officer to the
// project. Slot count and window overlap are re-checked here, under the
// project lock, so concurrent approvals racing for the last slot cannot
// both win.
func (e Engine) ApproveRegistration(ctx context.Context, registrationID, actorID string) (domain.Registration, error) {
	reg, err := e.Repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return domain.Registration{}, err
	}
	unlock := e.lockProject(reg.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Registration{}, err
	}
	defer tx.Rollback()

	reg, err = e.Repo.GetRegistrationTx(ctx, tx, registrationID)
	if err != nil {
		return domain.Registration{}, err
	}
	project, err := e.Repo.GetProjectTx(ctx, tx, reg.ProjectID)
	if err != nil {
		return domain.Registration{}, err
	}
	if project.ManagerID != actorID {
		return domain.Registration{}, NotOwnerError{ActorID: actorID, ProjectID: project.ID}
	}
	if err := ensureRegistrationTransition(reg.Status, domain.RegApproved); err != nil {
		return domain.Registration{}, err
	}
	if project.SlotsFilled >= project.OfficerSlots {
		return domain.Registration{}, ErrSlotsFull
	}
	handled, err := e.Repo.ApprovedProjectsForOfficerTx(ctx, tx, reg.OfficerID)
	if err != nil {
		return domain.Registration{}, err
	}
	if overlapsApproved(project, handled) {
		return domain.Registration{}, ErrOverlappingAssignment
	}
	now := e.now().UTC().Format(time.RFC3339)
	reg.Status = domain.RegApproved
	reg.UpdatedAt = now
	if err := e.Repo.UpdateRegistrationStatus(ctx, tx, reg.ID, reg.Status, reg.UpdatedAt); err != nil {
		return domain.Registration{}, err
	}
	project.SlotsFilled++
	project.UpdatedAt = now
	if err := e.Repo.UpdateProject(ctx, tx, project); err != nil {
		return domain.Registration{}, err
	}
	if err := e.Events.Append(ctx, tx, "registration.approve", project.ID, "registration", reg.ID, actorID, events.EventPayload{
		"officer_id": reg.OfficerID, "slots_filled": project.SlotsFilled,
	}); err != nil {
		return domain.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Registration{}, err
	}
	return reg, nil
}

// RejectRegistration terminates a pending registration. Pending never
// held a slot, so the counter stays put.
func (e Engine) RejectRegistration(ctx context.Context, registrationID, actorID string) (domain.Registration, error) {
	reg, err := e.Repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return domain.Registration{}, err
	}
	unlock := e.lockProject(reg.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Registration{}, err
	}
	defer tx.Rollback()

	reg, err = e.Repo.GetRegistrationTx(ctx, tx, registrationID)
	if err != nil {
		return domain.Registration{}, err
	}
	project, err := e.Repo.GetProjectTx(ctx, tx, reg.ProjectID)
	if err != nil {
		return domain.Registration{}, err
	}
	if project.ManagerID != actorID {
		return domain.Registration{}, NotOwnerError{ActorID: actorID, ProjectID: project.ID}
	}
	if err := ensureRegistrationTransition(reg.Status, domain.RegRejected); err != nil {
		return domain.Registration{}, err
	}
	reg.Status = domain.RegRejected
	reg.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateRegistrationStatus(ctx, tx, reg.ID, reg.Status, reg.UpdatedAt); err != nil {
		return domain.Registration{}, err
	}
	if err := e.Events.Append(ctx, tx, "registration.reject", project.ID, "registration", reg.ID, actorID, nil); err != nil {
		return domain.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Registration{}, err
	}
	return reg, nil
}
