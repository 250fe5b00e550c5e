package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homeline/internal/domain"
	"homeline/internal/events"
	"homeline/internal/ledger"
)

// ensureApplicationTransition validates a lifecycle edge. Withdrawn is
// reachable from any active state through the withdrawal side-channel;
// terminal states have no outgoing edges.
func ensureApplicationTransition(old, next string) error {
	allowed := false
	switch old {
	case domain.AppPending:
		allowed = next == domain.AppSuccessful || next == domain.AppUnsuccessful || next == domain.AppWithdrawn
	case domain.AppSuccessful:
		allowed = next == domain.AppBooked || next == domain.AppWithdrawn
	case domain.AppBooked:
		allowed = next == domain.AppWithdrawn
	}
	if !allowed {
		return InvalidStateError{Entity: "application", From: old, Attempted: next}
	}
	return nil
}

// CreateApplication records a new pending application. Eligibility is
// the hard gate; no inventory is reserved until booking.
func (e Engine) CreateApplication(ctx context.Context, applicantID, projectID, unitType, actorID string) (domain.Application, error) {
	if e.Config == nil {
		return domain.Application{}, errors.New("config not loaded")
	}
	if !e.Config.KnownUnitType(unitType) {
		return domain.Application{}, fmt.Errorf("unknown unit type %q", unitType)
	}
	applicant, err := e.Repo.GetActor(ctx, applicantID)
	if err != nil {
		return domain.Application{}, fmt.Errorf("applicant %s: %w", applicantID, err)
	}
	if applicant.Role == domain.RoleManager {
		return domain.Application{}, fmt.Errorf("actor %s cannot apply as a manager", applicant.ID)
	}
	unlock := e.lockProject(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	project, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Application{}, err
	}
	in, err := e.eligibilityInput(ctx, tx, applicant, project)
	if err != nil {
		return domain.Application{}, err
	}
	if in.HasActiveApp {
		return domain.Application{}, ErrActiveApplication
	}
	if !IsEligible(e.Config, in, unitType) {
		return domain.Application{}, ErrNotEligible
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Application{
		ID:          newID(),
		ApplicantID: applicant.ID,
		ProjectID:   project.ID,
		UnitType:    unitType,
		Status:      domain.AppPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertApplication(ctx, tx, a); err != nil {
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "application.create", project.ID, "application", a.ID, actorID, events.EventPayload{
		"applicant_id": a.ApplicantID, "unit_type": a.UnitType,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// ApproveApplication moves pending to successful. Availability is
// checked, not reserved: the unit is only consumed at booking.
func (e Engine) ApproveApplication(ctx context.Context, applicationID, actorID string) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	unlock := e.lockProject(a.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	a, err = e.Repo.GetApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	project, err := e.Repo.GetProjectTx(ctx, tx, a.ProjectID)
	if err != nil {
		return domain.Application{}, err
	}
	if project.ManagerID != actorID {
		return domain.Application{}, NotOwnerError{ActorID: actorID, ProjectID: project.ID}
	}
	if err := ensureApplicationTransition(a.Status, domain.AppSuccessful); err != nil {
		return domain.Application{}, err
	}
	if a.WithdrawalRequested {
		return domain.Application{}, InvalidStateError{Entity: "application", From: a.Status + " (withdrawal requested)", Attempted: domain.AppSuccessful}
	}
	unit, err := e.Ledger.GetTx(ctx, tx, project.ID, a.UnitType)
	if err != nil {
		return domain.Application{}, err
	}
	if unit.Available <= 0 {
		return domain.Application{}, ErrNoUnitsAvailable
	}
	a.Status = domain.AppSuccessful
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.approve", project.ID, "application", a.ID, actorID, events.EventPayload{
		"applicant_id": a.ApplicantID, "unit_type": a.UnitType,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// RejectApplication moves pending to unsuccessful.
func (e Engine) RejectApplication(ctx context.Context, applicationID, actorID string) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	unlock := e.lockProject(a.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	a, err = e.Repo.GetApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	project, err := e.Repo.GetProjectTx(ctx, tx, a.ProjectID)
	if err != nil {
		return domain.Application{}, err
	}
	if project.ManagerID != actorID {
		return domain.Application{}, NotOwnerError{ActorID: actorID, ProjectID: project.ID}
	}
	if err := ensureApplicationTransition(a.Status, domain.AppUnsuccessful); err != nil {
		return domain.Application{}, err
	}
	a.Status = domain.AppUnsuccessful
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.reject", project.ID, "application", a.ID, actorID, nil); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// RequestWithdrawal flags an active application for manager review.
// Idempotent when the flag is already set.
func (e Engine) RequestWithdrawal(ctx context.Context, applicationID, actorID string) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	unlock := e.lockProject(a.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	a, err = e.Repo.GetApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	if a.ApplicantID != actorID {
		return domain.Application{}, NotOwnerError{ActorID: actorID, ProjectID: a.ProjectID}
	}
	switch a.Status {
	case domain.AppPending, domain.AppSuccessful, domain.AppBooked:
	default:
		return domain.Application{}, InvalidStateError{Entity: "application", From: a.Status, Attempted: "withdrawal request"}
	}
	if a.WithdrawalRequested {
		return a, tx.Commit()
	}
	a.WithdrawalRequested = true
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.withdrawal_request", a.ProjectID, "application", a.ID, actorID, nil); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// ResolveWithdrawal lets the owning manager act on a withdrawal flag.
// Approval terminates the application as withdrawn, returning the unit
// to inventory when one had been booked. Denial clears the flag and
// leaves the status untouched.
func (e Engine) ResolveWithdrawal(ctx context.Context, applicationID, actorID string, approve bool) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	unlock := e.lockProject(a.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	a, err = e.Repo.GetApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	project, err := e.Repo.GetProjectTx(ctx, tx, a.ProjectID)
	if err != nil {
		return domain.Application{}, err
	}
	if project.ManagerID != actorID {
		return domain.Application{}, NotOwnerError{ActorID: actorID, ProjectID: project.ID}
	}
	if !a.WithdrawalRequested {
		return domain.Application{}, InvalidStateError{Entity: "application", From: a.Status, Attempted: "withdrawal resolve"}
	}
	if approve {
		if err := ensureApplicationTransition(a.Status, domain.AppWithdrawn); err != nil {
			return domain.Application{}, err
		}
		if a.Status == domain.AppBooked {
			unitType := a.UnitType
			if a.BookedUnitType != nil {
				unitType = *a.BookedUnitType
			}
			if err := e.Ledger.Release(ctx, tx, project.ID, unitType); err != nil {
				return domain.Application{}, err
			}
		}
		a.Status = domain.AppWithdrawn
	}
	a.WithdrawalRequested = false
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.withdrawal_resolve", project.ID, "application", a.ID, actorID, events.EventPayload{
		"approved": approve, "status": a.Status,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// BookFlat consumes one unit for a successful application. Reservation
// and the status change share the transaction, so a failed reservation
// leaves the application successful with inventory untouched.
func (e Engine) BookFlat(ctx context.Context, applicationID, officerID, unitType string) (domain.Application, error) {
	officer, err := e.Repo.GetActor(ctx, officerID)
	if err != nil {
		return domain.Application{}, fmt.Errorf("officer %s: %w", officerID, err)
	}
	if officer.Role != domain.RoleOfficer {
		return domain.Application{}, fmt.Errorf("actor %s is not an officer", officer.ID)
	}
	a, err := e.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	unlock := e.lockProject(a.ProjectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	a, err = e.Repo.GetApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	handles, err := e.Repo.OfficerHandlesProject(ctx, tx, officer.ID, a.ProjectID)
	if err != nil {
		return domain.Application{}, err
	}
	if !handles {
		return domain.Application{}, NotOwnerError{ActorID: officer.ID, ProjectID: a.ProjectID}
	}
	if err := ensureApplicationTransition(a.Status, domain.AppBooked); err != nil {
		return domain.Application{}, err
	}
	if a.WithdrawalRequested {
		return domain.Application{}, InvalidStateError{Entity: "application", From: a.Status + " (withdrawal requested)", Attempted: domain.AppBooked}
	}
	if unitType == "" {
		unitType = a.UnitType
	}
	if unitType != a.UnitType {
		return domain.Application{}, fmt.Errorf("booked unit type %s must match approved type %s", unitType, a.UnitType)
	}
	if err := e.Ledger.Reserve(ctx, tx, a.ProjectID, unitType); err != nil {
		if errors.Is(err, ledger.ErrOutOfStock) {
			return domain.Application{}, ErrNoUnitsAvailable
		}
		return domain.Application{}, err
	}
	a.Status = domain.AppBooked
	a.BookedUnitType = &unitType
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.book", a.ProjectID, "application", a.ID, officer.ID, events.EventPayload{
		"unit_type": unitType,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}
