package engine

import (
	"errors"
	"fmt"
)

// Business conditions returned as first-class errors. Callers translate
// them into exit codes or HTTP statuses; none of them is fatal.
var (
	ErrNotEligible           = errors.New("not eligible")
	ErrNoUnitsAvailable      = errors.New("no units available")
	ErrSlotsFull             = errors.New("officer slots full")
	ErrOverlappingAssignment = errors.New("overlapping assignment window")
	ErrActiveApplication     = errors.New("applicant already has an active application")
	ErrProjectFrozen         = errors.New("project frozen while application window is open")
)

// NotOwnerError means the acting manager does not own the project.
type NotOwnerError struct {
	ActorID   string
	ProjectID string
}

func (e NotOwnerError) Error() string {
	return fmt.Sprintf("actor %s does not manage project %s", e.ActorID, e.ProjectID)
}

// InvalidStateError means an illegal lifecycle transition was attempted.
type InvalidStateError struct {
	Entity    string
	From      string
	Attempted string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.Attempted)
}
