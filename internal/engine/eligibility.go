package engine

import (
	"homeline/internal/config"
	"homeline/internal/domain"
)

// EligibilityInput is a point-in-time snapshot of everything the
// evaluator looks at. Building it is the caller's job; evaluating it has
// no side effects, so the same snapshot serves both display and the hard
// gate before a transition.
type EligibilityInput struct {
	Applicant domain.Actor
	Project   domain.Project
	Today     string
	// HasActiveApp is true when the applicant holds a pending,
	// successful or booked application anywhere.
	HasActiveApp bool
	// HandlesProject is true when the applicant, acting as an officer,
	// is approved to handle this very project.
	HandlesProject bool
	// HandledProjects are the projects the applicant is approved to
	// handle as an officer, used for the window-overlap rule.
	HandledProjects []domain.Project
	Units           []domain.UnitCount
}

// WindowOpen reports whether today falls inside the project's
// application window, inclusive on both ends.
func WindowOpen(p domain.Project, today string) bool {
	return p.OpenDate <= today && today <= p.CloseDate
}

// projectOpenTo applies every rule that does not depend on the unit
// type: visibility, window, single-active-application, and the officer
// conflict rules.
func projectOpenTo(in EligibilityInput) bool {
	if !in.Project.Visible || !WindowOpen(in.Project, in.Today) {
		return false
	}
	if in.HasActiveApp {
		return false
	}
	if in.HandlesProject {
		return false
	}
	for _, h := range in.HandledProjects {
		if domain.WindowsOverlap(in.Project.OpenDate, in.Project.CloseDate, h.OpenDate, h.CloseDate) {
			return false
		}
	}
	return true
}

// tierAllowed applies the age and marital-status rules for one catalog
// tier. Married applicants over the threshold take any tier; singles
// over theirs are restricted to the configured tiers.
func tierAllowed(cfg *config.Config, a domain.Actor, tier int) bool {
	switch a.MaritalStatus {
	case domain.Married:
		return a.Age >= cfg.Eligibility.Married.MinAge
	case domain.Single:
		return a.Age >= cfg.Eligibility.Single.MinAge && cfg.SingleTierAllowed(tier)
	}
	return false
}

// EligibleUnitTypes returns the unit types the applicant may select on
// the project right now, in catalog tier order. A type is selectable
// only while at least one unit remains.
func EligibleUnitTypes(cfg *config.Config, in EligibilityInput) []string {
	if !projectOpenTo(in) {
		return nil
	}
	available := map[string]int{}
	for _, u := range in.Units {
		available[u.UnitType] = u.Available
	}
	var res []string
	for _, name := range cfg.UnitTypeNames() {
		if available[name] <= 0 {
			continue
		}
		if tierAllowed(cfg, in.Applicant, cfg.Tier(name)) {
			res = append(res, name)
		}
	}
	return res
}

// IsEligible reports whether the applicant may apply for one unit type.
func IsEligible(cfg *config.Config, in EligibilityInput, unitType string) bool {
	for _, name := range EligibleUnitTypes(cfg, in) {
		if name == unitType {
			return true
		}
	}
	return false
}
