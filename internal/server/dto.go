package server

import (
	"homeline/internal/config"
	"homeline/internal/domain"
)

// Request payloads

type UpsertActorRequest struct {
	Name          string `json:"name,omitempty"`
	Age           int    `json:"age"`
	MaritalStatus string `json:"marital_status,omitempty" enum:"single,married"`
	Role          string `json:"role" enum:"applicant,officer,manager"`
}

type CreateProjectRequest struct {
	ID           *string        `json:"id,omitempty"`
	Name         string         `json:"name"`
	Neighborhood *string        `json:"neighborhood,omitempty"`
	OpenDate     string         `json:"open_date" format:"date"`
	CloseDate    string         `json:"close_date" format:"date"`
	Visible      bool           `json:"visible,omitempty"`
	OfficerSlots int            `json:"officer_slots"`
	Units        map[string]int `json:"units,omitempty"`
}

type UpdateProjectRequest struct {
	Name         *string `json:"name,omitempty"`
	Neighborhood *string `json:"neighborhood,omitempty"`
	OpenDate     *string `json:"open_date,omitempty" format:"date"`
	CloseDate    *string `json:"close_date,omitempty" format:"date"`
	OfficerSlots *int    `json:"officer_slots,omitempty"`
}

type SetVisibilityRequest struct {
	Visible bool `json:"visible"`
}

type SetCapacityRequest struct {
	Total int `json:"total"`
}

type CreateApplicationRequest struct {
	// ApplicantID defaults to the authenticated actor when empty.
	ApplicantID string `json:"applicant_id,omitempty"`
	ProjectID   string `json:"project_id"`
	UnitType    string `json:"unit_type"`
}

type ResolveWithdrawalRequest struct {
	Approve bool `json:"approve"`
}

type BookFlatRequest struct {
	UnitType string `json:"unit_type,omitempty"`
}

type RegisterOfficerRequest struct {
	ProjectID string `json:"project_id"`
}

// Response payloads

type ActorResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Age           int    `json:"age"`
	MaritalStatus string `json:"marital_status,omitempty" enum:"single,married"`
	Role          string `json:"role" enum:"applicant,officer,manager"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type ProjectResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Neighborhood string `json:"neighborhood,omitempty"`
	OpenDate     string `json:"open_date" format:"date"`
	CloseDate    string `json:"close_date" format:"date"`
	Visible      bool   `json:"visible"`
	ManagerID    string `json:"manager_id"`
	OfficerSlots int    `json:"officer_slots"`
	SlotsFilled  int    `json:"slots_filled"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type UnitCountResponse struct {
	UnitType  string `json:"unit_type"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
}

type ApplicationResponse struct {
	ID                  string  `json:"id"`
	ApplicantID         string  `json:"applicant_id"`
	ProjectID           string  `json:"project_id"`
	UnitType            string  `json:"unit_type"`
	BookedUnitType      *string `json:"booked_unit_type,omitempty"`
	Status              string  `json:"status" enum:"pending,successful,booked,unsuccessful,withdrawn"`
	WithdrawalRequested bool    `json:"withdrawal_requested"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	UpdatedAt           string  `json:"updated_at" format:"date-time"`
}

type RegistrationResponse struct {
	ID        string `json:"id"`
	OfficerID string `json:"officer_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status" enum:"pending,approved,rejected"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type SchemeConfigResponse struct {
	SchemeID string            `json:"scheme_id"`
	Catalog  []UnitTypeCatalog `json:"catalog"`
	Married  EligibilityRule   `json:"married"`
	Single   EligibilityRule   `json:"single"`
	MaxSlots int               `json:"max_officer_slots"`
}

type EligibilityRule struct {
	MinAge int   `json:"min_age"`
	Tiers  []int `json:"tiers,omitempty"`
}

type UnitTypeCatalog struct {
	Name        string `json:"name"`
	Tier        int    `json:"tier"`
	Description string `json:"description,omitempty"`
}

type paginatedApplications struct {
	Items      []ApplicationResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedRegistrations struct {
	Items      []RegistrationResponse `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse{
		ID:            a.ID,
		Name:          a.Name,
		Age:           a.Age,
		MaritalStatus: a.MaritalStatus,
		Role:          a.Role,
		CreatedAt:     a.CreatedAt,
	}
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:           p.ID,
		Name:         p.Name,
		Neighborhood: p.Neighborhood,
		OpenDate:     p.OpenDate,
		CloseDate:    p.CloseDate,
		Visible:      p.Visible,
		ManagerID:    p.ManagerID,
		OfficerSlots: p.OfficerSlots,
		SlotsFilled:  p.SlotsFilled,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func unitCountResponse(u domain.UnitCount) UnitCountResponse {
	return UnitCountResponse{UnitType: u.UnitType, Total: u.Total, Available: u.Available}
}

func mapUnitCounts(items []domain.UnitCount) []UnitCountResponse {
	res := make([]UnitCountResponse, 0, len(items))
	for _, u := range items {
		res = append(res, unitCountResponse(u))
	}
	return res
}

func applicationResponse(a domain.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:                  a.ID,
		ApplicantID:         a.ApplicantID,
		ProjectID:           a.ProjectID,
		UnitType:            a.UnitType,
		BookedUnitType:      a.BookedUnitType,
		Status:              a.Status,
		WithdrawalRequested: a.WithdrawalRequested,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func mapApplications(items []domain.Application) []ApplicationResponse {
	res := make([]ApplicationResponse, 0, len(items))
	for _, a := range items {
		res = append(res, applicationResponse(a))
	}
	return res
}

func registrationResponse(r domain.Registration) RegistrationResponse {
	return RegistrationResponse{
		ID:        r.ID,
		OfficerID: r.OfficerID,
		ProjectID: r.ProjectID,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func mapRegistrations(items []domain.Registration) []RegistrationResponse {
	res := make([]RegistrationResponse, 0, len(items))
	for _, r := range items {
		res = append(res, registrationResponse(r))
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			ProjectID:  e.ProjectID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return res
}

func catalogResponse(cfg *config.Config) []UnitTypeCatalog {
	var res []UnitTypeCatalog
	for _, name := range cfg.UnitTypeNames() {
		ut := cfg.Units.Catalog[name]
		res = append(res, UnitTypeCatalog{Name: name, Tier: ut.Tier, Description: ut.Description})
	}
	return res
}
