package domain

type Actor struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Age           int    `json:"age"`
	MaritalStatus string `json:"marital_status" enum:"single,married"`
	Role          string `json:"role" enum:"applicant,officer,manager"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Project struct {
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

// UnitCount is one inventory cell of a project.
type UnitCount struct {
	ProjectID string `json:"project_id"`
	UnitType  string `json:"unit_type"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
}

type Application struct {
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

// Registration is an officer's request to handle a project.
type Registration struct {
	ID        string `json:"id"`
	OfficerID string `json:"officer_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status" enum:"pending,approved,rejected"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Actor roles.
const (
	RoleApplicant = "applicant"
	RoleOfficer   = "officer"
	RoleManager   = "manager"
)

// Marital statuses.
const (
	Single  = "single"
	Married = "married"
)

// Application statuses.
const (
	AppPending      = "pending"
	AppSuccessful   = "successful"
	AppBooked       = "booked"
	AppUnsuccessful = "unsuccessful"
	AppWithdrawn    = "withdrawn"
)

// Registration statuses.
const (
	RegPending  = "pending"
	RegApproved = "approved"
	RegRejected = "rejected"
)

// ActiveApplicationStatuses count against the one-active-application rule.
// Terminal unsuccessful/withdrawn applications do not.
var ActiveApplicationStatuses = []string{AppPending, AppSuccessful, AppBooked}

// WindowsOverlap reports whether two application windows intersect.
// Windows are compared as [open, close) intervals, so a project closing
// the day another opens does not conflict. Dates are ISO strings so
// lexical comparison is safe.
func WindowsOverlap(aOpen, aClose, bOpen, bClose string) bool {
	return aOpen < bClose && bOpen < aClose
}
