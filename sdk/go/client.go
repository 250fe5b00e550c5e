package homelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Homeline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Neighborhood string `json:"neighborhood,omitempty"`
	OpenDate     string `json:"open_date"`
	CloseDate    string `json:"close_date"`
	Visible      bool   `json:"visible"`
	ManagerID    string `json:"manager_id"`
	OfficerSlots int    `json:"officer_slots"`
	SlotsFilled  int    `json:"slots_filled"`
}

// UnitCount is one inventory cell of a project.
type UnitCount struct {
	UnitType  string `json:"unit_type"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
}

// Application represents an applicant's request for a unit.
type Application struct {
	ID                  string  `json:"id"`
	ApplicantID         string  `json:"applicant_id"`
	ProjectID           string  `json:"project_id"`
	UnitType            string  `json:"unit_type"`
	BookedUnitType      *string `json:"booked_unit_type,omitempty"`
	Status              string  `json:"status"`
	WithdrawalRequested bool    `json:"withdrawal_requested"`
}

// Registration represents an officer's request to handle a project.
type Registration struct {
	ID        string `json:"id"`
	OfficerID string `json:"officer_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedApplications wraps application listings with cursors.
type PaginatedApplications struct {
	Items      []Application `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

// PaginatedProjects wraps project listings with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// CreateApplication applies to a project. ApplicantID may be empty to
// apply as the authenticated actor.
func (c *Client) CreateApplication(ctx context.Context, applicantID, projectID, unitType string) (Application, error) {
	body := map[string]any{
		"applicant_id": applicantID,
		"project_id":   projectID,
		"unit_type":    unitType,
	}
	var resp Application
	err := c.do(ctx, http.MethodPost, "v0/applications", body, &resp)
	return resp, err
}

// GetApplication fetches an application by id.
func (c *Client) GetApplication(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodGet, "v0/applications/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ApproveApplication moves a pending application to successful.
func (c *Client) ApproveApplication(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/applications/%s/approve", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// RejectApplication moves a pending application to unsuccessful.
func (c *Client) RejectApplication(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/applications/%s/reject", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// RequestWithdrawal flags an application for withdrawal.
func (c *Client) RequestWithdrawal(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/applications/%s/withdraw", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ResolveWithdrawal approves or denies a withdrawal request.
func (c *Client) ResolveWithdrawal(ctx context.Context, id string, approve bool) (Application, error) {
	body := map[string]any{"approve": approve}
	var resp Application
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/applications/%s/resolve-withdrawal", url.PathEscape(id)), body, &resp)
	return resp, err
}

// BookFlat books a unit for a successful application. unitType may be
// empty to book the approved type.
func (c *Client) BookFlat(ctx context.Context, id, unitType string) (Application, error) {
	body := map[string]any{}
	if unitType != "" {
		body["unit_type"] = unitType
	}
	var resp Application
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/applications/%s/book", url.PathEscape(id)), body, &resp)
	return resp, err
}

// ApplicationsPage returns a paginated application listing.
func (c *Client) ApplicationsPage(ctx context.Context, limit int, cursor string) (PaginatedApplications, error) {
	endpoint := withPageParams("v0/applications", limit, cursor)
	var resp PaginatedApplications
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ProjectsPage returns a paginated project listing.
func (c *Client) ProjectsPage(ctx context.Context, limit int, cursor string) (PaginatedProjects, error) {
	endpoint := withPageParams("v0/projects", limit, cursor)
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ProjectUnits returns a project's inventory.
func (c *Client) ProjectUnits(ctx context.Context, projectID string) ([]UnitCount, error) {
	var resp []UnitCount
	endpoint := fmt.Sprintf("v0/projects/%s/units", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EligibleProjects returns projects the applicant may apply to.
func (c *Client) EligibleProjects(ctx context.Context, applicantID string) ([]Project, error) {
	var resp []Project
	endpoint := fmt.Sprintf("v0/applicants/%s/eligible-projects", url.PathEscape(applicantID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EligibleUnitTypes returns unit types the applicant can select on a project.
func (c *Client) EligibleUnitTypes(ctx context.Context, applicantID, projectID string) ([]string, error) {
	var resp []string
	endpoint := fmt.Sprintf("v0/applicants/%s/projects/%s/unit-types", url.PathEscape(applicantID), url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RegisterOfficer registers the authenticated officer to handle a project.
func (c *Client) RegisterOfficer(ctx context.Context, projectID string) (Registration, error) {
	body := map[string]any{"project_id": projectID}
	var resp Registration
	err := c.do(ctx, http.MethodPost, "v0/registrations", body, &resp)
	return resp, err
}

// ApproveRegistration approves a pending registration.
func (c *Client) ApproveRegistration(ctx context.Context, id string) (Registration, error) {
	var resp Registration
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/registrations/%s/approve", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := withPageParams("v0/events", limit, "")
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func withPageParams(endpoint string, limit int, cursor string) string {
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
