package repo

import (
	"context"
	"database/sql"
	"strings"

	"homeline/internal/domain"
)

const registrationCols = `id,officer_id,project_id,status,created_at,updated_at`

func (r Repo) InsertRegistration(ctx context.Context, tx *sql.Tx, reg domain.Registration) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO registrations(id,officer_id,project_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		reg.ID, reg.OfficerID, reg.ProjectID, reg.Status, reg.CreatedAt, reg.UpdatedAt)
	return err
}

func (r Repo) UpdateRegistrationStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE registrations SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	return err
}

func (r Repo) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	return scanRegistration(r.DB.QueryRowContext(ctx, `SELECT `+registrationCols+` FROM registrations WHERE id=?`, id))
}

func (r Repo) GetRegistrationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Registration, error) {
	return scanRegistration(tx.QueryRowContext(ctx, `SELECT `+registrationCols+` FROM registrations WHERE id=?`, id))
}

func scanRegistration(row *sql.Row) (domain.Registration, error) {
	var reg domain.Registration
	err := row.Scan(&reg.ID, &reg.OfficerID, &reg.ProjectID, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt)
	if err == sql.ErrNoRows {
		return reg, ErrNotFound
	}
	return reg, err
}

// ApprovedProjectsForOfficer returns the projects an officer is approved
// to handle, with their windows, for the overlap check.
func (r Repo) ApprovedProjectsForOfficer(ctx context.Context, officerID string) ([]domain.Project, error) {
	return r.approvedProjectsForOfficer(ctx, nil, officerID)
}

func (r Repo) ApprovedProjectsForOfficerTx(ctx context.Context, tx *sql.Tx, officerID string) ([]domain.Project, error) {
	return r.approvedProjectsForOfficer(ctx, tx, officerID)
}

func (r Repo) approvedProjectsForOfficer(ctx context.Context, tx *sql.Tx, officerID string) ([]domain.Project, error) {
	query := `SELECT p.id,p.name,COALESCE(p.neighborhood,''),p.open_date,p.close_date,p.visible,p.manager_id,p.officer_slots,p.slots_filled,p.created_at,p.updated_at
FROM registrations reg JOIN projects p ON p.id=reg.project_id
WHERE reg.officer_id=? AND reg.status=?`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, officerID, domain.RegApproved)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, officerID, domain.RegApproved)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var visible int
		if err := rows.Scan(&p.ID, &p.Name, &p.Neighborhood, &p.OpenDate, &p.CloseDate, &visible, &p.ManagerID, &p.OfficerSlots, &p.SlotsFilled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Visible = visible != 0
		res = append(res, p)
	}
	return res, rows.Err()
}

// OfficerHandlesProject reports whether the officer holds an approved
// registration for the project.
func (r Repo) OfficerHandlesProject(ctx context.Context, tx *sql.Tx, officerID, projectID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM registrations WHERE officer_id=? AND project_id=? AND status=? LIMIT 1`,
		officerID, projectID, domain.RegApproved)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// HasRegistrationToProject reports whether the officer already has any
// registration (regardless of status) for the project.
func (r Repo) HasRegistrationToProject(ctx context.Context, tx *sql.Tx, officerID, projectID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM registrations WHERE officer_id=? AND project_id=? LIMIT 1`, officerID, projectID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// AssignedOfficerIDs returns the officers approved for a project.
func (r Repo) AssignedOfficerIDs(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT officer_id FROM registrations WHERE project_id=? AND status=? ORDER BY updated_at ASC`,
		projectID, domain.RegApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type RegistrationFilters struct {
	ProjectID       string
	OfficerID       string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRegistrations(ctx context.Context, f RegistrationFilters) ([]domain.Registration, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.OfficerID != "" {
		clauses = append(clauses, "officer_id=?")
		args = append(args, f.OfficerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + registrationCols + ` FROM registrations ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(&reg.ID, &reg.OfficerID, &reg.ProjectID, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, reg)
	}
	return res, rows.Err()
}
