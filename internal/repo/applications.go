package repo

import (
	"context"
	"database/sql"
	"strings"

	"homeline/internal/domain"
)

const applicationCols = `id,applicant_id,project_id,unit_type,booked_unit_type,status,withdrawal_requested,created_at,updated_at`

func (r Repo) InsertApplication(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO applications(id,applicant_id,project_id,unit_type,booked_unit_type,status,withdrawal_requested,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ApplicantID, a.ProjectID, a.UnitType, nullableStringPtr(a.BookedUnitType), a.Status, boolInt(a.WithdrawalRequested), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateApplication(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	_, err := tx.ExecContext(ctx, `UPDATE applications SET booked_unit_type=?, status=?, withdrawal_requested=?, updated_at=? WHERE id=?`,
		nullableStringPtr(a.BookedUnitType), a.Status, boolInt(a.WithdrawalRequested), a.UpdatedAt, a.ID)
	return err
}

func (r Repo) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	return scanApplication(r.DB.QueryRowContext(ctx, `SELECT `+applicationCols+` FROM applications WHERE id=?`, id))
}

func (r Repo) GetApplicationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Application, error) {
	return scanApplication(tx.QueryRowContext(ctx, `SELECT `+applicationCols+` FROM applications WHERE id=?`, id))
}

func scanApplication(row *sql.Row) (domain.Application, error) {
	var a domain.Application
	var booked sql.NullString
	var withdrawal int
	err := row.Scan(&a.ID, &a.ApplicantID, &a.ProjectID, &a.UnitType, &booked, &a.Status, &withdrawal, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if booked.Valid {
		a.BookedUnitType = &booked.String
	}
	a.WithdrawalRequested = withdrawal != 0
	return a, nil
}

// ActiveApplication returns the applicant's non-terminal application, if any.
func (r Repo) ActiveApplication(ctx context.Context, applicantID string) (domain.Application, error) {
	return r.activeApplication(ctx, nil, applicantID)
}

func (r Repo) ActiveApplicationTx(ctx context.Context, tx *sql.Tx, applicantID string) (domain.Application, error) {
	return r.activeApplication(ctx, tx, applicantID)
}

func (r Repo) activeApplication(ctx context.Context, tx *sql.Tx, applicantID string) (domain.Application, error) {
	placeholders := strings.Repeat("?,", len(domain.ActiveApplicationStatuses))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT ` + applicationCols + ` FROM applications WHERE applicant_id=? AND status IN (` + placeholders + `) LIMIT 1`
	args := []any{applicantID}
	for _, s := range domain.ActiveApplicationStatuses {
		args = append(args, s)
	}
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, args...)
	} else {
		row = r.DB.QueryRowContext(ctx, query, args...)
	}
	return scanApplication(row)
}

// CountApplicationsByStatus counts applications for one inventory cell in
// the given statuses. Used for the capacity-below-committed check.
func (r Repo) CountApplicationsByStatus(ctx context.Context, tx *sql.Tx, projectID, unitType string, statuses []string) (int, error) {
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{projectID, unitType}
	for _, s := range statuses {
		args = append(args, s)
	}
	row := tx.QueryRowContext(ctx, `SELECT count(*) FROM applications WHERE project_id=? AND unit_type=? AND status IN (`+placeholders+`)`, args...)
	var n int
	err := row.Scan(&n)
	return n, err
}

// HasApplicationToProject reports whether the actor ever applied to the project.
func (r Repo) HasApplicationToProject(ctx context.Context, tx *sql.Tx, applicantID, projectID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE applicant_id=? AND project_id=? LIMIT 1`, applicantID, projectID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

type ApplicationFilters struct {
	ProjectID           string
	ApplicantID         string
	Status              string
	WithdrawalRequested bool
	Limit               int
	CursorCreatedAt     string
	CursorID            string
}

func (r Repo) ListApplications(ctx context.Context, f ApplicationFilters) ([]domain.Application, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.ApplicantID != "" {
		clauses = append(clauses, "applicant_id=?")
		args = append(args, f.ApplicantID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.WithdrawalRequested {
		clauses = append(clauses, "withdrawal_requested=1")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + applicationCols + ` FROM applications ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		var a domain.Application
		var booked sql.NullString
		var withdrawal int
		if err := rows.Scan(&a.ID, &a.ApplicantID, &a.ProjectID, &a.UnitType, &booked, &a.Status, &withdrawal, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if booked.Valid {
			a.BookedUnitType = &booked.String
		}
		a.WithdrawalRequested = withdrawal != 0
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountApplicationsForProject groups a project's applications by status.
func (r Repo) CountApplicationsForProject(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM applications WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
