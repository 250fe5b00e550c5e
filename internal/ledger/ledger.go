// Package ledger owns the per-project, per-unit-type inventory cells.
// All mutations go through Reserve, Release and SetCapacity; callers
// hold the enclosing transaction so a failed reservation never leaves
// a partially applied decrement.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"homeline/internal/domain"
	"homeline/internal/repo"
)

// ErrOutOfStock means no unit of the requested type remains.
var ErrOutOfStock = errors.New("out of stock")

// ErrCapacityBelowCommitted means a capacity edit would drop the total
// below the units already promised to approved or booked applications.
var ErrCapacityBelowCommitted = errors.New("capacity below committed units")

// InvariantError reports a violation of 0 <= available <= total. It is a
// programming-contract breach, not a business condition: a correct
// caller never releases a unit that was not reserved.
type InvariantError struct {
	ProjectID string
	UnitType  string
	Detail    string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("inventory invariant violated for %s/%s: %s", e.ProjectID, e.UnitType, e.Detail)
}

// Ledger mutates flat_units rows inside a caller-owned transaction.
// Side effects are confined to the targeted (project, unit type) cell.
type Ledger struct {
	DB *sql.DB
}

func (l Ledger) cell(ctx context.Context, tx *sql.Tx, projectID, unitType string) (domain.UnitCount, error) {
	var u domain.UnitCount
	err := tx.QueryRowContext(ctx, `SELECT project_id,unit_type,total,available FROM flat_units WHERE project_id=? AND unit_type=?`,
		projectID, unitType).Scan(&u.ProjectID, &u.UnitType, &u.Total, &u.Available)
	if err == sql.ErrNoRows {
		return u, repo.ErrNotFound
	}
	return u, err
}

// Get reads one cell outside a transaction.
func (l Ledger) Get(ctx context.Context, projectID, unitType string) (domain.UnitCount, error) {
	var u domain.UnitCount
	err := l.DB.QueryRowContext(ctx, `SELECT project_id,unit_type,total,available FROM flat_units WHERE project_id=? AND unit_type=?`,
		projectID, unitType).Scan(&u.ProjectID, &u.UnitType, &u.Total, &u.Available)
	if err == sql.ErrNoRows {
		return u, repo.ErrNotFound
	}
	return u, err
}

// GetTx reads one cell within the transaction.
func (l Ledger) GetTx(ctx context.Context, tx *sql.Tx, projectID, unitType string) (domain.UnitCount, error) {
	return l.cell(ctx, tx, projectID, unitType)
}

// List returns all cells of a project ordered by unit type.
func (l Ledger) List(ctx context.Context, projectID string) ([]domain.UnitCount, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT project_id,unit_type,total,available FROM flat_units WHERE project_id=? ORDER BY unit_type ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UnitCount
	for rows.Next() {
		var u domain.UnitCount
		if err := rows.Scan(&u.ProjectID, &u.UnitType, &u.Total, &u.Available); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ListTx returns all cells of a project within the transaction.
func (l Ledger) ListTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.UnitCount, error) {
	rows, err := tx.QueryContext(ctx, `SELECT project_id,unit_type,total,available FROM flat_units WHERE project_id=? ORDER BY unit_type ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UnitCount
	for rows.Next() {
		var u domain.UnitCount
		if err := rows.Scan(&u.ProjectID, &u.UnitType, &u.Total, &u.Available); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// Init creates a cell with total == available. Used at project creation.
func (l Ledger) Init(ctx context.Context, tx *sql.Tx, projectID, unitType string, total int) error {
	if total < 0 {
		return InvariantError{ProjectID: projectID, UnitType: unitType, Detail: fmt.Sprintf("negative total %d", total)}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO flat_units(project_id,unit_type,total,available) VALUES (?,?,?,?)`,
		projectID, unitType, total, total)
	return err
}

// Reserve decrements available for one cell. The UPDATE is guarded by
// available > 0 so two bookings racing for the last unit cannot both win.
func (l Ledger) Reserve(ctx context.Context, tx *sql.Tx, projectID, unitType string) error {
	res, err := tx.ExecContext(ctx, `UPDATE flat_units SET available=available-1 WHERE project_id=? AND unit_type=? AND available > 0`,
		projectID, unitType)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := l.cell(ctx, tx, projectID, unitType); err != nil {
			return err
		}
		return ErrOutOfStock
	}
	return nil
}

// Release returns one unit to a cell, clamped at total. Releasing a unit
// that was never reserved is a logic error and surfaces as InvariantError.
func (l Ledger) Release(ctx context.Context, tx *sql.Tx, projectID, unitType string) error {
	res, err := tx.ExecContext(ctx, `UPDATE flat_units SET available=available+1 WHERE project_id=? AND unit_type=? AND available < total`,
		projectID, unitType)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := l.cell(ctx, tx, projectID, unitType); err != nil {
			return err
		}
		return InvariantError{ProjectID: projectID, UnitType: unitType, Detail: "release would exceed total"}
	}
	return nil
}

// SetCapacity changes a cell's total. committed is the number of
// approved/booked applications consuming the cell; the new total may not
// drop below it. available is recomputed from the units already handed out.
func (l Ledger) SetCapacity(ctx context.Context, tx *sql.Tx, projectID, unitType string, total, committed int) error {
	if total < 0 {
		return InvariantError{ProjectID: projectID, UnitType: unitType, Detail: fmt.Sprintf("negative total %d", total)}
	}
	if total < committed {
		return ErrCapacityBelowCommitted
	}
	u, err := l.cell(ctx, tx, projectID, unitType)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return l.Init(ctx, tx, projectID, unitType, total)
		}
		return err
	}
	consumed := u.Total - u.Available
	if total < consumed {
		return ErrCapacityBelowCommitted
	}
	_, err = tx.ExecContext(ctx, `UPDATE flat_units SET total=?, available=? WHERE project_id=? AND unit_type=?`,
		total, total-consumed, projectID, unitType)
	return err
}
