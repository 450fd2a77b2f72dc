package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory answers the lookups the core borrows from the portal CRUD layer:
// patient existence and the patient's assigned pharmacy. All reads, no
// ownership of the underlying tables.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates a directory over the shared connection pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// PharmacyFor resolves the pharmacy assigned to the patient behind an
// appointment. Fulfillment uses this to pick the stock row to decrement.
func (d *Directory) PharmacyFor(ctx context.Context, apptID int64) (int64, error) {
	query := `
		SELECT p.pharmacy_id
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1 AND p.pharmacy_id IS NOT NULL
	`
	var pharmacyID int64
	err := d.pool.QueryRow(ctx, query, apptID).Scan(&pharmacyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &NotFoundError{Entity: "appointment", ID: apptID}
	}
	if err != nil {
		return 0, fmt.Errorf("pharmacy lookup: %w", err)
	}
	return pharmacyID, nil
}

// PatientExists reports whether a patient row exists.
func (d *Directory) PatientExists(ctx context.Context, patientID int64) (bool, error) {
	var one int
	err := d.pool.QueryRow(ctx, `SELECT 1 FROM patients WHERE id = $1`, patientID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("patient lookup: %w", err)
	}
	return true, nil
}
