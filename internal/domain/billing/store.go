package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

// PGStore is the pgx-backed ledger store. Every mutation locks the patient
// row for the duration of the transaction, which serializes charges and
// credits per patient and keeps the snapshot consistent with the ledger.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPGStore creates a ledger store.
func NewPGStore(pool *pgxpool.Pool, logger *zap.Logger) *PGStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{pool: pool, logger: logger}
}

// AppointmentBilling resolves the billing inputs for one appointment.
func (s *PGStore) AppointmentBilling(ctx context.Context, apptID int64) (*AppointmentBilling, error) {
	query := `
		SELECT a.patient_id,
		       doc.payment_fee,
		       COALESCE((
		           SELECT SUM(pp.quantity * m.unit_price)
		           FROM prescriptions pp
		           JOIN medicines m ON m.id = pp.medicine_id
		           WHERE pp.appt_id = a.id AND pp.filled
		       ), 0),
		       (
		           SELECT COUNT(*)
		           FROM charges c
		           JOIN appointments a2 ON a2.id = c.appt_id
		           WHERE a2.patient_id = a.patient_id
		       )
		FROM appointments a
		JOIN doctors doc ON doc.id = a.doctor_id
		WHERE a.id = $1
	`
	ab := &AppointmentBilling{}
	err := s.pool.QueryRow(ctx, query, apptID).Scan(
		&ab.PatientID, &ab.DoctorFee, &ab.PharmacyFee, &ab.PriorCharges,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &clinic.NotFoundError{Entity: "appointment", ID: apptID}
	}
	if err != nil {
		return nil, fmt.Errorf("appointment billing lookup: %w", err)
	}
	return ab, nil
}

// AddCharge appends a charge entry, recomputes the balance from the ledger
// and rewrites the patient's snapshot, all in one transaction.
func (s *PGStore) AddCharge(ctx context.Context, patientID int64, charge *ChargeEntry) (float64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin charge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockPatient(ctx, tx, patientID); err != nil {
		return 0, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO charges (appt_id, doctor_fee, pharmacy_fee, total_charge, article)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, charge.ApptID, charge.DoctorFee, charge.PharmacyFee, charge.TotalCharge, charge.Article).
		Scan(&charge.ID, &charge.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert charge: %w", err)
	}

	balance, err := writeSnapshot(ctx, tx, patientID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit charge tx: %w", err)
	}
	return balance, nil
}

// AddCredit appends a credit entry after applying the overpayment rule under
// the patient lock, then recomputes the balance and rewrites the snapshot.
func (s *PGStore) AddCredit(ctx context.Context, patientID int64, amount float64) (float64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockPatient(ctx, tx, patientID); err != nil {
		return 0, err
	}

	balance, err := ledgerBalance(ctx, tx, patientID)
	if err != nil {
		return 0, err
	}
	if err := ValidatePayment(balance, amount); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO credits (patient_id, amount) VALUES ($1, $2)
	`, patientID, amount); err != nil {
		return 0, fmt.Errorf("insert credit: %w", err)
	}

	newBalance, err := writeSnapshot(ctx, tx, patientID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit credit tx: %w", err)
	}
	return newBalance, nil
}

// Entries returns the patient's full ledger, charges and credits interleaved
// chronologically.
func (s *PGStore) Entries(ctx context.Context, patientID int64) ([]Entry, error) {
	query := `
		(
			SELECT c.id, 'charge'::text, c.article, c.doctor_fee, c.pharmacy_fee,
			       c.total_charge, 0::double precision, c.created_at
			FROM charges c
			JOIN appointments a ON a.id = c.appt_id
			WHERE a.patient_id = $1
		)
		UNION ALL
		(
			SELECT cr.id, 'credit'::text, 'credit', 0, 0, 0, cr.amount, cr.created_at
			FROM credits cr
			WHERE cr.patient_id = $1
		)
		ORDER BY 8, 1
	`
	rows, err := s.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Article, &e.DoctorFee, &e.PharmacyFee,
			&e.Charge, &e.Credit, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// lockPatient takes the per-patient row lock that serializes ledger writes.
func lockPatient(ctx context.Context, tx pgx.Tx, patientID int64) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM patients WHERE id = $1 FOR UPDATE`, patientID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return &clinic.NotFoundError{Entity: "patient", ID: patientID}
	}
	if err != nil {
		return fmt.Errorf("lock patient row: %w", err)
	}
	return nil
}

// ledgerBalance recomputes the balance from the ledger inside a transaction.
func ledgerBalance(ctx context.Context, tx pgx.Tx, patientID int64) (float64, error) {
	var balance float64
	err := tx.QueryRow(ctx, `
		SELECT (SELECT COALESCE(SUM(amount), 0) FROM credits WHERE patient_id = $1)
		     - (SELECT COALESCE(SUM(c.total_charge), 0)
		        FROM charges c
		        JOIN appointments a ON a.id = c.appt_id
		        WHERE a.patient_id = $1)
	`, patientID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("recompute balance: %w", err)
	}
	return balance, nil
}

// writeSnapshot recomputes the balance and rewrites the denormalized
// acct_balance field. The snapshot is a cache; the ledger stays the source
// of truth.
func writeSnapshot(ctx context.Context, tx pgx.Tx, patientID int64) (float64, error) {
	balance, err := ledgerBalance(ctx, tx, patientID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE patients SET acct_balance = $1 WHERE id = $2
	`, balance, patientID); err != nil {
		return 0, fmt.Errorf("rewrite balance snapshot: %w", err)
	}
	return balance, nil
}
