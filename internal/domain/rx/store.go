package rx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

// Store persists prescriptions.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a prescription store.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Insert creates an unfilled prescription for a consumed request. The insert
// is keyed by the request's idempotency key, so a broker redelivery of an
// already-applied message is a no-op. Returns false when the key was already
// present.
func (s *Store) Insert(ctx context.Context, req *Request, requestKey string) (bool, error) {
	query := `
		INSERT INTO prescriptions (appt_id, medicine_id, quantity, filled, picked_up, request_key)
		VALUES ($1, $2, $3, FALSE, FALSE, $4)
		ON CONFLICT (request_key) WHERE request_key IS NOT NULL DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, req.ApptID, req.MedicineID, req.Quantity, requestKey)
	if err != nil {
		return false, fmt.Errorf("insert prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Info("duplicate prescription request skipped",
			zap.String("request_key", requestKey),
			zap.Int64("appt_id", req.ApptID))
		return false, nil
	}
	return true, nil
}

// Get loads a single prescription.
func (s *Store) Get(ctx context.Context, id int64) (*Prescription, error) {
	query := `
		SELECT id, appt_id, medicine_id, quantity, filled, picked_up,
		       COALESCE(request_key, ''), created_at, updated_at
		FROM prescriptions
		WHERE id = $1
	`
	p := &Prescription{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.ApptID, &p.MedicineID, &p.Quantity, &p.Filled, &p.PickedUp,
		&p.RequestKey, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &clinic.NotFoundError{Entity: "prescription", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load prescription: %w", err)
	}
	return p, nil
}

// UnfilledForPharmacy lists the unfilled prescriptions routed to a pharmacy
// through its assigned patients.
func (s *Store) UnfilledForPharmacy(ctx context.Context, pharmacyID int64) ([]UnfilledItem, error) {
	query := `
		SELECT pp.id, doc.full_name, pat.full_name, m.name, pp.quantity
		FROM prescriptions pp
		JOIN appointments a ON a.id = pp.appt_id
		JOIN patients pat   ON pat.id = a.patient_id
		JOIN doctors doc    ON doc.id = a.doctor_id
		JOIN medicines m    ON m.id = pp.medicine_id
		WHERE pat.pharmacy_id = $1 AND pp.filled = FALSE
		ORDER BY pp.created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, pharmacyID)
	if err != nil {
		return nil, fmt.Errorf("list unfilled prescriptions: %w", err)
	}
	defer rows.Close()

	var items []UnfilledItem
	for rows.Next() {
		var it UnfilledItem
		if err := rows.Scan(&it.PrescriptionID, &it.DoctorName, &it.PatientName, &it.MedicineName, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan unfilled prescription: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
