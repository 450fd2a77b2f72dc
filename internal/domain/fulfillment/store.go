package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

// Store is the pgx-backed Filler. The check-then-decrement sequence runs in a
// single transaction with the stock row locked, so two concurrent fills of
// the same (pharmacy, medicine) row serialize instead of both passing the
// sufficiency check.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a fulfillment store.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Fill marks the prescription filled and decrements the stock row. Both
// writes commit together or not at all.
func (s *Store) Fill(ctx context.Context, prescriptionID, pharmacyID, medicineID int64, quantity int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin fill tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var available int
	err = tx.QueryRow(ctx, `
		SELECT quantity FROM stock
		WHERE pharmacy_id = $1 AND medicine_id = $2
		FOR UPDATE
	`, pharmacyID, medicineID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &clinic.NotFoundError{Entity: "stock entry for medicine", ID: medicineID}
	}
	if err != nil {
		return 0, fmt.Errorf("lock stock row: %w", err)
	}

	if err := CheckStock(available, quantity); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE prescriptions
		SET filled = TRUE, updated_at = NOW()
		WHERE id = $1 AND filled = FALSE
	`, prescriptionID)
	if err != nil {
		return 0, fmt.Errorf("mark prescription filled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a race with another fill of the same prescription.
		return 0, &AlreadyFilledError{PrescriptionID: prescriptionID}
	}

	// Conditional decrement. The row is already locked; the quantity guard is
	// the authoritative check that stock can never go negative.
	tag, err = tx.Exec(ctx, `
		UPDATE stock
		SET quantity = quantity - $1
		WHERE pharmacy_id = $2 AND medicine_id = $3 AND quantity >= $1
	`, quantity, pharmacyID, medicineID)
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, &InsufficientStockError{Available: available, Required: quantity}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit fill tx: %w", err)
	}
	return available - quantity, nil
}
