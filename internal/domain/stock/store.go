// Package stock owns reads and restocks of the per-pharmacy medicine
// inventory. Decrements happen on the fulfillment path, in the same
// transaction that marks the prescription filled.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

// Entry is one (pharmacy, medicine) inventory row. Quantity is never
// negative; the schema enforces it and the fulfillment store guards it.
type Entry struct {
	PharmacyID   int64  `json:"pharmacy_id"`
	MedicineID   int64  `json:"medicine_id"`
	MedicineName string `json:"medicine_name,omitempty"`
	Quantity     int    `json:"quantity"`
}

// Store persists stock entries.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a stock store.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// ListForPharmacy returns a pharmacy's inventory with medicine names joined.
func (s *Store) ListForPharmacy(ctx context.Context, pharmacyID int64) ([]Entry, error) {
	query := `
		SELECT st.pharmacy_id, st.medicine_id, m.name, st.quantity
		FROM stock st
		JOIN medicines m ON m.id = st.medicine_id
		WHERE st.pharmacy_id = $1
		ORDER BY m.name
	`
	rows, err := s.pool.Query(ctx, query, pharmacyID)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.PharmacyID, &e.MedicineID, &e.MedicineName, &e.Quantity); err != nil {
			return nil, fmt.Errorf("scan stock entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Restock atomically adds quantity to an existing stock row and returns the
// new count. The row must already exist; creating stock rows is a setup
// concern, not a restock.
func (s *Store) Restock(ctx context.Context, pharmacyID, medicineID int64, add int) (int, error) {
	if add <= 0 {
		return 0, &clinic.ValidationError{Reason: "quantity_to_add must be a positive integer"}
	}

	var newCount int
	err := s.pool.QueryRow(ctx, `
		UPDATE stock
		SET quantity = quantity + $1
		WHERE pharmacy_id = $2 AND medicine_id = $3
		RETURNING quantity
	`, add, pharmacyID, medicineID).Scan(&newCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &clinic.NotFoundError{Entity: "stock entry for medicine", ID: medicineID}
	}
	if err != nil {
		return 0, fmt.Errorf("restock: %w", err)
	}

	s.logger.Info("stock replenished",
		zap.Int64("pharmacy_id", pharmacyID),
		zap.Int64("medicine_id", medicineID),
		zap.Int("added", add),
		zap.Int("new_count", newCount))
	return newCount, nil
}
