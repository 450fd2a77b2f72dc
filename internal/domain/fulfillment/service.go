// Package fulfillment implements the pharmacy-side fill operation: verify
// stock, mark the prescription filled and decrement the stock row, atomically.
package fulfillment

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/rx"
)

// PrescriptionReader loads prescriptions by ID.
type PrescriptionReader interface {
	Get(ctx context.Context, id int64) (*rx.Prescription, error)
}

// PharmacyResolver maps an appointment to the patient's assigned pharmacy.
type PharmacyResolver interface {
	PharmacyFor(ctx context.Context, apptID int64) (int64, error)
}

// Filler executes the fill transaction: mark filled plus stock decrement,
// both committed or both rolled back. Implementations must serialize
// concurrent fills of the same stock row. Returns the remaining stock.
type Filler interface {
	Fill(ctx context.Context, prescriptionID, pharmacyID, medicineID int64, quantity int) (int, error)
}

// Result reports a completed fulfillment.
type Result struct {
	PrescriptionID int64 `json:"prescription_id"`
	PharmacyID     int64 `json:"pharmacy_id"`
	MedicineID     int64 `json:"medicine_id"`
	Quantity       int   `json:"quantity"`
	RemainingStock int   `json:"remaining_stock"`
}

// Service orchestrates the fulfillment preconditions in order: prescription
// exists, not yet filled, pharmacy resolvable, stock row present and
// sufficient.
type Service struct {
	prescriptions PrescriptionReader
	resolver      PharmacyResolver
	filler        Filler
	logger        *zap.Logger
	tracer        trace.Tracer
}

// NewService creates a fulfillment service.
func NewService(prescriptions PrescriptionReader, resolver PharmacyResolver, filler Filler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		prescriptions: prescriptions,
		resolver:      resolver,
		filler:        filler,
		logger:        logger,
		tracer:        otel.Tracer("fulfillment"),
	}
}

// Fill satisfies a prescription against the assigned pharmacy's stock.
func (s *Service) Fill(ctx context.Context, prescriptionID int64) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "fill_prescription",
		trace.WithAttributes(attribute.Int64("prescription_id", prescriptionID)))
	defer span.End()

	p, err := s.prescriptions.Get(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if p.Filled {
		return nil, &AlreadyFilledError{PrescriptionID: prescriptionID}
	}

	pharmacyID, err := s.resolver.PharmacyFor(ctx, p.ApptID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.filler.Fill(ctx, p.ID, pharmacyID, p.MedicineID, p.Quantity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("prescription filled",
		zap.Int64("prescription_id", p.ID),
		zap.Int64("pharmacy_id", pharmacyID),
		zap.Int64("medicine_id", p.MedicineID),
		zap.Int("quantity", p.Quantity),
		zap.Int("remaining_stock", remaining))

	return &Result{
		PrescriptionID: p.ID,
		PharmacyID:     pharmacyID,
		MedicineID:     p.MedicineID,
		Quantity:       p.Quantity,
		RemainingStock: remaining,
	}, nil
}
