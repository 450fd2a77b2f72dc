package billing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

// AppointmentBilling is the billing view of one appointment: who to charge,
// the doctor's flat fee, the cost of the filled prescriptions and how many
// charges the patient already has (for the article label).
type AppointmentBilling struct {
	PatientID    int64
	DoctorFee    float64
	PharmacyFee  float64
	PriorCharges int
}

// Store persists ledger entries. AddCharge and AddCredit must run their
// ledger write, balance recomputation and snapshot rewrite in one
// transaction, serialized per patient, so a concurrent charge and payment
// never compute the balance from a half-updated ledger. AddCredit applies
// ValidatePayment under that same lock.
type Store interface {
	AppointmentBilling(ctx context.Context, apptID int64) (*AppointmentBilling, error)
	AddCharge(ctx context.Context, patientID int64, charge *ChargeEntry) (newBalance float64, err error)
	AddCredit(ctx context.Context, patientID int64, amount float64) (newBalance float64, err error)
	Entries(ctx context.Context, patientID int64) ([]Entry, error)
}

// ChargeResult reports a recorded charge.
type ChargeResult struct {
	ApptID      int64   `json:"appt_id"`
	DoctorFee   float64 `json:"doctor_bill"`
	PharmacyFee float64 `json:"pharm_bill"`
	TotalCharge float64 `json:"current_bill"`
	Article     string  `json:"article"`
	Balance     float64 `json:"balance"`
}

// PaymentResult reports a recorded credit.
type PaymentResult struct {
	PatientID  int64   `json:"patient_id"`
	Credit     float64 `json:"credit"`
	NewBalance float64 `json:"new_balance"`
}

// Engine computes and records charges and credits against the ledger store.
type Engine struct {
	store  Store
	logger *zap.Logger
	tracer trace.Tracer
}

// NewEngine creates a billing engine.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("billing"),
	}
}

// Charge bills an appointment: doctor fee plus the appointment's filled
// prescription costs, labeled by the patient's charge ordinal.
func (e *Engine) Charge(ctx context.Context, apptID int64) (*ChargeResult, error) {
	ctx, span := e.tracer.Start(ctx, "record_charge",
		trace.WithAttributes(attribute.Int64("appt_id", apptID)))
	defer span.End()

	ab, err := e.store.AppointmentBilling(ctx, apptID)
	if err != nil {
		return nil, err
	}

	charge := &ChargeEntry{
		ApptID:      apptID,
		DoctorFee:   ab.DoctorFee,
		PharmacyFee: ab.PharmacyFee,
		TotalCharge: ab.DoctorFee + ab.PharmacyFee,
		Article:     ChargeArticle(ab.PriorCharges),
	}

	balance, err := e.store.AddCharge(ctx, ab.PatientID, charge)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.logger.Info("charge recorded",
		zap.Int64("appt_id", apptID),
		zap.Int64("patient_id", ab.PatientID),
		zap.Float64("total_charge", charge.TotalCharge),
		zap.String("article", charge.Article),
		zap.Float64("balance", balance))

	return &ChargeResult{
		ApptID:      apptID,
		DoctorFee:   charge.DoctorFee,
		PharmacyFee: charge.PharmacyFee,
		TotalCharge: charge.TotalCharge,
		Article:     charge.Article,
		Balance:     balance,
	}, nil
}

// Credit records a patient payment, rejecting non-positive amounts and
// anything that would overpay the account.
func (e *Engine) Credit(ctx context.Context, patientID int64, amount float64) (*PaymentResult, error) {
	ctx, span := e.tracer.Start(ctx, "record_credit",
		trace.WithAttributes(attribute.Int64("patient_id", patientID)))
	defer span.End()

	if amount <= 0 {
		return nil, &clinic.ValidationError{Reason: "credit must be a positive number"}
	}

	newBalance, err := e.store.AddCredit(ctx, patientID, amount)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.logger.Info("payment recorded",
		zap.Int64("patient_id", patientID),
		zap.Float64("credit", amount),
		zap.Float64("new_balance", newBalance))

	return &PaymentResult{PatientID: patientID, Credit: amount, NewBalance: newBalance}, nil
}

// Balance derives the patient's balance from the ledger. Pure read; the
// snapshot field on the patient row is never consulted.
func (e *Engine) Balance(ctx context.Context, patientID int64) (float64, error) {
	entries, err := e.store.Entries(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return ComputeBalance(entries), nil
}

// StatementFor returns the patient's full ledger with running balances.
func (e *Engine) StatementFor(ctx context.Context, patientID int64) ([]StatementLine, error) {
	entries, err := e.store.Entries(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return Statement(entries), nil
}
