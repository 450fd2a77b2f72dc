package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/billing"
	"github.com/praxishealth/clinic-core/internal/domain/clinic"
	"github.com/praxishealth/clinic-core/internal/observability/metrics"
)

// Biller records charges and payments and serves balance queries.
type Biller interface {
	Charge(ctx context.Context, apptID int64) (*billing.ChargeResult, error)
	Credit(ctx context.Context, patientID int64, amount float64) (*billing.PaymentResult, error)
	Balance(ctx context.Context, patientID int64) (float64, error)
	StatementFor(ctx context.Context, patientID int64) ([]billing.StatementLine, error)
}

// PatientDirectory checks patient existence for the read endpoints; the
// ledger itself cannot tell an unknown patient from one with no entries.
type PatientDirectory interface {
	PatientExists(ctx context.Context, patientID int64) (bool, error)
}

// BillingHandler handles the billing and patient-account endpoints.
type BillingHandler struct {
	engine    Biller
	directory PatientDirectory
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewBillingHandler creates the handler.
func NewBillingHandler(engine Biller, directory PatientDirectory, m *metrics.Metrics, logger *zap.Logger) *BillingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingHandler{engine: engine, directory: directory, metrics: m, logger: logger}
}

// requirePatient resolves the {id} parameter and 404s unknown patients.
func (h *BillingHandler) requirePatient(w http.ResponseWriter, r *http.Request) (int64, bool) {
	patientID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return 0, false
	}
	exists, err := h.directory.PatientExists(r.Context(), patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return 0, false
	}
	if !exists {
		writeError(w, h.logger, &clinic.NotFoundError{Entity: "patient", ID: patientID})
		return 0, false
	}
	return patientID, true
}

// ChargeRoutes returns the /billing sub-router.
func (h *BillingHandler) ChargeRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/charges", h.Charge)
	return r
}

// PatientRoutes returns the /patients sub-router.
func (h *BillingHandler) PatientRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/payments", h.Pay)
	r.Get("/{id}/bills", h.Bills)
	r.Get("/{id}/balance", h.Balance)
	return r
}

// ChargeRequest names the appointment to bill.
type ChargeRequest struct {
	ApptID int64 `json:"appt_id"`
}

// Charge handles POST /billing/charges: doctor fee plus the appointment's
// filled prescription costs, appended to the patient's ledger.
func (h *BillingHandler) Charge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "malformed JSON body"})
		return
	}
	if req.ApptID <= 0 {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "appt_id is required"})
		return
	}

	result, err := h.engine.Charge(r.Context(), req.ApptID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.metrics.ChargesRecorded.Inc()

	writeJSON(w, http.StatusCreated, result)
}

// PaymentRequest carries the payment amount.
type PaymentRequest struct {
	Amount float64 `json:"amount"`
}

// Pay handles POST /patients/{id}/payments.
func (h *BillingHandler) Pay(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "malformed JSON body"})
		return
	}

	result, err := h.engine.Credit(r.Context(), patientID, req.Amount)
	if err != nil {
		var overpaid *billing.OverpaymentError
		var invalid *clinic.ValidationError
		if errors.As(err, &overpaid) || errors.As(err, &invalid) {
			h.metrics.PaymentsRejected.Inc()
		}
		writeError(w, h.logger, err)
		return
	}
	h.metrics.PaymentsRecorded.Inc()

	writeJSON(w, http.StatusCreated, result)
}

// Bills handles GET /patients/{id}/bills: the full statement with a running
// balance per line.
func (h *BillingHandler) Bills(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.requirePatient(w, r)
	if !ok {
		return
	}

	lines, err := h.engine.StatementFor(r.Context(), patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if lines == nil {
		lines = []billing.StatementLine{}
	}
	writeJSON(w, http.StatusOK, lines)
}

// BalanceResponse reports the ledger-derived balance.
type BalanceResponse struct {
	PatientID int64   `json:"patient_id"`
	Balance   float64 `json:"balance"`
}

// Balance handles GET /patients/{id}/balance.
func (h *BillingHandler) Balance(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.requirePatient(w, r)
	if !ok {
		return
	}

	balance, err := h.engine.Balance(r.Context(), patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{PatientID: patientID, Balance: balance})
}
