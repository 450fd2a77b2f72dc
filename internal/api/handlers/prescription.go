package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
	"github.com/praxishealth/clinic-core/internal/domain/fulfillment"
	"github.com/praxishealth/clinic-core/internal/domain/rx"
	"github.com/praxishealth/clinic-core/internal/infrastructure/queue"
	"github.com/praxishealth/clinic-core/internal/observability/metrics"
	"github.com/praxishealth/clinic-core/pkg/circuitbreaker"
	"github.com/praxishealth/clinic-core/pkg/idempotency"
)

// Publisher sends a message to a topic and blocks until the broker
// acknowledges it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// FillService executes the pharmacy fill operation.
type FillService interface {
	Fill(ctx context.Context, prescriptionID int64) (*fulfillment.Result, error)
}

// PrescriptionReader serves prescription queries.
type PrescriptionReader interface {
	Get(ctx context.Context, id int64) (*rx.Prescription, error)
	UnfilledForPharmacy(ctx context.Context, pharmacyID int64) ([]rx.UnfilledItem, error)
}

// PrescriptionHandler handles prescription endpoints: the doctor-side request
// producer, the pharmacy-side fill operation and the read paths.
type PrescriptionHandler struct {
	publisher Publisher
	breaker   *circuitbreaker.Breaker
	fill      FillService
	store     PrescriptionReader
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewPrescriptionHandler creates the handler. The breaker guards the publish
// path so a dead broker fails fast instead of stacking blocked requests.
func NewPrescriptionHandler(publisher Publisher, breaker *circuitbreaker.Breaker, fill FillService, store PrescriptionReader, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{
		publisher: publisher,
		breaker:   breaker,
		fill:      fill,
		store:     store,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Routes returns the prescription sub-router.
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/request", h.Request)
	r.Put("/fill", h.Fill)
	r.Get("/unfilled/{pharmacyID}", h.Unfilled)
	r.Get("/{id}", h.Get)
	return r
}

// RequestResponse acknowledges a queued prescription request.
type RequestResponse struct {
	Status     string `json:"status"`
	RequestKey string `json:"request_key"`
}

// Request handles POST /prescriptions/request. Success means the broker
// acknowledged the publish, nothing more; the worker creates the actual
// prescription row.
func (h *PrescriptionHandler) Request(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rx.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "malformed JSON body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, err)
		return
	}

	payload, err := req.Encode()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	requestKey := idempotency.RequestKey(req.ApptID, req.MedicineID, req.Quantity, h.now())

	start := time.Now()
	err = h.breaker.Do(ctx, func() error {
		return h.publisher.Publish(ctx, queue.TopicRequests, requestKey, payload, map[string]string{
			"request-key": requestKey,
		})
	})
	if err != nil {
		h.metrics.PublishFailures.Inc()
		writeError(w, h.logger, &clinic.TransportError{Op: "publish prescription request", Err: err})
		return
	}
	h.metrics.RequestsPublished.Inc()
	h.metrics.PublishDuration.Observe(time.Since(start).Seconds())

	h.logger.Info("prescription request queued",
		zap.Int64("appt_id", req.ApptID),
		zap.Int64("medicine_id", req.MedicineID),
		zap.Int("quantity", req.Quantity),
		zap.String("request_key", requestKey))

	writeJSON(w, http.StatusOK, RequestResponse{Status: "queued", RequestKey: requestKey})
}

// FillRequest names the prescription to fill.
type FillRequest struct {
	PrescriptionID int64 `json:"prescription_id"`
}

// Fill handles PUT /prescriptions/fill.
func (h *PrescriptionHandler) Fill(w http.ResponseWriter, r *http.Request) {
	var req FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "malformed JSON body"})
		return
	}
	if req.PrescriptionID <= 0 {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "prescription_id is required"})
		return
	}

	result, err := h.fill.Fill(r.Context(), req.PrescriptionID)
	if err != nil {
		h.countFillRejection(err)
		writeError(w, h.logger, err)
		return
	}
	h.metrics.FillsCompleted.Inc()

	writeJSON(w, http.StatusOK, result)
}

func (h *PrescriptionHandler) countFillRejection(err error) {
	switch err.(type) {
	case *fulfillment.InsufficientStockError:
		h.metrics.FillsRejected.WithLabelValues("insufficient_stock").Inc()
	case *fulfillment.AlreadyFilledError:
		h.metrics.FillsRejected.WithLabelValues("already_filled").Inc()
	case *clinic.NotFoundError:
		h.metrics.FillsRejected.WithLabelValues("not_found").Inc()
	}
}

// Get handles GET /prescriptions/{id}.
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Unfilled handles GET /prescriptions/unfilled/{pharmacyID}: the pharmacy's
// work queue.
func (h *PrescriptionHandler) Unfilled(w http.ResponseWriter, r *http.Request) {
	pharmacyID, err := pathID(r, "pharmacyID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.store.UnfilledForPharmacy(r.Context(), pharmacyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []rx.UnfilledItem{}
	}
	writeJSON(w, http.StatusOK, items)
}
