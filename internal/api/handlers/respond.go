// Package handlers provides the HTTP handlers for the clinic API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/billing"
	"github.com/praxishealth/clinic-core/internal/domain/clinic"
	"github.com/praxishealth/clinic-core/internal/domain/fulfillment"
)

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &clinic.ValidationError{Reason: name + " must be a positive integer"}
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the domain error taxonomy onto status codes and response
// shapes. Business-rule rejections carry their detail fields so the portal
// can show the pharmacist or patient exactly what went wrong.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		invalid   *clinic.ValidationError
		notFound  *clinic.NotFoundError
		transport *clinic.TransportError
		noStock   *fulfillment.InsufficientStockError
		filled    *fulfillment.AlreadyFilledError
		overpaid  *billing.OverpaymentError
	)

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": invalid.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &noStock):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             noStock.Error(),
			"available_stock":   noStock.Available,
			"required_quantity": noStock.Required,
		})
	case errors.As(err, &filled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": filled.Error()})
	case errors.As(err, &overpaid):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             overpaid.Error(),
			"current_balance":   overpaid.CurrentBalance,
			"requested_payment": overpaid.Requested,
			"maximum_allowed":   overpaid.MaxAllowed,
		})
	case errors.As(err, &transport):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": transport.Error()})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
