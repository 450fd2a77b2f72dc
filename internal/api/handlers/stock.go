package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
	"github.com/praxishealth/clinic-core/internal/domain/stock"
)

// Inventory serves stock reads and restocks.
type Inventory interface {
	ListForPharmacy(ctx context.Context, pharmacyID int64) ([]stock.Entry, error)
	Restock(ctx context.Context, pharmacyID, medicineID int64, add int) (int, error)
}

// StockHandler handles the pharmacy inventory endpoints.
type StockHandler struct {
	store  Inventory
	logger *zap.Logger
}

// NewStockHandler creates the handler.
func NewStockHandler(store Inventory, logger *zap.Logger) *StockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockHandler{store: store, logger: logger}
}

// Routes returns the /stock sub-router.
func (h *StockHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{pharmacyID}", h.List)
	r.Put("/", h.Restock)
	return r
}

// List handles GET /stock/{pharmacyID}.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	pharmacyID, err := pathID(r, "pharmacyID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entries, err := h.store.ListForPharmacy(r.Context(), pharmacyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []stock.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// RestockRequest adds quantity to an existing stock row.
type RestockRequest struct {
	PharmacyID    int64 `json:"pharmacy_id"`
	MedicineID    int64 `json:"medicine_id"`
	QuantityToAdd int   `json:"quantity_to_add"`
}

// RestockResponse reports the new count.
type RestockResponse struct {
	PharmacyID int64 `json:"pharmacy_id"`
	MedicineID int64 `json:"medicine_id"`
	Quantity   int   `json:"quantity"`
}

// Restock handles PUT /stock.
func (h *StockHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "malformed JSON body"})
		return
	}
	if req.PharmacyID <= 0 || req.MedicineID <= 0 {
		writeError(w, h.logger, &clinic.ValidationError{Reason: "pharmacy_id and medicine_id are required"})
		return
	}

	quantity, err := h.store.Restock(r.Context(), req.PharmacyID, req.MedicineID, req.QuantityToAdd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RestockResponse{
		PharmacyID: req.PharmacyID,
		MedicineID: req.MedicineID,
		Quantity:   quantity,
	})
}
