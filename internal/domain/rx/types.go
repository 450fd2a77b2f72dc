// Package rx holds the prescription request message, the durable prescription
// record and their persistence.
package rx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

// Request is the wire message a doctor action publishes to the durable queue.
type Request struct {
	ApptID     int64 `json:"appt_id"`
	MedicineID int64 `json:"medicine_id"`
	Quantity   int   `json:"quantity"`
}

// Validate checks the producer contract: all fields present, quantity positive.
func (r *Request) Validate() error {
	switch {
	case r.ApptID <= 0:
		return &clinic.ValidationError{Reason: "appt_id is required"}
	case r.MedicineID <= 0:
		return &clinic.ValidationError{Reason: "medicine_id is required"}
	case r.Quantity <= 0:
		return &clinic.ValidationError{Reason: "quantity must be a positive integer"}
	}
	return nil
}

// Encode serializes the request for the queue.
func (r *Request) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return b, nil
}

// DecodeRequest parses and validates a queue message body.
func DecodeRequest(body []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &clinic.ValidationError{Reason: "malformed request body: " + err.Error()}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Prescription is the durable record created by the fulfillment consumer.
// It is never deleted; filled flips to true exactly once.
type Prescription struct {
	ID         int64     `json:"prescription_id"`
	ApptID     int64     `json:"appt_id"`
	MedicineID int64     `json:"medicine_id"`
	Quantity   int       `json:"quantity"`
	Filled     bool      `json:"filled"`
	PickedUp   bool      `json:"picked_up"`
	RequestKey string    `json:"request_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UnfilledItem is one line of a pharmacy's work queue, with the names a
// pharmacist needs on screen.
type UnfilledItem struct {
	PrescriptionID int64  `json:"prescription_id"`
	DoctorName     string `json:"doctor_name"`
	PatientName    string `json:"patient_name"`
	MedicineName   string `json:"medication"`
	Quantity       int    `json:"quantity"`
}
