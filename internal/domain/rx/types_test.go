package rx

import (
	"errors"
	"testing"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{ApptID: 7, MedicineID: 2, Quantity: 30}

	body, err := req.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeRequest(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *req {
		t.Errorf("round trip changed request: %+v", decoded)
	}
}

func TestDecodeRequestWireFormat(t *testing.T) {
	// The wire contract uses snake_case field names.
	body := []byte(`{"appt_id": 7, "medicine_id": 2, "quantity": 30}`)

	req, err := DecodeRequest(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if req.ApptID != 7 || req.MedicineID != 2 || req.Quantity != 30 {
		t.Errorf("decoded %+v", req)
	}
}

func TestRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"valid", Request{ApptID: 7, MedicineID: 2, Quantity: 30}, true},
		{"missing appt", Request{MedicineID: 2, Quantity: 30}, false},
		{"missing medicine", Request{ApptID: 7, Quantity: 30}, false},
		{"zero quantity", Request{ApptID: 7, MedicineID: 2}, false},
		{"negative quantity", Request{ApptID: 7, MedicineID: 2, Quantity: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok {
				var invalid *clinic.ValidationError
				if !errors.As(err, &invalid) {
					t.Errorf("expected ValidationError, got %v", err)
				}
			}
		})
	}
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	_, err := DecodeRequest([]byte(`{broken`))
	var invalid *clinic.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError for malformed JSON, got %v", err)
	}
}
