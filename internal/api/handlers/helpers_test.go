package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/praxishealth/clinic-core/internal/observability/metrics"
)

// Registered once; the default Prometheus registry rejects duplicates.
var testMetrics = metrics.New()

func doJSON(t *testing.T, router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

type fakePublisher struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
	calls   int
	failErr error
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, value []byte, headers map[string]string) error {
	f.calls++
	if f.failErr != nil {
		return f.failErr
	}
	f.topic, f.key, f.value, f.headers = topic, key, value, headers
	return nil
}
