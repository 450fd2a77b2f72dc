// Package metrics provides Prometheus metrics for the clinic API and the
// fulfillment worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. Both binaries create one instance;
// each only touches the counters for its own paths.
type Metrics struct {
	RequestsPublished    prometheus.Counter
	PublishFailures      prometheus.Counter
	PublishDuration      prometheus.Histogram
	MessagesConsumed     prometheus.Counter
	PrescriptionsQueued  prometheus.Counter
	DuplicatesSkipped    prometheus.Counter
	MessagesDeadLettered prometheus.Counter
	FillsCompleted       prometheus.Counter
	FillsRejected        *prometheus.CounterVec
	ChargesRecorded      prometheus.Counter
	PaymentsRecorded     prometheus.Counter
	PaymentsRejected     prometheus.Counter
	ProcessingDuration   prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	m := &Metrics{
		RequestsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_requests_published_total",
			Help: "Prescription requests acknowledged by the broker",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_publish_failures_total",
			Help: "Prescription requests the broker did not acknowledge",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prescription_publish_duration_seconds",
			Help:    "Time from publish call to broker ack",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_messages_consumed_total",
			Help: "Messages consumed from the request topic",
		}),
		PrescriptionsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_created_total",
			Help: "Unfilled prescriptions created from consumed requests",
		}),
		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duplicate_requests_skipped_total",
			Help: "Redelivered requests skipped by the idempotency key",
		}),
		MessagesDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_dead_lettered_total",
			Help: "Messages routed to the dead-letter topic",
		}),
		FillsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_filled_total",
			Help: "Prescriptions filled with stock decremented",
		}),
		FillsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_fills_rejected_total",
			Help: "Fill attempts rejected, by reason",
		}, []string{"reason"}),
		ChargesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_charges_recorded_total",
			Help: "Charges appended to the billing ledger",
		}),
		PaymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_recorded_total",
			Help: "Patient payments appended to the billing ledger",
		}),
		PaymentsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_rejected_total",
			Help: "Payments rejected as non-positive or overpaying",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "request_processing_duration_seconds",
			Help:    "Time to apply one consumed prescription request",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	prometheus.MustRegister(
		m.RequestsPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.MessagesConsumed,
		m.PrescriptionsQueued,
		m.DuplicatesSkipped,
		m.MessagesDeadLettered,
		m.FillsCompleted,
		m.FillsRejected,
		m.ChargesRecorded,
		m.PaymentsRecorded,
		m.PaymentsRejected,
		m.ProcessingDuration,
	)

	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
