// Package circuitbreaker wraps sony/gobreaker for calls that leave the
// process, chiefly the queue publish path. When the broker is down the API
// fails fast instead of stacking blocked requests.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Config holds breaker settings.
type Config struct {
	// Name identifies the breaker in logs.
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval is the closed-state window for clearing counts.
	Interval time.Duration
	// Timeout before an open breaker probes again.
	Timeout time.Duration
	// ConsecutiveFailures that trip the breaker.
	ConsecutiveFailures uint32
}

// DefaultConfig returns defaults tuned for a local broker.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             15 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker guards a single downstream dependency.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger

	calls    metric.Int64Counter
	rejected metric.Int64Counter

	mu    sync.RWMutex
	state gobreaker.State
}

// New creates a breaker.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig(cfg.Name).ConsecutiveFailures
	}

	b := &Breaker{name: cfg.Name, logger: logger, state: gobreaker.StateClosed}

	meter := otel.Meter("circuit-breaker")
	b.calls, _ = meter.Int64Counter("circuit_breaker_calls_total",
		metric.WithDescription("Calls attempted through the breaker"))
	b.rejected, _ = meter.Int64Counter("circuit_breaker_rejections_total",
		metric.WithDescription("Calls refused while the breaker was open"))
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.mu.Lock()
			b.state = to
			b.mu.Unlock()
			b.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return b
}

// Do runs fn through the breaker.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	b.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("name", b.name)))

	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if Rejected(err) {
		b.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("name", b.name)))
	}
	return err
}

// IsOpen reports whether calls are currently rejected.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == gobreaker.StateOpen
}

// Rejected reports whether err means the breaker refused the call rather
// than the call itself failing.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Counts exposes the underlying request counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
