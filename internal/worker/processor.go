// Package worker implements the fulfillment consumer: it turns durable queue
// messages into unfilled prescription rows, one at a time.
package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/praxishealth/clinic-core/internal/domain/rx"
	"github.com/praxishealth/clinic-core/internal/infrastructure/queue"
	"github.com/praxishealth/clinic-core/pkg/idempotency"
)

// Inserter persists an unfilled prescription keyed by the request's
// idempotency key. Returns false when the key was already applied.
type Inserter interface {
	Insert(ctx context.Context, req *rx.Request, requestKey string) (bool, error)
}

// Attempts tracks failed delivery attempts per request key.
type Attempts interface {
	Bump(ctx context.Context, requestKey, lastError string) (int, error)
	Clear(ctx context.Context, requestKey string) error
}

// DeadLetterPublisher routes a message that cannot be processed to the
// dead-letter topic.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// Config holds processor settings.
type Config struct {
	// MaxAttempts bounds redelivery: after this many failed inserts the
	// message is dead-lettered and dropped from the request topic.
	MaxAttempts int
}

// DefaultConfig returns processor defaults.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5}
}

// Processor handles consumed prescription requests.
//
// Outcome contract (drives offset commits in the consumer):
//   - nil: the message is finished with, commit. Covers applied inserts,
//     duplicate redeliveries and dead-lettered messages.
//   - error: transient failure, leave uncommitted so the broker redelivers.
type Processor struct {
	config     Config
	inserter   Inserter
	attempts   Attempts
	deadLetter DeadLetterPublisher
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewProcessor creates a processor.
func NewProcessor(cfg Config, inserter Inserter, attempts Attempts, deadLetter DeadLetterPublisher, logger *zap.Logger) *Processor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		config:     cfg,
		inserter:   inserter,
		attempts:   attempts,
		deadLetter: deadLetter,
		logger:     logger,
		tracer:     otel.Tracer("fulfillment-worker"),
	}
}

// Handle processes one consumed message.
func (p *Processor) Handle(ctx context.Context, msg *queue.Message) error {
	ctx, span := p.tracer.Start(ctx, "process_request",
		trace.WithAttributes(attribute.Int64("offset", msg.Offset)))
	defer span.End()

	requestKey := msg.Header("request-key")

	req, err := rx.DecodeRequest(msg.Value)
	if err != nil {
		// Malformed or invalid payloads can never succeed; dead-letter
		// immediately instead of redelivering forever.
		p.logger.Warn("undecodable prescription request",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return p.sendToDeadLetter(ctx, requestKey, msg.Value, err.Error())
	}

	if requestKey == "" {
		// Producers normally attach the key; derive it for messages that
		// predate the header so redelivery stays idempotent.
		requestKey = idempotency.RequestKey(req.ApptID, req.MedicineID, req.Quantity, msg.Timestamp)
	}
	span.SetAttributes(attribute.String("request_key", requestKey))

	inserted, err := p.inserter.Insert(ctx, req, requestKey)
	if err != nil {
		return p.recordFailure(ctx, requestKey, msg.Value, err)
	}

	if !inserted {
		p.logger.Info("redelivered request already applied",
			zap.String("request_key", requestKey),
			zap.Int64("appt_id", req.ApptID))
	} else {
		p.logger.Info("prescription created",
			zap.String("request_key", requestKey),
			zap.Int64("appt_id", req.ApptID),
			zap.Int64("medicine_id", req.MedicineID),
			zap.Int("quantity", req.Quantity))
	}

	if err := p.attempts.Clear(ctx, requestKey); err != nil {
		// Attempt bookkeeping is advisory once the insert committed.
		p.logger.Warn("clear delivery attempts failed", zap.Error(err))
	}
	return nil
}

// recordFailure bumps the attempt counter and either requests redelivery or
// dead-letters the message once the bound is hit.
func (p *Processor) recordFailure(ctx context.Context, requestKey string, payload []byte, cause error) error {
	attempts, err := p.attempts.Bump(ctx, requestKey, cause.Error())
	if err != nil {
		p.logger.Error("bump delivery attempts failed", zap.Error(err))
		return cause
	}

	if attempts < p.config.MaxAttempts {
		p.logger.Warn("prescription insert failed, will redeliver",
			zap.String("request_key", requestKey),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", p.config.MaxAttempts),
			zap.Error(cause))
		return cause
	}

	p.logger.Error("delivery attempts exhausted, dead-lettering",
		zap.String("request_key", requestKey),
		zap.Int("attempts", attempts),
		zap.Error(cause))
	if err := p.sendToDeadLetter(ctx, requestKey, payload, cause.Error()); err != nil {
		return err
	}
	if err := p.attempts.Clear(ctx, requestKey); err != nil {
		p.logger.Warn("clear delivery attempts failed", zap.Error(err))
	}
	return nil
}

func (p *Processor) sendToDeadLetter(ctx context.Context, requestKey string, payload []byte, reason string) error {
	headers := map[string]string{"error": reason}
	if requestKey != "" {
		headers["request-key"] = requestKey
	}
	if err := p.deadLetter.Publish(ctx, queue.TopicDeadLetter, requestKey, payload, headers); err != nil {
		// Keep the message on the request topic rather than lose it.
		p.logger.Error("dead-letter publish failed", zap.Error(err))
		return err
	}
	return nil
}
