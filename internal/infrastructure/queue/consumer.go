package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ConsumerConfig holds consumer group settings.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	// SessionTimeout is the group session timeout.
	SessionTimeout time.Duration
	// HeartbeatInterval is the group heartbeat interval.
	HeartbeatInterval time.Duration
}

// DefaultConsumerConfig returns settings for the fulfillment worker.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "fulfillment-worker",
		Topic:             TopicRequests,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	}
}

// Message is one consumed queue message.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Header returns a named header value, empty when absent.
func (m *Message) Header(key string) string {
	return m.Headers[key]
}

// Handler processes one message. A nil return commits the offset; an error
// leaves it uncommitted so the broker redelivers (at-least-once).
type Handler func(ctx context.Context, msg *Message) error

// Consumer runs a blocking receive loop, handing messages to the handler one
// at a time in partition order and committing each offset only after the
// handler succeeds.
type Consumer struct {
	client  *kgo.Client
	config  ConsumerConfig
	handler Handler
	logger  *zap.Logger
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer group member for the request topic.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *zap.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
		}),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create broker client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:  client,
		config:  cfg,
		handler: handler,
		logger:  logger,
		tracer:  otel.Tracer("queue-consumer"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the receive loop.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
}

// Stop drains the loop and closes the client. Every processed record was
// already committed in place, so shutdown commits nothing: a blanket commit
// here would acknowledge records whose handlers failed or never ran.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.client.Close()
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		fetches := c.client.PollFetches(c.ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				if errors.Is(err.Err, context.Canceled) {
					return
				}
				c.logger.Error("fetch error",
					zap.String("topic", err.Topic),
					zap.Int32("partition", err.Partition),
					zap.Error(err.Err))
			}
			continue
		}

		// Strictly one message at a time. A handler failure stops the batch
		// without committing, so the failed record and everything after it
		// come back on the next delivery.
		var failed bool
		iter := fetches.RecordIter()
		for !iter.Done() && !failed {
			record := iter.Next()
			if err := c.processRecord(record); err != nil {
				failed = true
			}
		}
	}
}

func (c *Consumer) processRecord(record *kgo.Record) error {
	ctx, span := c.tracer.Start(c.ctx, "consume",
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.Int64("offset", record.Offset),
		))
	defer span.End()

	msg := &Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       string(record.Key),
		Value:     record.Value,
		Headers:   make(map[string]string, len(record.Headers)),
		Timestamp: record.Timestamp,
	}
	for _, h := range record.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}

	if err := c.handler(ctx, msg); err != nil {
		span.RecordError(err)
		c.logger.Error("handler failed, offset not committed",
			zap.Int64("offset", record.Offset),
			zap.Int32("partition", record.Partition),
			zap.Error(err))
		return err
	}

	// Commit exactly this record. Committing polled offsets wholesale would
	// also acknowledge later records in the same fetch whose handlers have
	// not run yet, and a failed one would never come back. The commit is
	// detached from the loop context so shutdown cannot interrupt the
	// acknowledgment of work already applied.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.client.CommitRecords(commitCtx, record); err != nil {
		span.RecordError(err)
		c.logger.Error("offset commit failed", zap.Int64("offset", record.Offset), zap.Error(err))
	}
	return nil
}
