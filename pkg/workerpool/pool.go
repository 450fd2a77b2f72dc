// Package workerpool provides a bounded pool for message handling. The
// fulfillment worker runs it with a single worker so prescriptions apply in
// arrival order; the width is configurable for workloads that tolerate
// reordering.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of work.
type Task func(ctx context.Context) error

// Config holds pool settings.
type Config struct {
	// Workers is the number of concurrent workers. One worker gives strict
	// in-order processing.
	Workers int
	// QueueSize bounds the pending task queue.
	QueueSize int
	// ShutdownTimeout bounds how long Stop waits for in-flight tasks.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns single-worker, in-order defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         1,
		QueueSize:       64,
		ShutdownTimeout: 30 * time.Second,
	}
}

type job struct {
	ctx  context.Context
	task Task
	done chan error
}

// Pool dispatches tasks to a fixed set of workers.
type Pool struct {
	config Config
	logger *zap.Logger

	jobs chan *job
	wg   sync.WaitGroup

	closed    atomic.Bool
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a pool. Call Start before submitting work.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		config: cfg,
		logger: logger,
		jobs:   make(chan *job, cfg.QueueSize),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Do submits a task and blocks until it finishes, returning the task's error.
// The consumer relies on this: the offset for a message is only committed
// after its task has run.
func (p *Pool) Do(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return fmt.Errorf("pool is shutting down")
	}

	j := &job{ctx: ctx, task: task, done: make(chan error, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains queued tasks and waits for workers, bounded by ShutdownTimeout.
func (p *Pool) Stop() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped",
			zap.Int64("completed", p.completed.Load()),
			zap.Int64("failed", p.failed.Load()))
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
		return fmt.Errorf("worker pool shutdown timed out after %s", p.config.ShutdownTimeout)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for j := range p.jobs {
		err := p.run(j)
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		j.done <- err
	}
	p.logger.Debug("worker stopped", zap.Int("worker_id", id))
}

// run isolates a panicking task so one poison message cannot take the worker
// down.
func (p *Pool) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}

// Stats reports processed task counts.
type Stats struct {
	Completed int64
	Failed    int64
	Queued    int
	Workers   int
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Queued:    len(p.jobs),
		Workers:   p.config.Workers,
	}
}
