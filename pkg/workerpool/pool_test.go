package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoRunsTasksInOrderWithSingleWorker(t *testing.T) {
	pool := New(Config{Workers: 1, QueueSize: 8}, nil)
	pool.Start()
	defer pool.Stop()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		err := pool.Do(context.Background(), func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
		if err != nil {
			t.Fatalf("task %d failed: %v", i, err)
		}
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, tasks ran out of order: %v", i, got, order)
		}
	}
}

func TestDoReturnsTaskError(t *testing.T) {
	pool := New(DefaultConfig(), nil)
	pool.Start()
	defer pool.Stop()

	want := errors.New("insert failed")
	err := pool.Do(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("got %v, want the task's error", err)
	}

	stats := pool.Stats()
	if stats.Failed != 1 {
		t.Errorf("failed count = %d, want 1", stats.Failed)
	}
}

func TestDoRecoversFromPanic(t *testing.T) {
	pool := New(DefaultConfig(), nil)
	pool.Start()
	defer pool.Stop()

	err := pool.Do(context.Background(), func(ctx context.Context) error {
		panic("poison message")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking task")
	}

	// The worker must survive the panic and keep serving.
	if err := pool.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
}

func TestDoAfterStopIsRejected(t *testing.T) {
	pool := New(Config{Workers: 1, QueueSize: 1, ShutdownTimeout: time.Second}, nil)
	pool.Start()
	if err := pool.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if err := pool.Do(context.Background(), func(ctx context.Context) error { return nil }); err == nil {
		t.Error("expected submission to a stopped pool to fail")
	}
}
