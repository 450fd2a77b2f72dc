package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ConsecutiveFailures = 3
	b := New(cfg, nil)

	boom := errors.New("broker unreachable")
	for i := 0; i < 3; i++ {
		if err := b.Do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: got %v, want the call error", i, err)
		}
	}

	err := b.Do(context.Background(), func() error {
		t.Fatal("call must not reach the dependency while open")
		return nil
	})
	if !Rejected(err) {
		t.Fatalf("got %v, want an open-circuit rejection", err)
	}
	if !b.IsOpen() {
		t.Error("breaker should report open")
	}
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	cfg := Config{
		Name:                "test",
		MaxRequests:         1,
		Timeout:             20 * time.Millisecond,
		ConsecutiveFailures: 1,
	}
	b := New(cfg, nil)

	if err := b.Do(context.Background(), func() error { return errors.New("down") }); err == nil {
		t.Fatal("expected failure")
	}
	if !b.IsOpen() {
		t.Fatal("breaker should be open after the trip")
	}

	time.Sleep(30 * time.Millisecond)

	if err := b.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should pass through: %v", err)
	}
	if b.IsOpen() {
		t.Error("breaker should close after a successful probe")
	}
}

func TestRejectedDistinguishesCallErrors(t *testing.T) {
	if Rejected(errors.New("plain failure")) {
		t.Error("plain errors are not breaker rejections")
	}
	if Rejected(nil) {
		t.Error("nil is not a rejection")
	}
}
