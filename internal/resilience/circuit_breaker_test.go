package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerClosedAllowsCalls(t *testing.T) {
	b := New("notify", DefaultConfig())

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerOpensAfterThresholdFailuresInWindow(t *testing.T) {
	b := New("notify", Config{FailureThreshold: 3, WindowSize: 5, Timeout: time.Second})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), func(ctx context.Context) error { return boom })
	}

	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", b.State())
	}

	// 4th call must not invoke fn at all.
	called := false
	err := b.Call(context.Background(), func(ctx context.Context) error { called = true; return nil })
	if called {
		t.Fatalf("fn must not run while breaker is open")
	}
	var openErr *ErrOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestBreakerHalfOpenThenClosedOnSuccess(t *testing.T) {
	b := New("notify", Config{FailureThreshold: 1, WindowSize: 5, Timeout: 10 * time.Millisecond, SuccessThreshold: 1})

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	if b.State() != StateOpen {
		t.Fatalf("expected open")
	}

	time.Sleep(15 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open after timeout, got %v", b.State())
	}

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected success to be admitted in half-open: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after half-open success, got %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("notify", Config{FailureThreshold: 1, WindowSize: 5, Timeout: 10 * time.Millisecond})

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	time.Sleep(15 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open")
	}

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail again") })
	if b.State() != StateOpen {
		t.Fatalf("expected reopened, got %v", b.State())
	}
}

func TestBreakerHalfOpenRejectsConcurrentOverflow(t *testing.T) {
	b := New("notify", Config{FailureThreshold: 1, WindowSize: 5, Timeout: 10 * time.Millisecond, HalfOpenMaxInFlight: 1})
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	time.Sleep(15 * time.Millisecond)

	block := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(context.Background(), func(ctx context.Context) error {
			<-block
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond) // let the goroutine occupy the single half-open slot

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	var openErr *ErrOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("expected the overflow call to be rejected, got %v", err)
	}

	close(block)
	<-done
}
