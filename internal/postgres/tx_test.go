package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsTransient(t *testing.T) {
	t.Run("deadlock is transient", func(t *testing.T) {
		err := &pq.Error{Code: "40P01"}
		if !IsTransient(err) {
			t.Error("expected deadlock to be transient")
		}
	})

	t.Run("serialization failure is transient", func(t *testing.T) {
		err := &pq.Error{Code: "40001"}
		if !IsTransient(err) {
			t.Error("expected serialization failure to be transient")
		}
	})

	t.Run("lock not available is transient", func(t *testing.T) {
		err := &pq.Error{Code: "55P03"}
		if !IsTransient(err) {
			t.Error("expected lock timeout to be transient")
		}
	})

	t.Run("wrapped transient error is detected", func(t *testing.T) {
		err := fmt.Errorf("create order: %w", &pq.Error{Code: "40P01"})
		if !IsTransient(err) {
			t.Error("expected wrapped deadlock to be transient")
		}
	})

	t.Run("other pq errors are not transient", func(t *testing.T) {
		err := &pq.Error{Code: "23505"}
		if IsTransient(err) {
			t.Error("unique violation must not be retried")
		}
	})

	t.Run("plain errors are not transient", func(t *testing.T) {
		if IsTransient(errors.New("deadlock detected")) {
			t.Error("message text must not trigger a retry")
		}
	})

	t.Run("nil is not transient", func(t *testing.T) {
		if IsTransient(nil) {
			t.Error("nil must not be transient")
		}
	})
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds without retrying", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries transient failures up to the bound", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, func() error {
			calls++
			return &pq.Error{Code: "40P01"}
		})
		if !IsTransient(err) {
			t.Fatalf("expected final transient error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("recovers when a retry succeeds", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, func() error {
			calls++
			if calls < 2 {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		want := errors.New("insufficient stock")
		err := Retry(ctx, 3, func() error {
			calls++
			return want
		})
		if !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := Retry(cancelled, 3, func() error {
			calls++
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if calls != 0 {
			t.Errorf("expected 0 calls, got %d", calls)
		}
	})
}
