package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/marx5/storefront/internal/domain"
)

type fakeStore struct {
	saved []domain.NotificationEvent
	err   error
}

func (f *fakeStore) SaveNotification(_ context.Context, event domain.NotificationEvent) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandle(t *testing.T) {
	event := domain.NotificationEvent{
		UserID:    "user-1",
		Title:     "Payment Successful",
		Message:   "Your payment for order #abc via VNPay was successful.",
		Type:      domain.NotificationTypePayment,
		Timestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("valid event is saved", func(t *testing.T) {
		store := &fakeStore{}
		h := NewHandler(store, discardLogger())

		if err := h.Handle(context.Background(), payload); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if len(store.saved) != 1 {
			t.Fatalf("saved %d notifications, want 1", len(store.saved))
		}
		if store.saved[0] != event {
			t.Errorf("saved event = %+v", store.saved[0])
		}
	})

	t.Run("malformed payload dropped without error", func(t *testing.T) {
		store := &fakeStore{}
		h := NewHandler(store, discardLogger())

		if err := h.Handle(context.Background(), []byte("not json")); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if len(store.saved) != 0 {
			t.Errorf("saved %d notifications, want 0", len(store.saved))
		}
	})

	t.Run("event without user id dropped", func(t *testing.T) {
		store := &fakeStore{}
		h := NewHandler(store, discardLogger())

		if err := h.Handle(context.Background(), []byte(`{"title":"orphan"}`)); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if len(store.saved) != 0 {
			t.Errorf("saved %d notifications, want 0", len(store.saved))
		}
	})

	t.Run("store failure returned for redelivery", func(t *testing.T) {
		store := &fakeStore{err: errors.New("connection refused")}
		h := NewHandler(store, discardLogger())

		if err := h.Handle(context.Background(), payload); err == nil {
			t.Fatal("expected error when store fails")
		}
	})
}
