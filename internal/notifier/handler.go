// Package notifier is the worker side of the notification pipeline: it
// consumes events published by the order and payment flows and persists them
// as notification rows for the user's inbox.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/marx5/storefront/internal/domain"
)

// Store persists a single notification.
type Store interface {
	SaveNotification(ctx context.Context, event domain.NotificationEvent) error
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Handle processes one event payload. Malformed payloads are dropped after
// logging so a poison message cannot wedge the consumer; store failures are
// returned so the message is redelivered.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("dropping malformed notification event", "error", err)
		return nil
	}
	if event.UserID == "" {
		h.logger.Error("dropping notification event without user id", "title", event.Title)
		return nil
	}

	if err := h.store.SaveNotification(ctx, event); err != nil {
		h.logger.Error("failed to save notification",
			"error", err, "user_id", event.UserID, "title", event.Title)
		return fmt.Errorf("save notification: %w", err)
	}

	h.logger.Info("notification saved", "user_id", event.UserID, "type", event.Type)
	return nil
}
