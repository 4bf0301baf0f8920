package domain

import "time"

const (
	NotificationTypeOrder   = "order"
	NotificationTypePayment = "payment"
)

// NotificationEvent is the fire-and-forget payload published after a state
// change commits. Delivery is at-least-once; consumers must tolerate
// duplicates.
type NotificationEvent struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
