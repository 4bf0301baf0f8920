package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderItem snapshots the unit price at purchase time; later product price
// changes do not affect it.
type OrderItem struct {
	ID               string `json:"id"`
	ProductVariantID string `json:"product_variant_id"`
	Quantity         int    `json:"quantity"`
	Price            int64  `json:"price"`
}

type Order struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	AddressID     string        `json:"address_id"`
	PromotionID   *string       `json:"promotion_id,omitempty"`
	Items         []OrderItem   `json:"items"`
	TotalPrice    int64         `json:"total_price"`
	ShippingFee   int64         `json:"shipping_fee"`
	Status        OrderStatus   `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time     `json:"created_at"`
}
