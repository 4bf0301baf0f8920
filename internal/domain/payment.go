package domain

import "time"

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodVNPay  PaymentMethod = "VNPay"
	PaymentMethodPayPal PaymentMethod = "PayPal"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodVNPay, PaymentMethodPayPal:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

// PaymentTransaction records one payment attempt against an order. An order
// may accumulate several attempts but at most one of them completes.
type PaymentTransaction struct {
	ID              string        `json:"id"`
	OrderID         string        `json:"order_id"`
	Method          PaymentMethod `json:"payment_method"`
	Status          PaymentStatus `json:"status"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	ProviderRef     string        `json:"provider_ref,omitempty"`
	ResponseCode    string        `json:"response_code,omitempty"`
	ResponseMessage string        `json:"response_message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
