package payment

import (
	"context"

	"github.com/marx5/storefront/internal/domain"
)

// COD is cash on delivery: no external provider, the attempt completes
// immediately and the order moves to processing.
type COD struct{}

func NewCOD() *COD {
	return &COD{}
}

func (c *COD) Method() domain.PaymentMethod {
	return domain.PaymentMethodCOD
}

func (c *COD) Currency() string {
	return "VND"
}

func (c *COD) Initiate(ctx context.Context, req InitiateRequest) (*Redirect, error) {
	return nil, nil
}
