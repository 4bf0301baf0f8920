// Package payment is the gateway adapter: it creates payment transactions
// for pending orders, hands redirect-based providers their signed requests,
// and reconciles asynchronous provider callbacks against stored transaction
// state.
package payment

import (
	"context"

	"github.com/marx5/storefront/internal/domain"
)

// InitiateRequest carries what a provider needs to start a payment attempt.
// The transaction id is generated before the provider round-trip so the
// database row is only written once the provider call has succeeded.
type InitiateRequest struct {
	TransactionID string
	OrderID       string
	Amount        int64 // VND
	ClientIP      string
}

// Redirect is a provider's answer for redirect-based methods. Correlation is
// opaque provider data kept in the short-lived reconciliation state until the
// callback arrives. A nil Redirect means the method completes immediately.
type Redirect struct {
	URL         string
	Correlation string
}

// Outcome is the normalized result of a provider callback, produced only
// after the callback's authenticity check has passed.
type Outcome struct {
	TransactionID string
	Success       bool
	ProviderRef   string
	ResponseCode  string
	Message       string
}

type Provider interface {
	Method() domain.PaymentMethod
	Currency() string
	// Initiate performs any provider round-trip required to start a payment.
	// It runs before any database row is locked or written.
	Initiate(ctx context.Context, req InitiateRequest) (*Redirect, error)
}

// Registry dispatches payment methods to their provider implementation.
// Adding a provider means registering it here; the order and payment flows
// never switch on the method themselves.
type Registry map[domain.PaymentMethod]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Method()] = p
	}
	return r
}

func (r Registry) Lookup(method domain.PaymentMethod) (Provider, bool) {
	p, ok := r[method]
	return p, ok
}
