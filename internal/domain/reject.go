package domain

import "errors"

// Reason is a stable machine-readable rejection code. API clients branch on
// these values, never on message text.
type Reason string

const (
	ReasonInvalidCode          Reason = "invalid_code"
	ReasonMaxUsesReached       Reason = "max_uses_reached"
	ReasonBelowMinimum         Reason = "below_minimum"
	ReasonNotApplicable        Reason = "not_applicable"
	ReasonNoItemsSelected      Reason = "no_items_selected"
	ReasonAddressNotFound      Reason = "address_not_found"
	ReasonPendingOrderExists   Reason = "pending_order_exists"
	ReasonInsufficientStock    Reason = "insufficient_stock"
	ReasonNotFound             Reason = "not_found"
	ReasonNotCancellable       Reason = "not_cancellable"
	ReasonOrderNotPayable      Reason = "order_not_payable"
	ReasonTooManyAttempts      Reason = "too_many_attempts"
	ReasonAttemptWindowExpired Reason = "attempt_window_expired"
	ReasonAlreadyProcessed     Reason = "already_processed"
	ReasonSignatureMismatch    Reason = "signature_mismatch"
	ReasonUnsupportedMethod    Reason = "unsupported_method"
	ReasonGatewayError         Reason = "gateway_error"
	ReasonInvalidRequest       Reason = "invalid_request"
)

// Rejection is an expected business-rule failure. Operations return it
// instead of a success value; anything that is not a Rejection is treated as
// an internal fault.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}

func Reject(reason Reason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

// AsRejection unwraps err into a Rejection if one is anywhere in its chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
