package payment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/marx5/storefront/internal/domain"
	"github.com/marx5/storefront/internal/messaging"
	"github.com/marx5/storefront/internal/postgres"
)

const (
	maxAttempts   = 3
	attemptWindow = 24 * time.Hour
)

type Service struct {
	db        *sql.DB
	providers Registry
	state     *StateStore
	producer  *messaging.Producer
	logger    *slog.Logger
}

func NewService(db *sql.DB, providers Registry, state *StateStore, producer *messaging.Producer, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		providers: providers,
		state:     state,
		producer:  producer,
		logger:    logger,
	}
}

type InitiateResult struct {
	TransactionID string               `json:"transaction_id"`
	Method        domain.PaymentMethod `json:"payment_method"`
	Status        domain.PaymentStatus `json:"status"`
	PaymentURL    string               `json:"payment_url,omitempty"`
}

// Initiate starts a payment attempt for a pending order. The provider
// round-trip happens before any row lock is taken; the transaction row is
// only created once it has succeeded, then everything is re-verified under
// the order lock.
func (s *Service) Initiate(ctx context.Context, orderID, userID, clientIP string) (*InitiateResult, error) {
	ord, err := loadOrder(ctx, s.db, orderID, userID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, domain.Reject(domain.ReasonNotFound, "order "+orderID)
	}
	if ord.Status != domain.OrderStatusPending {
		return nil, domain.Reject(domain.ReasonOrderNotPayable, "order cannot be processed")
	}

	provider, ok := s.providers.Lookup(ord.PaymentMethod)
	if !ok {
		return nil, domain.Reject(domain.ReasonUnsupportedMethod, string(ord.PaymentMethod))
	}

	// Cheap pre-check so exhausted orders never trigger a provider call.
	// Authoritative re-check happens under the order lock below.
	if err := s.checkAttempts(ctx, s.db, orderID); err != nil {
		return nil, err
	}

	transactionID := uuid.New().String()
	redirect, err := provider.Initiate(ctx, InitiateRequest{
		TransactionID: transactionID,
		OrderID:       orderID,
		Amount:        ord.TotalPrice,
		ClientIP:      clientIP,
	})
	if err != nil {
		s.logger.Error("payment provider initiation failed",
			"error", err, "order_id", orderID, "method", ord.PaymentMethod)
		return nil, domain.Reject(domain.ReasonGatewayError, "")
	}
	immediate := redirect == nil

	err = postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, err := lockOrder(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}
		if locked.Status != domain.OrderStatusPending {
			return domain.Reject(domain.ReasonOrderNotPayable, "order cannot be processed")
		}
		if err := s.checkAttempts(ctx, tx, orderID); err != nil {
			return err
		}

		txn := &domain.PaymentTransaction{
			ID:       transactionID,
			OrderID:  orderID,
			Method:   locked.PaymentMethod,
			Status:   domain.PaymentStatusInitiated,
			Amount:   locked.TotalPrice,
			Currency: provider.Currency(),
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		if immediate {
			if err := settleTransaction(ctx, tx, transactionID,
				domain.PaymentStatusCompleted, "", "", "Cash on delivery"); err != nil {
				return err
			}
			return updateOrderStatus(ctx, tx, orderID, domain.OrderStatusProcessing)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &InitiateResult{
		TransactionID: transactionID,
		Method:        ord.PaymentMethod,
		Status:        domain.PaymentStatusInitiated,
	}
	if immediate {
		result.Status = domain.PaymentStatusCompleted
		s.notify(ctx, ord.UserID, "Order Processing",
			fmt.Sprintf("Your order #%s is being processed for Cash on Delivery.", orderID))
		return result, nil
	}

	if err := s.state.Put(ctx, ord.PaymentMethod, transactionID, redirect.Correlation); err != nil {
		// Soft state: without it the callback is rejected and the user
		// re-initiates within the attempt budget.
		s.logger.Error("failed to store reconciliation state",
			"error", err, "transaction_id", transactionID)
	}

	result.PaymentURL = redirect.URL
	s.notify(ctx, ord.UserID, "Payment Initiated",
		fmt.Sprintf("Your order #%s payment has been initiated via %s.", orderID, ord.PaymentMethod))
	return result, nil
}

// ReconcileVNPay verifies an inbound VNPay callback and settles the
// referenced transaction. The signature check runs before any row is read.
func (s *Service) ReconcileVNPay(ctx context.Context, params url.Values) (*Outcome, error) {
	provider, ok := s.providers.Lookup(domain.PaymentMethodVNPay)
	if !ok {
		return nil, domain.Reject(domain.ReasonUnsupportedMethod, string(domain.PaymentMethodVNPay))
	}
	vnpay, ok := provider.(*VNPay)
	if !ok {
		return nil, domain.Reject(domain.ReasonUnsupportedMethod, string(domain.PaymentMethodVNPay))
	}

	outcome, err := vnpay.VerifyCallback(params)
	if err != nil {
		s.logger.Warn("vnpay callback rejected, candidate forgery",
			"txn_ref", params.Get("vnp_TxnRef"))
		return nil, err
	}

	if err := s.settle(ctx, domain.PaymentMethodVNPay, *outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// CompletePayPal handles the buyer's return leg: the stored order token is
// the authenticity check, then the payment is captured server-side before
// the settlement transaction opens.
func (s *Service) CompletePayPal(ctx context.Context, orderID, userID, token string) error {
	provider, ok := s.providers.Lookup(domain.PaymentMethodPayPal)
	if !ok {
		return domain.Reject(domain.ReasonUnsupportedMethod, string(domain.PaymentMethodPayPal))
	}
	paypal, ok := provider.(*PayPal)
	if !ok {
		return domain.Reject(domain.ReasonUnsupportedMethod, string(domain.PaymentMethodPayPal))
	}

	ord, err := loadOrder(ctx, s.db, orderID, userID)
	if err != nil {
		return err
	}
	if ord == nil {
		return domain.Reject(domain.ReasonNotFound, "order "+orderID)
	}

	transactionID, err := initiatedTransactionID(ctx, s.db, orderID, domain.PaymentMethodPayPal)
	if err != nil {
		return err
	}

	stored, err := s.state.Get(ctx, domain.PaymentMethodPayPal, transactionID)
	if err != nil {
		return err
	}
	if stored == "" || stored != token {
		s.logger.Warn("paypal return token mismatch, candidate forgery",
			"order_id", orderID, "transaction_id", transactionID)
		return domain.Reject(domain.ReasonSignatureMismatch, "")
	}

	capture, err := paypal.Capture(ctx, token)
	if err != nil {
		s.logger.Error("paypal capture failed", "error", err, "order_id", orderID)
		return domain.Reject(domain.ReasonGatewayError, "")
	}

	outcome := Outcome{
		TransactionID: transactionID,
		Success:       capture.Status == "COMPLETED",
		ProviderRef:   capture.ID,
		ResponseCode:  capture.Status,
	}
	if outcome.Success {
		outcome.Message = "Payment successful"
	} else {
		outcome.Message = "Payment failed"
	}

	return s.settle(ctx, domain.PaymentMethodPayPal, outcome)
}

// CancelPayment is the user-initiated cancel-before-completion path: the
// newest initiated attempt is marked canceled and the order failed, without
// contacting the provider.
func (s *Service) CancelPayment(ctx context.Context, orderID, userID string) error {
	var (
		method        domain.PaymentMethod
		transactionID string
		ownerID       string
	)
	err := postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		ord, err := lockOrder(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}

		txn, err := latestInitiated(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := settleTransaction(ctx, tx, txn.ID,
			domain.PaymentStatusCanceled, "", "", "Payment canceled by user"); err != nil {
			return err
		}
		if err := updateOrderStatus(ctx, tx, orderID, domain.OrderStatusFailed); err != nil {
			return err
		}

		method, transactionID, ownerID = txn.Method, txn.ID, ord.UserID
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.state.Delete(ctx, method, transactionID); err != nil {
		s.logger.Error("failed to clear reconciliation state",
			"error", err, "transaction_id", transactionID)
	}

	s.notify(ctx, ownerID, "Payment Canceled",
		fmt.Sprintf("Your payment for order #%s via %s was canceled.", orderID, method))
	return nil
}

// settle locks the order and then the transaction, guards against duplicate
// callback delivery, and mirrors the outcome onto both rows.
func (s *Service) settle(ctx context.Context, method domain.PaymentMethod, o Outcome) error {
	var orderID, ownerID string
	err := postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		relatedOrderID, err := transactionOrderID(ctx, tx, o.TransactionID)
		if err != nil {
			return err
		}
		ord, err := lockOrder(ctx, tx, relatedOrderID, "")
		if err != nil {
			return err
		}
		txn, err := transactionForUpdate(ctx, tx, o.TransactionID)
		if err != nil {
			return err
		}
		if txn.Status != domain.PaymentStatusInitiated {
			return domain.Reject(domain.ReasonAlreadyProcessed, "")
		}

		txnStatus, orderStatus := domain.PaymentStatusCompleted, domain.OrderStatusCompleted
		if !o.Success {
			txnStatus, orderStatus = domain.PaymentStatusFailed, domain.OrderStatusFailed
		}

		if err := settleTransaction(ctx, tx, txn.ID, txnStatus, o.ProviderRef, o.ResponseCode, o.Message); err != nil {
			return err
		}
		if err := updateOrderStatus(ctx, tx, ord.ID, orderStatus); err != nil {
			return err
		}

		orderID, ownerID = ord.ID, ord.UserID
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.state.Delete(ctx, method, o.TransactionID); err != nil {
		s.logger.Error("failed to clear reconciliation state",
			"error", err, "transaction_id", o.TransactionID)
	}

	if o.Success {
		s.notify(ctx, ownerID, "Payment Successful",
			fmt.Sprintf("Your payment for order #%s via %s was successful.", orderID, method))
	} else {
		s.notify(ctx, ownerID, "Payment Failed",
			fmt.Sprintf("Your payment for order #%s via %s failed.", orderID, method))
	}
	return nil
}

func (s *Service) checkAttempts(ctx context.Context, q querier, orderID string) error {
	count, earliest, err := attemptStats(ctx, q, orderID)
	if err != nil {
		return err
	}
	if count >= maxAttempts {
		return domain.Reject(domain.ReasonTooManyAttempts, "maximum payment initiation attempts reached")
	}
	if count > 0 && time.Since(earliest) > attemptWindow {
		return domain.Reject(domain.ReasonAttemptWindowExpired,
			"payment initiation window has expired, create a new order")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID, title, message string) {
	if s.producer == nil {
		return
	}
	event := domain.NotificationEvent{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      domain.NotificationTypePayment,
		Timestamp: time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, userID, event); err != nil {
		s.logger.Error("failed to publish notification event", "error", err, "user_id", userID)
	}
}
