package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marx5/storefront/internal/domain"
)

// orderRow is the slice of an order the gateway needs.
type orderRow struct {
	ID            string
	UserID        string
	Status        domain.OrderStatus
	TotalPrice    int64
	PaymentMethod domain.PaymentMethod
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadOrder(ctx context.Context, q querier, orderID, userID string) (*orderRow, error) {
	row := &orderRow{}
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, status, total_price, payment_method
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, userID).Scan(&row.ID, &row.UserID, &row.Status, &row.TotalPrice, &row.PaymentMethod)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return row, nil
}

// lockOrder takes the exclusive row lock on an order for a status
// transition. The user filter is skipped for provider-driven callbacks,
// which carry no end-user identity.
func lockOrder(ctx context.Context, tx *sql.Tx, orderID, userID string) (*orderRow, error) {
	query := `
		SELECT id, user_id, status, total_price, payment_method
		FROM orders
		WHERE id = $1
	`
	args := []any{orderID}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	query += ` FOR UPDATE`

	row := &orderRow{}
	err := tx.QueryRowContext(ctx, query, args...).Scan(
		&row.ID, &row.UserID, &row.Status, &row.TotalPrice, &row.PaymentMethod,
	)
	if err == sql.ErrNoRows {
		return nil, domain.Reject(domain.ReasonNotFound, "order "+orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return row, nil
}

func updateOrderStatus(ctx context.Context, tx *sql.Tx, orderID string, status domain.OrderStatus) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
	`, orderID, status); err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	return nil
}

// attemptStats counts the order's initiated attempts and reports the oldest
// one, which anchors the 24-hour window.
func attemptStats(ctx context.Context, q querier, orderID string) (count int, earliest time.Time, err error) {
	var first sql.NullTime
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM payment_transactions
		WHERE order_id = $1 AND status = $2
	`, orderID, domain.PaymentStatusInitiated).Scan(&count, &first)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("count payment attempts: %w", err)
	}
	if first.Valid {
		earliest = first.Time
	}
	return count, earliest, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn *domain.PaymentTransaction) error {
	txn.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payment_transactions (id, order_id, payment_method, status,
		                                  amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, txn.ID, txn.OrderID, txn.Method, txn.Status, txn.Amount, txn.Currency, txn.CreatedAt); err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

func transactionForUpdate(ctx context.Context, tx *sql.Tx, transactionID string) (*domain.PaymentTransaction, error) {
	txn := &domain.PaymentTransaction{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, order_id, payment_method, status, amount, currency, created_at
		FROM payment_transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID).Scan(
		&txn.ID, &txn.OrderID, &txn.Method, &txn.Status, &txn.Amount, &txn.Currency, &txn.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.Reject(domain.ReasonNotFound, "payment transaction "+transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock payment transaction %s: %w", transactionID, err)
	}
	return txn, nil
}

// transactionOrderID resolves a transaction to its order without locking,
// so settlement can take the order lock before the transaction lock. Every
// writer locks in that order.
func transactionOrderID(ctx context.Context, tx *sql.Tx, transactionID string) (string, error) {
	var orderID string
	err := tx.QueryRowContext(ctx, `
		SELECT order_id FROM payment_transactions WHERE id = $1
	`, transactionID).Scan(&orderID)
	if err == sql.ErrNoRows {
		return "", domain.Reject(domain.ReasonNotFound, "payment transaction "+transactionID)
	}
	if err != nil {
		return "", fmt.Errorf("resolve payment transaction %s: %w", transactionID, err)
	}
	return orderID, nil
}

// latestInitiated finds the newest initiated attempt for an order and locks
// it, used by the user-initiated cancel path.
func latestInitiated(ctx context.Context, tx *sql.Tx, orderID string) (*domain.PaymentTransaction, error) {
	txn := &domain.PaymentTransaction{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, order_id, payment_method, status, amount, currency, created_at
		FROM payment_transactions
		WHERE order_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, orderID, domain.PaymentStatusInitiated).Scan(
		&txn.ID, &txn.OrderID, &txn.Method, &txn.Status, &txn.Amount, &txn.Currency, &txn.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.Reject(domain.ReasonNotFound, "no initiated payment for order "+orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock latest payment attempt: %w", err)
	}
	return txn, nil
}

// initiatedTransactionID finds the pending attempt the PayPal return leg
// refers to, without locking; the settlement path re-locks it.
func initiatedTransactionID(ctx context.Context, db *sql.DB, orderID string, method domain.PaymentMethod) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `
		SELECT id
		FROM payment_transactions
		WHERE order_id = $1 AND payment_method = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID, method, domain.PaymentStatusInitiated).Scan(&id)
	if err == sql.ErrNoRows {
		return "", domain.Reject(domain.ReasonNotFound, "no initiated payment for order "+orderID)
	}
	if err != nil {
		return "", fmt.Errorf("find initiated payment: %w", err)
	}
	return id, nil
}

func settleTransaction(ctx context.Context, tx *sql.Tx, transactionID string, status domain.PaymentStatus, providerRef, responseCode, responseMessage string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, provider_ref = NULLIF($3, ''), response_code = NULLIF($4, ''),
		    response_message = NULLIF($5, ''), updated_at = NOW()
		WHERE id = $1
	`, transactionID, status, providerRef, responseCode, responseMessage); err != nil {
		return fmt.Errorf("settle payment transaction %s: %w", transactionID, err)
	}
	return nil
}
