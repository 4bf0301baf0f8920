package checkout

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/marx5/storefront/internal/domain"
)

// Repository serves the read side of the order API. The write side lives in
// the tx-scoped functions below, which always run inside the assembler's
// transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	order := &domain.Order{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, address_id, promotion_id, total_price, shipping_fee,
		       status, payment_method, created_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, userID).Scan(
		&order.ID, &order.UserID, &order.AddressID, &order.PromotionID,
		&order.TotalPrice, &order.ShippingFee, &order.Status, &order.PaymentMethod,
		&order.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_variant_id, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductVariantID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}

// List returns one page of the user's orders, newest first, optionally
// filtered by status, with items eager-loaded in a single follow-up query.
func (r *Repository) List(ctx context.Context, userID string, status domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM orders WHERE user_id = $1`
	listQuery := `
		SELECT id, user_id, address_id, promotion_id, total_price, shipping_fee,
		       status, payment_method, created_at
		FROM orders
		WHERE user_id = $1
	`
	args := []any{userID}
	if status != "" {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		args = append(args, status)
	}
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery += fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID, &order.UserID, &order.AddressID, &order.PromotionID,
			&order.TotalPrice, &order.ShippingFee, &order.Status, &order.PaymentMethod,
			&order.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, total, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, product_variant_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ID, &item.ProductVariantID, &item.Quantity, &item.Price); err != nil {
			return nil, 0, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, total, nil
}

func addressOwned(ctx context.Context, tx *sql.Tx, addressID, userID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM addresses WHERE id = $1 AND user_id = $2
	`, addressID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check address ownership: %w", err)
	}
	return n > 0, nil
}

// countPendingOnline counts the user's unresolved orders awaiting an online
// payment. COD orders do not block new checkouts.
func countPendingOnline(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE user_id = $1 AND status = $2 AND payment_method <> $3
	`, userID, domain.OrderStatusPending, domain.PaymentMethodCOD).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending orders: %w", err)
	}
	return n, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	order.ID = uuid.New().String()
	order.CreatedAt = time.Now().UTC()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, address_id, promotion_id, total_price,
		                    shipping_fee, status, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, order.ID, order.UserID, order.AddressID, order.PromotionID,
		order.TotalPrice, order.ShippingFee, order.Status, order.PaymentMethod,
		order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New().String()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_variant_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, order.Items[i].ID, order.ID, order.Items[i].ProductVariantID,
			order.Items[i].Quantity, order.Items[i].Price)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

// orderForUpdate locks the user's order row and returns its status.
func orderForUpdate(ctx context.Context, tx *sql.Tx, orderID, userID string) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE
	`, orderID, userID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", domain.Reject(domain.ReasonNotFound, "order "+orderID)
	}
	if err != nil {
		return "", fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return status, nil
}

func setOrderStatus(ctx context.Context, tx *sql.Tx, orderID string, status domain.OrderStatus) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
	`, orderID, status); err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	return nil
}

func itemsForOrder(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.OrderItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_variant_id, quantity, price
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductVariantID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
