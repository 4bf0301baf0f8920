// Package checkout assembles orders: it resolves the selected items, reserves
// stock, redeems promotion codes and persists the order with its line items
// inside one transaction, retrying the whole sequence on transient lock
// conflicts.
package checkout

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/marx5/storefront/internal/cart"
	"github.com/marx5/storefront/internal/domain"
	"github.com/marx5/storefront/internal/inventory"
	"github.com/marx5/storefront/internal/messaging"
	"github.com/marx5/storefront/internal/postgres"
	"github.com/marx5/storefront/internal/promotion"
)

const (
	freeShippingThreshold = 1_000_000
	flatShippingFee       = 30_000
	txAttempts            = 3
)

type Service struct {
	db       *sql.DB
	producer *messaging.Producer
	cache    *cart.Cache
	logger   *slog.Logger
}

func NewService(db *sql.DB, producer *messaging.Producer, cache *cart.Cache, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		producer: producer,
		cache:    cache,
		logger:   logger,
	}
}

type CreateFromCartInput struct {
	UserID        string
	CartItemIDs   []string
	SelectAll     bool
	AddressID     string
	PaymentMethod domain.PaymentMethod
	PromotionCode string
}

// orderLine is the assembler's working view of one future order item.
type orderLine struct {
	variantID   string
	productID   string
	categoryID  string
	productName string
	size        string
	color       string
	quantity    int
	unitPrice   int64
}

// CreateFromCart builds an order from the user's cart selection. All-or-
// nothing: the first insufficient-stock item aborts the whole operation, and
// nothing is persisted unless every step succeeds.
func (s *Service) CreateFromCart(ctx context.Context, in CreateFromCartInput) (*domain.Order, error) {
	if !in.PaymentMethod.Valid() {
		return nil, domain.Reject(domain.ReasonInvalidRequest, "invalid payment method")
	}
	if !in.SelectAll && len(in.CartItemIDs) == 0 {
		return nil, domain.Reject(domain.ReasonInvalidRequest, "either cartItemIds or selectAll must be provided")
	}

	var order *domain.Order
	err := postgres.RetryInTx(ctx, s.db, txAttempts, func(tx *sql.Tx) error {
		selected, err := cart.SelectedForCheckout(ctx, tx, in.UserID, in.CartItemIDs, in.SelectAll)
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			return domain.Reject(domain.ReasonNoItemsSelected, "")
		}

		lines := make([]orderLine, len(selected))
		cartItemIDs := make([]string, len(selected))
		for i, item := range selected {
			lines[i] = orderLine{
				variantID:   item.ProductVariantID,
				productID:   item.ProductID,
				categoryID:  item.CategoryID,
				productName: item.ProductName,
				size:        item.Size,
				color:       item.Color,
				quantity:    item.Quantity,
				unitPrice:   item.UnitPrice,
			}
			cartItemIDs[i] = item.CartItemID
		}

		order, err = s.assemble(ctx, tx, in.UserID, in.AddressID, in.PaymentMethod, in.PromotionCode, lines)
		if err != nil {
			return err
		}

		return cart.DeleteItems(ctx, tx, cartItemIDs)
	})
	if err != nil {
		return nil, err
	}

	s.afterOrderChange(ctx, order.UserID, "Order Created",
		fmt.Sprintf("Your order #%s has been created successfully.", order.ID))
	return order, nil
}

type BuyNowInput struct {
	UserID           string
	ProductVariantID string
	Quantity         int
	AddressID        string
	PaymentMethod    domain.PaymentMethod
	PromotionCode    string
}

// BuyNow is CreateFromCart specialized to a single variant, skipping the cart
// entirely.
func (s *Service) BuyNow(ctx context.Context, in BuyNowInput) (*domain.Order, error) {
	if !in.PaymentMethod.Valid() {
		return nil, domain.Reject(domain.ReasonInvalidRequest, "invalid payment method")
	}
	if in.Quantity < 1 {
		return nil, domain.Reject(domain.ReasonInvalidRequest, "quantity must be a positive integer")
	}

	var order *domain.Order
	err := postgres.RetryInTx(ctx, s.db, txAttempts, func(tx *sql.Tx) error {
		line, err := variantLine(ctx, tx, in.ProductVariantID, in.Quantity)
		if err != nil {
			return err
		}

		order, err = s.assemble(ctx, tx, in.UserID, in.AddressID, in.PaymentMethod, in.PromotionCode, []orderLine{*line})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterOrderChange(ctx, order.UserID, "Order Created",
		fmt.Sprintf("Your order #%s has been created successfully.", order.ID))
	return order, nil
}

// assemble runs steps the two creation paths share, inside the caller's
// transaction: ownership and pending-order checks, stock reservation,
// promotion redemption, totals, persistence.
func (s *Service) assemble(ctx context.Context, tx *sql.Tx, userID, addressID string, method domain.PaymentMethod, promoCode string, lines []orderLine) (*domain.Order, error) {
	owned, err := addressOwned(ctx, tx, addressID, userID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, domain.Reject(domain.ReasonAddressNotFound, "")
	}

	pending, err := countPendingOnline(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, domain.Reject(domain.ReasonPendingOrderExists,
			"complete or cancel your pending order first")
	}

	for _, line := range lines {
		if err := inventory.Reserve(ctx, tx, line.variantID, line.quantity); err != nil {
			if rej, ok := domain.AsRejection(err); ok && rej.Reason == domain.ReasonInsufficientStock {
				return nil, domain.Reject(domain.ReasonInsufficientStock,
					fmt.Sprintf("%s (%s, %s)", line.productName, line.color, line.size))
			}
			return nil, err
		}
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += line.unitPrice * int64(line.quantity)
	}

	var discount int64
	var promotionID *string
	if promoCode != "" {
		oc := promotion.OrderContext{
			UserID:   userID,
			Subtotal: subtotal,
			Lines:    make([]promotion.LineRef, len(lines)),
		}
		for i, line := range lines {
			oc.Lines[i] = promotion.LineRef{ProductID: line.productID, CategoryID: line.categoryID}
		}
		redemption, err := promotion.Redeem(ctx, tx, promoCode, oc)
		if err != nil {
			return nil, err
		}
		discount = redemption.Discount
		promotionID = &redemption.PromotionID
	}

	// Fixed discounts are not clamped, so discounted can be negative.
	discounted := subtotal - discount
	var shippingFee int64 = flatShippingFee
	if discounted >= freeShippingThreshold {
		shippingFee = 0
	}

	order := &domain.Order{
		UserID:        userID,
		AddressID:     addressID,
		PromotionID:   promotionID,
		TotalPrice:    discounted + shippingFee,
		ShippingFee:   shippingFee,
		Status:        domain.OrderStatusPending,
		PaymentMethod: method,
		Items:         make([]domain.OrderItem, len(lines)),
	}
	for i, line := range lines {
		order.Items[i] = domain.OrderItem{
			ProductVariantID: line.variantID,
			Quantity:         line.quantity,
			Price:            line.unitPrice,
		}
	}

	if err := insertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// Cancel transitions a pending order to cancelled and releases every line
// item's reserved quantity, atomically. Any other status is rejected.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) error {
	err := postgres.RetryInTx(ctx, s.db, txAttempts, func(tx *sql.Tx) error {
		status, err := orderForUpdate(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}
		if status != domain.OrderStatusPending {
			return domain.Reject(domain.ReasonNotCancellable, "only pending orders can be canceled")
		}

		if err := setOrderStatus(ctx, tx, orderID, domain.OrderStatusCancelled); err != nil {
			return err
		}

		items, err := itemsForOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := inventory.Release(ctx, tx, item.ProductVariantID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.afterOrderChange(ctx, userID, "Order Canceled",
		fmt.Sprintf("Your order #%s has been canceled.", orderID))
	return nil
}

// variantLine loads and locks a variant with its product for the buy-now
// path.
func variantLine(ctx context.Context, tx *sql.Tx, variantID string, quantity int) (*orderLine, error) {
	line := orderLine{variantID: variantID, quantity: quantity}
	err := tx.QueryRowContext(ctx, `
		SELECT pv.size, pv.color,
		       p.id, p.name, COALESCE(p.category_id, ''),
		       COALESCE(p.discount_price, p.price)
		FROM product_variants pv
		JOIN products p ON p.id = pv.product_id
		WHERE pv.id = $1
		FOR UPDATE OF pv
	`, variantID).Scan(&line.size, &line.color, &line.productID, &line.productName, &line.categoryID, &line.unitPrice)
	if err == sql.ErrNoRows {
		return nil, domain.Reject(domain.ReasonNotFound, "product variant "+variantID)
	}
	if err != nil {
		return nil, fmt.Errorf("load variant %s: %w", variantID, err)
	}
	return &line, nil
}

// afterOrderChange runs the fire-and-forget post-commit work. Failure to
// enqueue or invalidate never rolls anything back.
func (s *Service) afterOrderChange(ctx context.Context, userID, title, message string) {
	if s.producer != nil {
		event := domain.NotificationEvent{
			UserID:    userID,
			Title:     title,
			Message:   message,
			Type:      domain.NotificationTypeOrder,
			Timestamp: time.Now().UTC(),
		}
		if err := s.producer.Publish(ctx, userID, event); err != nil {
			s.logger.Error("failed to publish notification event", "error", err, "user_id", userID)
		}
	}

	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Error("failed to invalidate user caches", "error", err, "user_id", userID)
	}
}
