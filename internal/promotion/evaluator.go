// Package promotion validates and redeems discount codes. Redeem always runs
// inside the caller's order-creation transaction with the promotion row
// locked, so the used_count increment commits or rolls back together with the
// order that consumes it.
package promotion

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marx5/storefront/internal/domain"
)

// LineRef identifies one order line for applicability checks.
type LineRef struct {
	ProductID  string
	CategoryID string
}

// OrderContext is what the evaluator needs to know about the order being
// assembled.
type OrderContext struct {
	UserID   string
	Subtotal int64
	Lines    []LineRef
}

type Redemption struct {
	PromotionID string
	Discount    int64
}

// Redeem validates code against oc and, on success, increments the
// promotion's used_count within tx. Checks run in a fixed order and the first
// failure wins. Nonexistent, inactive, expired and wrong-user codes are all
// reported as invalid_code so callers cannot probe for promotion existence.
func Redeem(ctx context.Context, tx *sql.Tx, code string, oc OrderContext) (*Redemption, error) {
	var (
		p          domain.Promotion
		categoryID sql.NullString
		productID  sql.NullString
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, discount_type, discount, min_order_value, max_uses, used_count,
		       applicable_category_id, applicable_product_id
		FROM promotions
		WHERE code = $1
		  AND is_active
		  AND start_date <= NOW()
		  AND end_date >= NOW()
		  AND (user_specific IS NULL OR user_specific = $2)
		FOR UPDATE
	`, code, oc.UserID).Scan(
		&p.ID, &p.DiscountType, &p.Discount, &p.MinOrderValue, &p.MaxUses, &p.UsedCount,
		&categoryID, &productID,
	)
	if err == sql.ErrNoRows {
		return nil, domain.Reject(domain.ReasonInvalidCode, "")
	}
	if err != nil {
		return nil, fmt.Errorf("lock promotion %q: %w", code, err)
	}

	if p.UsedCount >= p.MaxUses {
		return nil, domain.Reject(domain.ReasonMaxUsesReached, "")
	}

	if oc.Subtotal < p.MinOrderValue {
		return nil, domain.Reject(domain.ReasonBelowMinimum,
			fmt.Sprintf("order total must be at least %d", p.MinOrderValue))
	}

	if categoryID.Valid || productID.Valid {
		if !applies(oc.Lines, categoryID.String, productID.String) {
			return nil, domain.Reject(domain.ReasonNotApplicable, "")
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE promotions
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1
	`, p.ID); err != nil {
		return nil, fmt.Errorf("redeem promotion %s: %w", p.ID, err)
	}

	return &Redemption{
		PromotionID: p.ID,
		Discount:    discountAmount(p.DiscountType, p.Discount, oc.Subtotal),
	}, nil
}

func applies(lines []LineRef, categoryID, productID string) bool {
	for _, line := range lines {
		if categoryID != "" && line.CategoryID == categoryID {
			return true
		}
		if productID != "" && line.ProductID == productID {
			return true
		}
	}
	return false
}

// discountAmount computes the discount in VND. Fixed discounts are not
// clamped to the subtotal: the payable total can go negative.
func discountAmount(typ domain.DiscountType, value float64, subtotal int64) int64 {
	if typ == domain.DiscountTypePercentage {
		return int64(float64(subtotal) * value / 100)
	}
	return int64(value)
}
