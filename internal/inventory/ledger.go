// Package inventory owns the per-variant stock counters. Reserve and Release
// run inside the caller's transaction and take an exclusive row lock on the
// variant, so the stock check and the decrement are atomic relative to other
// reservers. Stock never goes negative.
package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marx5/storefront/internal/domain"
)

// Reserve locks the variant row and decrements its stock by quantity.
// It rejects with insufficient_stock when the current stock is short; the
// caller's transaction then rolls back the whole operation.
func Reserve(ctx context.Context, tx *sql.Tx, variantID string, quantity int) error {
	var stock int
	err := tx.QueryRowContext(ctx, `
		SELECT stock
		FROM product_variants
		WHERE id = $1
		FOR UPDATE
	`, variantID).Scan(&stock)
	if err == sql.ErrNoRows {
		return domain.Reject(domain.ReasonNotFound, "product variant "+variantID)
	}
	if err != nil {
		return fmt.Errorf("lock variant %s: %w", variantID, err)
	}

	if stock < quantity {
		return domain.Reject(domain.ReasonInsufficientStock,
			fmt.Sprintf("variant %s has %d in stock, %d requested", variantID, stock, quantity))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE product_variants
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1
	`, variantID, quantity); err != nil {
		return fmt.Errorf("decrement stock for variant %s: %w", variantID, err)
	}

	return nil
}

// Release locks the variant row and increments its stock by quantity. There
// is no upper bound: callers pair every release 1:1 with a prior reservation
// of the same quantity.
func Release(ctx context.Context, tx *sql.Tx, variantID string, quantity int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE product_variants
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, variantID, quantity)
	if err != nil {
		return fmt.Errorf("increment stock for variant %s: %w", variantID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.Reject(domain.ReasonNotFound, "product variant "+variantID)
	}

	return nil
}
