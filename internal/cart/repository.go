// Package cart is the checkout-facing view of the external cart collaborator:
// it resolves the items selected for an order and removes them once they
// become order lines.
package cart

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// SelectedItem is one cart line joined with its variant and product, as
// needed by the order assembler. UnitPrice is the discounted product price
// when present, else the list price.
type SelectedItem struct {
	CartItemID       string
	ProductVariantID string
	ProductID        string
	ProductName      string
	CategoryID       string
	Size             string
	Color            string
	Quantity         int
	UnitPrice        int64
}

// SelectedForCheckout loads the cart items going into an order, locking the
// cart rows and their variant rows for the duration of tx. With selectAll the
// currently marked-selected items are taken; otherwise the explicit id list.
func SelectedForCheckout(ctx context.Context, tx *sql.Tx, userID string, itemIDs []string, selectAll bool) ([]SelectedItem, error) {
	query := `
		SELECT ci.id, ci.product_variant_id, ci.quantity,
		       pv.size, pv.color,
		       p.id, p.name, COALESCE(p.category_id, ''),
		       COALESCE(p.discount_price, p.price)
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN product_variants pv ON pv.id = ci.product_variant_id
		JOIN products p ON p.id = pv.product_id
		WHERE c.user_id = $1
	`
	args := []any{userID}
	if selectAll {
		query += ` AND ci.is_selected`
	} else {
		query += ` AND ci.id = ANY($2)`
		args = append(args, pq.Array(itemIDs))
	}
	query += `
		ORDER BY ci.id
		FOR UPDATE OF ci, pv
	`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []SelectedItem
	for rows.Next() {
		var item SelectedItem
		if err := rows.Scan(
			&item.CartItemID, &item.ProductVariantID, &item.Quantity,
			&item.Size, &item.Color,
			&item.ProductID, &item.ProductName, &item.CategoryID,
			&item.UnitPrice,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// DeleteItems removes consumed cart lines inside the same transaction that
// created their order items.
func DeleteItems(ctx context.Context, tx *sql.Tx, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE id = ANY($1)
	`, pq.Array(itemIDs)); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}
