package domain

import "time"

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type Promotion struct {
	ID                   string       `json:"id"`
	Code                 string       `json:"code"`
	DiscountType         DiscountType `json:"discount_type"`
	Discount             float64      `json:"discount"`
	MinOrderValue        int64        `json:"min_order_value"`
	StartDate            time.Time    `json:"start_date"`
	EndDate              time.Time    `json:"end_date"`
	MaxUses              int          `json:"max_uses"`
	UsedCount            int          `json:"used_count"`
	IsActive             bool         `json:"is_active"`
	UserSpecific         *string      `json:"user_specific,omitempty"`
	ApplicableCategoryID *string      `json:"applicable_category_id,omitempty"`
	ApplicableProductID  *string      `json:"applicable_product_id,omitempty"`
}
