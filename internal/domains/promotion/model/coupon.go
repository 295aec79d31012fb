package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// =====================================================
// ENTITY: Coupon
// =====================================================

// Coupon is a redeemable discount code. UsageCount moves only through
// Consume (+1) and Revert (-1, floored at 0).
type Coupon struct {
	ID             uuid.UUID       `json:"id"`
	Code           string          `json:"code"`
	Type           DiscountType    `json:"type"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	MaxUsage       int             `json:"max_usage"` // 0 = unlimited
	UsageCount     int             `json:"usage_count"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	IsActive       bool            `json:"is_active"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NormalizeCode returns the stored (upper-case) form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// InWindow reports whether the coupon is active and now is inside
// [StartDate, EndDate].
func (c *Coupon) InWindow(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Exhausted reports whether the usage cap has been reached.
func (c *Coupon) Exhausted() bool {
	return c.MaxUsage > 0 && c.UsageCount >= c.MaxUsage
}

// IsValidAt is the derived validity: active, in window and not exhausted.
func (c *Coupon) IsValidAt(now time.Time) bool {
	return c.InWindow(now) && !c.Exhausted()
}

// Quote is the result of validating a coupon against an order amount.
type Quote struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}
