package service

import (
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/promotion/model"
)

var hundred = decimal.NewFromInt(100)

// DiscountCalculator computes the discount a coupon grants on an amount.
type DiscountCalculator struct{}

func NewDiscountCalculator() *DiscountCalculator {
	return &DiscountCalculator{}
}

// Calculate returns the discount, rounded to whole currency units and
// never more than amount:
//   - percentage: round(amount * value / 100)
//   - fixed: value
func (c *DiscountCalculator) Calculate(coupon *model.Coupon, amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch coupon.Type {
	case model.DiscountTypePercentage:
		discount = amount.Mul(coupon.Value).Div(hundred).Round(0)
	case model.DiscountTypeFixed:
		discount = coupon.Value
	default:
		return decimal.Zero
	}

	// A percentage above 100 is not rejected here; clamping keeps the
	// total from going negative either way.
	if discount.GreaterThan(amount) {
		discount = amount
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount
}
