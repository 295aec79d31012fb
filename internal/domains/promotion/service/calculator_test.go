package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"storefront-backend/internal/domains/promotion/model"
)

func TestDiscountCalculator_Calculate(t *testing.T) {
	calc := NewDiscountCalculator()

	testCases := []struct {
		name   string
		coupon model.Coupon
		amount int64
		want   int64
	}{
		{
			name:   "percentage",
			coupon: model.Coupon{Type: model.DiscountTypePercentage, Value: decimal.NewFromInt(10)},
			amount: 200000,
			want:   20000,
		},
		{
			name:   "percentage rounds to whole units",
			coupon: model.Coupon{Type: model.DiscountTypePercentage, Value: decimal.NewFromInt(15)},
			amount: 1003,
			want:   150,
		},
		{
			name:   "percentage above hundred is clamped",
			coupon: model.Coupon{Type: model.DiscountTypePercentage, Value: decimal.NewFromInt(150)},
			amount: 80000,
			want:   80000,
		},
		{
			name:   "fixed below amount",
			coupon: model.Coupon{Type: model.DiscountTypeFixed, Value: decimal.NewFromInt(50000)},
			amount: 120000,
			want:   50000,
		},
		{
			name:   "fixed capped at amount",
			coupon: model.Coupon{Type: model.DiscountTypeFixed, Value: decimal.NewFromInt(100000)},
			amount: 40000,
			want:   40000,
		},
		{
			name:   "unknown type",
			coupon: model.Coupon{Type: "bogus", Value: decimal.NewFromInt(10)},
			amount: 40000,
			want:   0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc.Calculate(&tc.coupon, decimal.NewFromInt(tc.amount))
			assert.True(t, decimal.NewFromInt(tc.want).Equal(got), "want %d, got %s", tc.want, got)
		})
	}
}
