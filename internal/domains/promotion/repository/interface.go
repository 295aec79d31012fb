package repository

import (
	"context"

	"storefront-backend/internal/domains/promotion/model"
)

// CouponRepository stores coupons keyed by their upper-case code.
type CouponRepository interface {
	// Create inserts a new coupon; a taken code returns ErrCouponDuplicateCode.
	Create(ctx context.Context, coupon *model.Coupon) error

	// GetByCode looks up a coupon case-insensitively.
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)

	// Mutate loads the coupon under its per-code lock, lets fn change it and
	// persists the result. Nothing is written when fn returns an error.
	// No other Mutate on the same code can interleave.
	Mutate(ctx context.Context, code string, fn func(coupon *model.Coupon) error) (*model.Coupon, error)
}
