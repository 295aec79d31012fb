package service

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/promotion/model"
)

// ServiceInterface is the coupon validator.
type ServiceInterface interface {
	// Validate checks, in order: not found, expired or inactive, exhausted,
	// minimum not met. It returns the discount without mutating anything.
	Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*model.Quote, error)

	// Consume re-validates under the coupon's lock and increments its usage
	// count by one, so no other order observes a stale count in between.
	Consume(ctx context.Context, code string, orderAmount decimal.Decimal) (*model.Quote, error)

	// Revert decrements the usage count by one, floored at zero.
	// Per-order idempotency is the caller's responsibility.
	Revert(ctx context.Context, code string) error

	// Reapply increments the usage count unless the cap is reached, skipping
	// the window and minimum checks. It only undoes a Revert.
	Reapply(ctx context.Context, code string) error

	CreateCoupon(ctx context.Context, req model.CreateCouponRequest) (*model.Coupon, error)
	GetCoupon(ctx context.Context, code string) (*model.Coupon, error)
}
