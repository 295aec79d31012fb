package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/promotion/model"
	"storefront-backend/internal/domains/promotion/repository"
	"storefront-backend/pkg/logger"
)

type couponService struct {
	repo       repository.CouponRepository
	calculator *DiscountCalculator
	now        func() time.Time
}

// NewCouponService builds the validator. now may be nil (wall clock).
func NewCouponService(repo repository.CouponRepository, now func() time.Time) ServiceInterface {
	if now == nil {
		now = time.Now
	}
	return &couponService{
		repo:       repo,
		calculator: NewDiscountCalculator(),
		now:        now,
	}
}

func (s *couponService) Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*model.Quote, error) {
	coupon, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.check(coupon, orderAmount); err != nil {
		return nil, err
	}

	return &model.Quote{
		Code:     coupon.Code,
		Discount: s.calculator.Calculate(coupon, orderAmount),
	}, nil
}

func (s *couponService) Consume(ctx context.Context, code string, orderAmount decimal.Decimal) (*model.Quote, error) {
	var discount decimal.Decimal

	coupon, err := s.repo.Mutate(ctx, code, func(c *model.Coupon) error {
		if err := s.check(c, orderAmount); err != nil {
			return err
		}
		discount = s.calculator.Calculate(c, orderAmount)
		c.UsageCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("coupon consumed", map[string]interface{}{
		"code":        coupon.Code,
		"usage_count": coupon.UsageCount,
		"max_usage":   coupon.MaxUsage,
	})

	return &model.Quote{Code: coupon.Code, Discount: discount}, nil
}

func (s *couponService) Revert(ctx context.Context, code string) error {
	coupon, err := s.repo.Mutate(ctx, code, func(c *model.Coupon) error {
		if c.UsageCount > 0 {
			c.UsageCount--
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("revert coupon %s: %w", model.NormalizeCode(code), err)
	}

	logger.Info("coupon usage reverted", map[string]interface{}{
		"code":        coupon.Code,
		"usage_count": coupon.UsageCount,
	})
	return nil
}

// Reapply restores one unit of usage taken back by Revert when the order
// change that triggered the revert could not be recorded. The cap still
// holds: if another order took the freed slot, Reapply fails with
// ErrCouponExhausted.
func (s *couponService) Reapply(ctx context.Context, code string) error {
	_, err := s.repo.Mutate(ctx, code, func(c *model.Coupon) error {
		if c.Exhausted() {
			return fmt.Errorf("%w: %s", model.ErrCouponExhausted, c.Code)
		}
		c.UsageCount++
		return nil
	})
	if err != nil {
		return fmt.Errorf("reapply coupon %s: %w", model.NormalizeCode(code), err)
	}
	return nil
}

func (s *couponService) CreateCoupon(ctx context.Context, req model.CreateCouponRequest) (*model.Coupon, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	coupon := req.ToCoupon()
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *couponService) GetCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	return s.repo.GetByCode(ctx, code)
}

// check applies the validity rules in their fixed precedence.
func (s *couponService) check(c *model.Coupon, orderAmount decimal.Decimal) error {
	if !c.InWindow(s.now()) {
		return fmt.Errorf("%w: %s", model.ErrCouponExpired, c.Code)
	}
	if c.Exhausted() {
		return fmt.Errorf("%w: %s", model.ErrCouponExhausted, c.Code)
	}
	if orderAmount.LessThan(c.MinOrderAmount) {
		return model.NewMinimumNotMetError(c.MinOrderAmount, orderAmount)
	}
	return nil
}
