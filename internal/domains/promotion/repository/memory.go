package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/promotion/model"
)

type couponCell struct {
	mu     sync.Mutex
	coupon model.Coupon
}

// MemoryCouponRepository keeps coupons in process with one lock per code.
type MemoryCouponRepository struct {
	mu    sync.RWMutex
	cells map[string]*couponCell
}

func NewMemoryCouponRepository() *MemoryCouponRepository {
	return &MemoryCouponRepository{cells: make(map[string]*couponCell)}
}

func (r *MemoryCouponRepository) Create(_ context.Context, coupon *model.Coupon) error {
	code := model.NormalizeCode(coupon.Code)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cells[code]; exists {
		return fmt.Errorf("%w: %s", model.ErrCouponDuplicateCode, code)
	}

	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	now := time.Now()
	coupon.Code = code
	coupon.Version = 1
	coupon.CreatedAt = now
	coupon.UpdatedAt = now

	r.cells[code] = &couponCell{coupon: *coupon}
	return nil
}

func (r *MemoryCouponRepository) cell(code string) (*couponCell, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cells[model.NormalizeCode(code)]
	if !ok {
		return nil, model.ErrCouponNotFound
	}
	return c, nil
}

func (r *MemoryCouponRepository) GetByCode(_ context.Context, code string) (*model.Coupon, error) {
	c, err := r.cell(code)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cp := c.coupon
	return &cp, nil
}

func (r *MemoryCouponRepository) Mutate(_ context.Context, code string, fn func(*model.Coupon) error) (*model.Coupon, error) {
	c, err := r.cell(code)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	working := c.coupon
	if err := fn(&working); err != nil {
		return nil, err
	}

	working.Version++
	working.UpdatedAt = time.Now()
	c.coupon = working

	cp := working
	return &cp, nil
}
