package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/order/model"
)

type orderCell struct {
	mu    sync.Mutex
	order *model.Order

	// gate serialises WithOrderLock callers; mu only guards single reads and writes.
	gate chan struct{}
}

// MemoryOrderRepository keeps orders in process. Updates lock one order at
// a time and check its version like the Postgres UPDATE does.
type MemoryOrderRepository struct {
	mu       sync.RWMutex
	cells    map[uuid.UUID]*orderCell
	numbers  map[string]struct{}
	failNext error
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		cells:   make(map[uuid.UUID]*orderCell),
		numbers: make(map[string]struct{}),
	}
}

// FailNextCreate makes the next Create return err. Used to exercise
// compensation paths.
func (r *MemoryOrderRepository) FailNextCreate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	if _, taken := r.numbers[order.OrderNumber]; taken {
		return fmt.Errorf("%w: %s", model.ErrOrderNumberTaken, order.OrderNumber)
	}

	r.numbers[order.OrderNumber] = struct{}{}
	r.cells[order.ID] = &orderCell{order: order.Clone(), gate: make(chan struct{}, 1)}
	return nil
}

func (r *MemoryOrderRepository) cell(id uuid.UUID) (*orderCell, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cells[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	return c, nil
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, orderID uuid.UUID) (*model.Order, error) {
	c, err := r.cell(orderID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Clone(), nil
}

// WithOrderLock holds the order's gate while fn runs. Waiting gives up when
// ctx is done.
func (r *MemoryOrderRepository) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	c, err := r.cell(orderID)
	if err != nil {
		return err
	}

	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.gate }()

	return fn(ctx)
}

func (r *MemoryOrderRepository) Update(_ context.Context, order *model.Order, _ int) error {
	c, err := r.cell(order.ID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.order.Version != order.Version {
		return model.ErrVersionMismatch
	}

	order.Version++
	c.order = order.Clone()
	return nil
}

// snapshot returns clones of every order matching keep, newest first.
func (r *MemoryOrderRepository) snapshot(keep func(*model.Order) bool) []*model.Order {
	r.mu.RLock()
	cells := make([]*orderCell, 0, len(r.cells))
	for _, c := range r.cells {
		cells = append(cells, c)
	}
	r.mu.RUnlock()

	var out []*model.Order
	for _, c := range cells {
		c.mu.Lock()
		o := c.order.Clone()
		c.mu.Unlock()
		if keep(o) {
			out = append(out, o)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber > out[j].OrderNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func matches(filter model.OrderFilter) func(*model.Order) bool {
	return func(o *model.Order) bool {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			return false
		}
		if filter.Status != nil && o.Status != *filter.Status {
			return false
		}
		return true
	}
}

func (r *MemoryOrderRepository) List(_ context.Context, filter model.OrderFilter) ([]model.OrderSummary, error) {
	orders := r.snapshot(matches(filter))

	summaries := make([]model.OrderSummary, 0, filter.Limit)
	for i := filter.Offset; i < len(orders) && len(summaries) < filter.Limit; i++ {
		summaries = append(summaries, orders[i].Summary())
	}
	return summaries, nil
}

func (r *MemoryOrderRepository) Count(_ context.Context, filter model.OrderFilter) (int, error) {
	return len(r.snapshot(matches(filter))), nil
}

func (r *MemoryOrderRepository) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	orders := r.snapshot(func(o *model.Order) bool {
		return o.Status == model.OrderStatusPending &&
			!o.IsPaid() &&
			!o.IsCOD() &&
			o.CreatedAt.Before(createdBefore)
	})
	return oldestIDs(orders, limit), nil
}

func (r *MemoryOrderRepository) ListNeedingReversal(_ context.Context, limit int) ([]uuid.UUID, error) {
	orders := r.snapshot(func(o *model.Order) bool { return o.NeedsReversal() })
	return oldestIDs(orders, limit), nil
}

func oldestIDs(newestFirst []*model.Order, limit int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0 && len(ids) < limit; i-- {
		ids = append(ids, newestFirst[i].ID)
	}
	return ids
}
