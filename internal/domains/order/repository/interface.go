package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/order/model"
)

// =====================================================
// ORDER REPOSITORY INTERFACE
// =====================================================
type OrderRepository interface {
	// Create persists the order, its items and its history in one step.
	Create(ctx context.Context, order *model.Order) error

	// GetByID loads the order with items and full history.
	GetByID(ctx context.Context, orderID uuid.UUID) (*model.Order, error)

	List(ctx context.Context, filter model.OrderFilter) ([]model.OrderSummary, error)
	Count(ctx context.Context, filter model.OrderFilter) (int, error)

	// Update writes the mutable fields of the order if its stored version
	// still equals order.Version, appends history entries past
	// historyLen, and bumps order.Version. A stale version returns
	// model.ErrVersionMismatch.
	Update(ctx context.Context, order *model.Order, historyLen int) error

	// WithOrderLock runs fn while holding an exclusive lock on the order.
	// Every read-modify-write of an existing order goes through it, so the
	// version cannot move between fn's read and its Update calls.
	WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error

	// ListStalePending returns pending, unpaid online-payment orders
	// created before the cutoff.
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)

	// ListNeedingReversal returns cancelled or refunded orders that still
	// hold stock or coupon usage.
	ListNeedingReversal(ctx context.Context, limit int) ([]uuid.UUID, error)
}
