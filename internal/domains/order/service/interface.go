package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	inventoryModel "storefront-backend/internal/domains/inventory/model"
	"storefront-backend/internal/domains/order/model"
	promotionModel "storefront-backend/internal/domains/promotion/model"
)

// =====================================================
// ORDER SERVICE INTERFACE
// =====================================================
//
//go:generate mockgen -source=./interface.go -destination=./mocks/order_service.mock.go -package=ordermocks OrderService
type OrderService interface {
	// CreateOrder reserves stock, applies the coupon and persists a pending
	// order. On any failure no reservation or coupon usage is left behind.
	CreateOrder(ctx context.Context, userID uuid.UUID, req model.CreateOrderRequest) (*model.Order, error)

	// GetOrder returns the order if the actor may see it.
	GetOrder(ctx context.Context, orderID uuid.UUID, actor model.Actor) (*model.Order, error)

	// ListOrders lists the orders of userID, or of every buyer when nil.
	ListOrders(ctx context.Context, userID *uuid.UUID, req model.ListOrdersRequest) (*model.ListOrdersResponse, error)

	// TransitionOrder moves an order along the lifecycle (admin).
	// Entering cancelled or refunded reverses stock and coupon usage; a
	// partial reversal returns the committed order together with a
	// *model.ReversalPartialFailureError.
	TransitionOrder(ctx context.Context, orderID uuid.UUID, actor model.Actor, req model.TransitionRequest) (*model.Order, error)

	// CancelOrder cancels a pending order for its buyer, or a pending,
	// processing or shipped order for an admin.
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor model.Actor, req model.CancelOrderRequest) (*model.Order, error)

	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, req model.PaymentStatusRequest) (*model.Order, error)

	// ReconcileReversal retries the unfinished parts of a reversal.
	ReconcileReversal(ctx context.Context, orderID uuid.UUID) (*model.Order, error)

	// AutoCancelStalePending cancels unpaid online orders older than the
	// pending TTL and returns how many were cancelled.
	AutoCancelStalePending(ctx context.Context, limit int) (int, error)

	// SweepUnreconciled enqueues a reconcile task for every cancelled or
	// refunded order that still holds stock or coupon usage.
	SweepUnreconciled(ctx context.Context, limit int) (int, error)
}

// =====================================================
// COLLABORATORS
// =====================================================

// StockLedger is the part of the inventory service the order flow uses.
type StockLedger interface {
	GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*inventoryModel.Variant, error)
	Reserve(ctx context.Context, variantID uuid.UUID, quantity int) error
	Release(ctx context.Context, variantID uuid.UUID, quantity int) error
}

// CouponValidator is the part of the promotion service the order flow uses.
type CouponValidator interface {
	Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*promotionModel.Quote, error)
	Consume(ctx context.Context, code string, orderAmount decimal.Decimal) (*promotionModel.Quote, error)
	Revert(ctx context.Context, code string) error
	Reapply(ctx context.Context, code string) error
}

// TaskEnqueuer schedules background follow-ups after a commit.
type TaskEnqueuer interface {
	EnqueueReconcileReversal(ctx context.Context, orderID uuid.UUID) error
	EnqueueStockSnapshot(ctx context.Context, variantIDs []uuid.UUID, source string) error
}
