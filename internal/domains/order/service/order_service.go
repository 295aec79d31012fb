package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"storefront-backend/internal/domains/order/model"
	"storefront-backend/internal/domains/order/repository"
	"storefront-backend/pkg/cache"
	"storefront-backend/pkg/database"
	"storefront-backend/pkg/logger"
)

// Config holds the order pricing and timing knobs.
type Config struct {
	ShippingFee    decimal.Decimal
	PendingTTL     time.Duration
	IdempotencyTTL time.Duration
}

// =====================================================
// ORDER SERVICE IMPLEMENTATION
// =====================================================
type orderService struct {
	repo    repository.OrderRepository
	ledger  StockLedger
	coupons CouponValidator
	tx      database.Transactor
	cache   cache.Cache
	tasks   TaskEnqueuer
	cfg     Config
	now     func() time.Time
}

// NewOrderService creates a new order service. cache and tasks may be nil;
// idempotency keys and background follow-ups are then skipped.
func NewOrderService(
	repo repository.OrderRepository,
	ledger StockLedger,
	coupons CouponValidator,
	tx database.Transactor,
	c cache.Cache,
	tasks TaskEnqueuer,
	cfg Config,
) OrderService {
	if tx == nil {
		tx = database.NoopTransactor{}
	}
	return &orderService{
		repo:    repo,
		ledger:  ledger,
		coupons: coupons,
		tx:      tx,
		cache:   c,
		tasks:   tasks,
		cfg:     cfg,
		now:     time.Now,
	}
}

// =====================================================
// READS
// =====================================================

func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID, actor model.Actor) (*model.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(actor) {
		return nil, model.ErrForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID *uuid.UUID, req model.ListOrdersRequest) (*model.ListOrdersResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewOrderError(model.ErrCodeInvalidOrder, "Invalid list request", err)
	}
	filter := req.Filter(userID)

	var (
		orders []model.OrderSummary
		total  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.repo.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return &model.ListOrdersResponse{
		Orders:     orders,
		Pagination: model.NewPaginationMeta(req.Page, req.Limit, total),
	}, nil
}

// =====================================================
// PAYMENT STATUS (ADMIN)
// =====================================================

func (s *orderService) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, req model.PaymentStatusRequest) (*model.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewOrderError(model.ErrCodeInvalidOrder, "Invalid payment status request", err)
	}

	var result *model.Order
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.repo.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
			order, err := s.repo.GetByID(ctx, orderID)
			if err != nil {
				return err
			}

			from := order.PaymentStatus
			if err := order.ApplyPaymentStatus(req.PaymentStatus, s.now()); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, order, order.History.Len()); err != nil {
				return err
			}

			logger.Info("Order payment status updated", map[string]interface{}{
				"order_id": order.ID,
				"from":     from,
				"to":       order.PaymentStatus,
			})
			result = order
			return nil
		})
	})
	if err != nil {
		return nil, conflictError(err)
	}
	return result, nil
}

// conflictError tags optimistic lock failures with their API code.
func conflictError(err error) error {
	var oe *model.OrderError
	if errors.Is(err, model.ErrVersionMismatch) && !errors.As(err, &oe) {
		return model.NewOrderError(model.ErrCodeVersionMismatch, "Order was modified concurrently, please retry", err)
	}
	return err
}

// =====================================================
// BACKGROUND FOLLOW-UPS
// =====================================================

func (s *orderService) enqueueStockSnapshot(ctx context.Context, order *model.Order, source string) {
	if s.tasks == nil || len(order.Items) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.VariantID)
	}
	if err := s.tasks.EnqueueStockSnapshot(ctx, ids, source); err != nil {
		logger.Error("Failed to enqueue stock snapshot sync", err)
	}
}

func (s *orderService) enqueueReconcile(ctx context.Context, orderID uuid.UUID) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.EnqueueReconcileReversal(ctx, orderID); err != nil {
		logger.ErrorWithFields("Failed to enqueue reversal reconciliation", err, map[string]interface{}{
			"order_id": orderID,
		})
	}
}
