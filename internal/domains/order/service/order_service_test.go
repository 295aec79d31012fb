package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	inventoryModel "storefront-backend/internal/domains/inventory/model"
	inventoryRepo "storefront-backend/internal/domains/inventory/repository"
	inventoryService "storefront-backend/internal/domains/inventory/service"
	"storefront-backend/internal/domains/order/model"
	"storefront-backend/internal/domains/order/repository"
	promotionModel "storefront-backend/internal/domains/promotion/model"
	promotionRepo "storefront-backend/internal/domains/promotion/repository"
	promotionService "storefront-backend/internal/domains/promotion/service"
	"storefront-backend/pkg/cache"
	"storefront-backend/pkg/database"
)

var shippingFee = decimal.NewFromInt(30000)

type recordingEnqueuer struct {
	mu         sync.Mutex
	reconciles []uuid.UUID
	snapshots  [][]uuid.UUID
}

func (r *recordingEnqueuer) EnqueueReconcileReversal(_ context.Context, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciles = append(r.reconciles, orderID)
	return nil
}

func (r *recordingEnqueuer) EnqueueStockSnapshot(_ context.Context, ids []uuid.UUID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, ids)
	return nil
}

func (r *recordingEnqueuer) reconciled() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.reconciles...)
}

// flakyLedger fails Release for selected variants.
type flakyLedger struct {
	StockLedger
	mu          sync.Mutex
	failRelease map[uuid.UUID]error
}

func (l *flakyLedger) Release(ctx context.Context, id uuid.UUID, qty int) error {
	l.mu.Lock()
	err := l.failRelease[id]
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.StockLedger.Release(ctx, id, qty)
}

func (l *flakyLedger) setFailure(id uuid.UUID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRelease[id] = err
}

// conflictingRepo fails one Update with a version mismatch after letting
// passUpdates calls through. interleave runs inside the failing call, the way
// a competing writer would slip in.
type conflictingRepo struct {
	repository.OrderRepository
	failUpdate  bool
	passUpdates int
	interleave  func()
}

func (r *conflictingRepo) Update(ctx context.Context, o *model.Order, historyLen int) error {
	if r.failUpdate && r.passUpdates > 0 {
		r.passUpdates--
	} else if r.failUpdate {
		r.failUpdate = false
		if r.interleave != nil {
			r.interleave()
		}
		return model.ErrVersionMismatch
	}
	return r.OrderRepository.Update(ctx, o, historyLen)
}

type OrderServiceSuite struct {
	suite.Suite

	ctx      context.Context
	clock    time.Time
	variants *inventoryRepo.MemoryRepository
	coupons  *promotionRepo.MemoryCouponRepository
	orders   *repository.MemoryOrderRepository
	cache    *cache.MemoryCache
	tasks    *recordingEnqueuer
	ledger   *flakyLedger
	repo     *conflictingRepo
	svc      *orderService

	buyer    uuid.UUID
	admin    model.Actor
	variantX uuid.UUID
	variantY uuid.UUID
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return s.clock }

	s.buyer = uuid.New()
	s.admin = model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
	s.variantX = uuid.New()
	s.variantY = uuid.New()

	s.variants = inventoryRepo.NewMemoryRepository()
	s.variants.Seed(
		&inventoryModel.Variant{
			ID: s.variantX, ProductID: uuid.New(), ProductName: "Linen Shirt",
			BasePrice: decimal.NewFromInt(100000), AdditionalPrice: decimal.Zero,
			Size: "M", Color: "white", Stock: 5,
		},
		&inventoryModel.Variant{
			ID: s.variantY, ProductID: uuid.New(), ProductName: "Chino Pants",
			BasePrice: decimal.NewFromInt(50000), AdditionalPrice: decimal.NewFromInt(20000),
			Size: "L", Color: "khaki", Stock: 10,
		},
	)

	s.coupons = promotionRepo.NewMemoryCouponRepository()
	s.Require().NoError(s.coupons.Create(s.ctx, &promotionModel.Coupon{
		Code:           "SAVE10",
		Type:           promotionModel.DiscountTypePercentage,
		Value:          decimal.NewFromInt(10),
		MinOrderAmount: decimal.NewFromInt(100000),
		MaxUsage:       1,
		StartDate:      s.clock.Add(-24 * time.Hour),
		EndDate:        s.clock.Add(24 * time.Hour),
		IsActive:       true,
	}))

	s.orders = repository.NewMemoryOrderRepository()
	s.repo = &conflictingRepo{OrderRepository: s.orders}
	s.cache = cache.NewMemoryCache()
	s.tasks = &recordingEnqueuer{}
	s.ledger = &flakyLedger{
		StockLedger: inventoryService.NewLedgerService(s.variants, nil, 0),
		failRelease: make(map[uuid.UUID]error),
	}

	svc := NewOrderService(
		s.repo,
		s.ledger,
		promotionService.NewCouponService(s.coupons, now),
		database.NoopTransactor{},
		s.cache,
		s.tasks,
		Config{ShippingFee: shippingFee, PendingTTL: 30 * time.Minute, IdempotencyTTL: time.Hour},
	)
	s.svc = svc.(*orderService)
	s.svc.now = now
}

// ---------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------

func (s *OrderServiceSuite) buyerActor() model.Actor {
	return model.Actor{UserID: s.buyer, Role: model.RoleUser}
}

func (s *OrderServiceSuite) request(coupon string, lines ...model.CreateOrderItem) model.CreateOrderRequest {
	req := model.CreateOrderRequest{
		Items: lines,
		Shipping: model.ShippingDetails{
			RecipientName: "Tran Thi B",
			Phone:         "0912345678",
			Address:       "45 Nguyen Hue, Ho Chi Minh City",
		},
		PaymentMethod: model.PaymentMethodVNPay,
	}
	if coupon != "" {
		req.CouponCode = &coupon
	}
	return req
}

func line(id uuid.UUID, qty int) model.CreateOrderItem {
	return model.CreateOrderItem{VariantID: id, Quantity: qty}
}

func (s *OrderServiceSuite) stock(id uuid.UUID) int {
	v, err := s.variants.GetVariant(s.ctx, id)
	s.Require().NoError(err)
	return v.Stock
}

func (s *OrderServiceSuite) couponUsage() int {
	c, err := s.coupons.GetByCode(s.ctx, "SAVE10")
	s.Require().NoError(err)
	return c.UsageCount
}

func (s *OrderServiceSuite) historyStatuses(o *model.Order) []model.OrderStatus {
	var out []model.OrderStatus
	for _, e := range o.History.Entries() {
		out = append(out, e.Status)
	}
	return out
}

func (s *OrderServiceSuite) advance(orderID uuid.UUID, path ...model.OrderStatus) *model.Order {
	var o *model.Order
	for _, next := range path {
		s.clock = s.clock.Add(time.Minute)
		var err error
		o, err = s.svc.TransitionOrder(s.ctx, orderID, s.admin, model.TransitionRequest{Status: next})
		s.Require().NoError(err)
	}
	return o
}

func (s *OrderServiceSuite) countOrders() int {
	n, err := s.orders.Count(s.ctx, model.OrderFilter{})
	s.Require().NoError(err)
	return n
}

// ---------------------------------------------------------------------
// order creation
// ---------------------------------------------------------------------

func (s *OrderServiceSuite) TestCreateOrder_SnapshotsAndTotals() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantY, 2), line(s.variantX, 1)))
	s.Require().NoError(err)

	s.Equal(model.OrderStatusPending, o.Status)
	s.Equal(model.PaymentStatusPending, o.PaymentStatus)
	s.Regexp(`^SP250601[0-9]{6}$`, o.OrderNumber)
	s.Require().Len(o.Items, 2)
	s.Equal(s.variantY, o.Items[0].VariantID)
	s.True(decimal.NewFromInt(70000).Equal(o.Items[0].UnitPrice))
	s.Equal("Chino Pants", o.Items[0].ProductName)
	s.True(decimal.NewFromInt(240000).Equal(o.Subtotal))
	s.True(o.Discount.IsZero())
	s.True(decimal.NewFromInt(270000).Equal(o.Total))
	s.Equal([]model.OrderStatus{model.OrderStatusPending}, s.historyStatuses(o))

	s.Equal(4, s.stock(s.variantX))
	s.Equal(8, s.stock(s.variantY))
	s.Len(s.tasks.snapshots, 1)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.OrderNumber, stored.OrderNumber)
}

func (s *OrderServiceSuite) TestCreateOrder_SecondBuyerHitsEmptyStock() {
	_, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 5)))
	s.Require().NoError(err)
	s.Equal(0, s.stock(s.variantX))

	v, err := s.variants.GetVariant(s.ctx, s.variantX)
	s.Require().NoError(err)
	s.Equal(inventoryModel.VariantStatusOutOfStock, v.Status)

	_, err = s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 1)))

	var stockErr *inventoryModel.InsufficientStockError
	s.Require().ErrorAs(err, &stockErr)
	s.ErrorIs(err, inventoryModel.ErrInsufficientStock)
	s.Equal(0, stockErr.Available)
	s.Equal(1, stockErr.Requested)
	s.Equal(1, s.countOrders())
}

func (s *OrderServiceSuite) TestCreateOrder_SingleUseCouponRejectsSecondOrder() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("save10", line(s.variantX, 2)))
	s.Require().NoError(err)

	s.True(decimal.NewFromInt(200000).Equal(o.Subtotal))
	s.True(decimal.NewFromInt(20000).Equal(o.Discount))
	s.True(decimal.NewFromInt(210000).Equal(o.Total))
	s.Require().NotNil(o.CouponCode)
	s.Equal("SAVE10", *o.CouponCode)
	s.Equal(1, s.couponUsage())

	_, err = s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantY, 2)))
	s.ErrorIs(err, promotionModel.ErrCouponExhausted)
	s.Equal(10, s.stock(s.variantY))
	s.Equal(1, s.couponUsage())
	s.Equal(1, s.countOrders())
}

func (s *OrderServiceSuite) TestCreateOrder_CouponRejectionReleasesStock() {
	_, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantY, 1)))

	var minErr *promotionModel.MinimumNotMetError
	s.Require().ErrorAs(err, &minErr)
	s.True(decimal.NewFromInt(70000).Equal(minErr.Actual))
	s.Equal(10, s.stock(s.variantY))

	_, err = s.svc.CreateOrder(s.ctx, s.buyer, s.request("NOPE", line(s.variantX, 1), line(s.variantY, 1)))
	s.ErrorIs(err, promotionModel.ErrCouponNotFound)
	s.Equal(5, s.stock(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(0, s.countOrders())
}

func (s *OrderServiceSuite) TestCreateOrder_PartialReservationRollsBack() {
	_, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 2), line(s.variantY, 11)))
	s.ErrorIs(err, inventoryModel.ErrInsufficientStock)

	_, err = s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantY, 3), line(s.variantX, 6)))
	s.ErrorIs(err, inventoryModel.ErrInsufficientStock)

	s.Equal(5, s.stock(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(0, s.countOrders())
}

func (s *OrderServiceSuite) TestCreateOrder_PersistenceFailureRollsBackEverything() {
	s.orders.FailNextCreate(errors.New("connection reset"))

	_, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2), line(s.variantY, 1)))
	s.Require().Error(err)

	s.Equal(5, s.stock(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(0, s.couponUsage())
	s.Equal(0, s.countOrders())

	// the coupon is still usable afterwards
	_, err = s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2)))
	s.NoError(err)
}

func (s *OrderServiceSuite) TestCreateOrder_UnknownVariant() {
	_, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 1), line(uuid.New(), 1)))
	s.ErrorIs(err, inventoryModel.ErrVariantNotFound)
	s.Equal(5, s.stock(s.variantX))
}

func (s *OrderServiceSuite) TestCreateOrder_InvalidRequest() {
	_, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 0)))

	var oe *model.OrderError
	s.Require().ErrorAs(err, &oe)
	s.Equal(model.ErrCodeInvalidOrder, oe.Code)
}

func (s *OrderServiceSuite) TestCreateOrder_ConcurrentBuyersNeverOversell() {
	variant := uuid.New()
	s.variants.Seed(&inventoryModel.Variant{
		ID: variant, ProductID: uuid.New(), ProductName: "Cap",
		BasePrice: decimal.NewFromInt(10000), Stock: 17,
	})

	const callers, qty = 40, 3
	var (
		mu         sync.Mutex
		ok, failed int
	)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := s.svc.CreateOrder(s.ctx, uuid.New(), s.request("", line(variant, qty)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, inventoryModel.ErrInsufficientStock):
				failed++
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(17/qty, ok)
	s.Equal(callers-17/qty, failed)
	s.Equal(17%qty, s.stock(variant))
	s.Equal(17/qty, s.countOrders())
}

func (s *OrderServiceSuite) TestCreateOrder_IdempotencyKey() {
	req := s.request("", line(s.variantX, 1))
	req.IdempotencyKey = "checkout-42"

	first, err := s.svc.CreateOrder(s.ctx, s.buyer, req)
	s.Require().NoError(err)

	second, err := s.svc.CreateOrder(s.ctx, s.buyer, req)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal(4, s.stock(s.variantX))

	// a different buyer with the same key is independent
	_, err = s.svc.CreateOrder(s.ctx, uuid.New(), req)
	s.Require().NoError(err)
	s.Equal(3, s.stock(s.variantX))

	// a key still in flight is rejected
	inflight := IdempotencyCacheKey(s.buyer, "checkout-43")
	_, err = s.cache.SetNX(s.ctx, inflight, idempotencyRecord{State: idempotencyProcessing}, time.Minute)
	s.Require().NoError(err)
	req.IdempotencyKey = "checkout-43"
	_, err = s.svc.CreateOrder(s.ctx, s.buyer, req)
	s.ErrorIs(err, model.ErrDuplicateRequest)
}

func (s *OrderServiceSuite) TestCreateOrder_FailedRequestFreesIdempotencyKey() {
	req := s.request("", line(s.variantX, 9))
	req.IdempotencyKey = "retry-me"

	_, err := s.svc.CreateOrder(s.ctx, s.buyer, req)
	s.ErrorIs(err, inventoryModel.ErrInsufficientStock)

	req.Items = []model.CreateOrderItem{line(s.variantX, 2)}
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, req)
	s.Require().NoError(err)
	s.Equal(2, o.Items[0].Quantity)
}

// ---------------------------------------------------------------------
// state machine and cancellation
// ---------------------------------------------------------------------

func (s *OrderServiceSuite) TestCancel_PendingOrderReturnsStockAndCoupon() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2), line(s.variantY, 1)))
	s.Require().NoError(err)
	s.Equal(1, s.couponUsage())

	s.clock = s.clock.Add(time.Minute)
	cancelled, err := s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "changed my mind"})
	s.Require().NoError(err)

	s.Equal(model.OrderStatusCancelled, cancelled.Status)
	s.Equal([]model.OrderStatus{model.OrderStatusPending, model.OrderStatusCancelled}, s.historyStatuses(cancelled))
	s.Equal(5, s.stock(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(0, s.couponUsage())
	s.Require().NotNil(cancelled.CancellationReason)
	s.Equal("changed my mind", *cancelled.CancellationReason)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.True(stored.CouponReverted)
	s.False(stored.NeedsReversal())
	// one write claims the status, one records the reversal
	s.Equal(3, stored.Version)
}

func (s *OrderServiceSuite) TestTransition_DeliveredOrderCannotMoveBack() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 1)))
	s.Require().NoError(err)
	s.advance(o.ID, model.OrderStatusProcessing, model.OrderStatusShipped, model.OrderStatusDelivered)

	_, err = s.svc.TransitionOrder(s.ctx, o.ID, s.admin, model.TransitionRequest{Status: model.OrderStatusProcessing})
	var illegal *model.IllegalTransitionError
	s.Require().ErrorAs(err, &illegal)
	s.Equal(model.OrderStatusDelivered, illegal.From)
	s.Equal(model.OrderStatusProcessing, illegal.To)

	_, err = s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "too late"})
	s.ErrorIs(err, model.ErrIllegalTransition)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusDelivered, stored.Status)
	s.Equal(4, stored.History.Len())
	s.Equal(4, s.stock(s.variantX))
}

func (s *OrderServiceSuite) TestCancel_BuyerRules() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 1)))
	s.Require().NoError(err)

	stranger := model.Actor{UserID: uuid.New(), Role: model.RoleUser}
	_, err = s.svc.CancelOrder(s.ctx, o.ID, stranger, model.CancelOrderRequest{Reason: "not mine"})
	s.ErrorIs(err, model.ErrForbidden)

	s.advance(o.ID, model.OrderStatusProcessing)

	_, err = s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "please stop"})
	s.ErrorIs(err, model.ErrOrderCannotCancel)
	s.Equal(4, s.stock(s.variantX))

	s.advance(o.ID, model.OrderStatusShipped)
	cancelled, err := s.svc.CancelOrder(s.ctx, o.ID, s.admin, model.CancelOrderRequest{Reason: "lost in transit"})
	s.Require().NoError(err)
	s.Equal(model.OrderStatusCancelled, cancelled.Status)
	s.Equal(5, s.stock(s.variantX))

	last, _ := cancelled.History.Last()
	s.Require().NotNil(last.ChangedBy)
	s.Equal(s.admin.UserID, *last.ChangedBy)
}

func (s *OrderServiceSuite) TestReverse_IsIdempotent() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2)))
	s.Require().NoError(err)
	_, err = s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "duplicate order"})
	s.Require().NoError(err)

	again, err := s.svc.ReconcileReversal(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(3, again.Version)

	_, err = s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "duplicate order"})
	s.ErrorIs(err, model.ErrIllegalTransition)

	s.Equal(5, s.stock(s.variantX))
	s.Equal(0, s.couponUsage())
}

func (s *OrderServiceSuite) TestReverse_PartialFailureStillCommits() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2), line(s.variantY, 3)))
	s.Require().NoError(err)

	s.ledger.setFailure(s.variantX, errors.New("ledger unavailable"))
	cancelled, err := s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "wrong size"})

	s.Require().Error(err)
	s.True(model.IsReversalPartialFailure(err))
	var partial *model.ReversalPartialFailureError
	s.Require().ErrorAs(err, &partial)
	s.Require().Len(partial.Failures, 1)
	s.Equal(s.variantX, *partial.Failures[0].VariantID)

	s.Require().NotNil(cancelled)
	s.Equal(model.OrderStatusCancelled, cancelled.Status)
	s.Equal(3, s.stock(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(0, s.couponUsage())
	s.Equal([]uuid.UUID{o.ID}, s.tasks.reconciled())

	n, err := s.svc.SweepUnreconciled(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, n)

	// reconciliation finishes the job once the ledger recovers
	s.ledger.setFailure(s.variantX, nil)
	reconciled, err := s.svc.ReconcileReversal(s.ctx, o.ID)
	s.Require().NoError(err)
	s.False(reconciled.NeedsReversal())
	s.Equal(5, s.stock(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(0, s.couponUsage())

	n, err = s.svc.SweepUnreconciled(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *OrderServiceSuite) TestCancel_LostCommitReleasesNothing() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2)))
	s.Require().NoError(err)

	s.repo.failUpdate = true
	_, err = s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "race"})
	s.ErrorIs(err, model.ErrVersionMismatch)

	var oe *model.OrderError
	s.Require().ErrorAs(err, &oe)
	s.Equal(model.ErrCodeVersionMismatch, oe.Code)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusPending, stored.Status)
	s.Equal(1, stored.History.Len())
	s.Equal(3, s.stock(s.variantX))
	s.Equal(1, s.couponUsage())
}

// heldUnits sums the quantity of a variant that orders still hold, i.e.
// items whose stock has not been released.
func (s *OrderServiceSuite) heldUnits(variantID uuid.UUID) int {
	summaries, err := s.orders.List(s.ctx, model.OrderFilter{Limit: 1000})
	s.Require().NoError(err)

	held := 0
	for _, sum := range summaries {
		o, err := s.orders.GetByID(s.ctx, sum.ID)
		s.Require().NoError(err)
		for _, item := range o.Items {
			if item.VariantID == variantID && !item.Released {
				held += item.Quantity
			}
		}
	}
	return held
}

func (s *OrderServiceSuite) TestCancel_RivalOrderDuringLostCommitCannotOversell() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2)))
	s.Require().NoError(err)

	var stockErr, couponErr error
	s.repo.failUpdate = true
	s.repo.interleave = func() {
		_, stockErr = s.svc.CreateOrder(s.ctx, uuid.New(), s.request("SAVE10", line(s.variantX, 5)))
		_, couponErr = s.svc.CreateOrder(s.ctx, uuid.New(), s.request("SAVE10", line(s.variantY, 2)))
	}

	_, err = s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "race"})
	s.ErrorIs(err, model.ErrVersionMismatch)
	s.ErrorIs(stockErr, inventoryModel.ErrInsufficientStock)
	s.ErrorIs(couponErr, promotionModel.ErrCouponExhausted)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusPending, stored.Status)
	s.Equal(5, s.stock(s.variantX)+s.heldUnits(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(1, s.couponUsage())
	s.Equal(1, s.countOrders())

	// the retried cancel goes through and frees everything exactly once
	_, err = s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "race"})
	s.Require().NoError(err)
	s.Equal(5, s.stock(s.variantX))
	s.Equal(0, s.heldUnits(s.variantX))
	s.Equal(0, s.couponUsage())
}

func (s *OrderServiceSuite) TestCancel_UnrecordedReversalIsUndoneAndReconciled() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2)))
	s.Require().NoError(err)

	// the status claim lands, the write recording the released units does not
	s.repo.failUpdate = true
	s.repo.passUpdates = 1
	cancelled, err := s.svc.CancelOrder(s.ctx, o.ID, s.buyerActor(), model.CancelOrderRequest{Reason: "wrong colour"})

	var partial *model.ReversalPartialFailureError
	s.Require().ErrorAs(err, &partial)
	s.Len(partial.Failures, 2)
	for _, f := range partial.Failures {
		s.ErrorIs(f.Err, model.ErrVersionMismatch)
	}
	s.Require().NotNil(cancelled)
	s.Equal(model.OrderStatusCancelled, cancelled.Status)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusCancelled, stored.Status)
	s.True(stored.NeedsReversal())
	s.Equal(3, s.stock(s.variantX))
	s.Equal(1, s.couponUsage())
	s.Equal(5, s.stock(s.variantX)+s.heldUnits(s.variantX))
	s.Equal([]uuid.UUID{o.ID}, s.tasks.reconciled())

	reconciled, err := s.svc.ReconcileReversal(s.ctx, o.ID)
	s.Require().NoError(err)
	s.False(reconciled.NeedsReversal())
	s.Equal(5, s.stock(s.variantX))
	s.Equal(0, s.couponUsage())
}

func (s *OrderServiceSuite) TestCancel_ConcurrentCancelAndReconcileReleaseOnce() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("SAVE10", line(s.variantX, 2), line(s.variantY, 4)))
	s.Require().NoError(err)

	var (
		mu        sync.Mutex
		cancelled int
	)
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		reconcile := i%2 == 1
		g.Go(func() error {
			if reconcile {
				_, err := s.svc.ReconcileReversal(s.ctx, o.ID)
				if err != nil && !errors.Is(err, model.ErrNotReversible) {
					return err
				}
				return nil
			}
			_, err := s.svc.CancelOrder(s.ctx, o.ID, s.admin, model.CancelOrderRequest{Reason: "duplicate"})
			switch {
			case err == nil:
				mu.Lock()
				cancelled++
				mu.Unlock()
			case !isSkippable(err):
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(1, cancelled)
	s.Equal(5, s.stock(s.variantX))
	s.Equal(10, s.stock(s.variantY))
	s.Equal(0, s.couponUsage())

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.History.Len())
	s.False(stored.NeedsReversal())
}

func (s *OrderServiceSuite) TestTransition_CancelRacesDelivery() {
	for i := 0; i < 20; i++ {
		o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantY, 1)))
		s.Require().NoError(err)
		s.advance(o.ID, model.OrderStatusProcessing, model.OrderStatusShipped)
		before := s.stock(s.variantY)

		var g errgroup.Group
		g.Go(func() error {
			_, err := s.svc.CancelOrder(s.ctx, o.ID, s.admin, model.CancelOrderRequest{Reason: "customer request"})
			if err != nil && !isSkippable(err) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			_, err := s.svc.TransitionOrder(s.ctx, o.ID, s.admin, model.TransitionRequest{Status: model.OrderStatusDelivered})
			if err != nil && !isSkippable(err) {
				return err
			}
			return nil
		})
		s.Require().NoError(g.Wait())

		stored, err := s.orders.GetByID(s.ctx, o.ID)
		s.Require().NoError(err)
		last, _ := stored.History.Last()
		s.Equal(stored.Status, last.Status)
		s.Equal(4, stored.History.Len())

		switch stored.Status {
		case model.OrderStatusCancelled:
			s.Equal(before+1, s.stock(s.variantY))
		case model.OrderStatusDelivered:
			s.Equal(before, s.stock(s.variantY))
		default:
			s.Failf("unexpected status", "%s", stored.Status)
		}

		if stored.Status == model.OrderStatusDelivered {
			// keep stock from running out across iterations
			s.advance(o.ID, model.OrderStatusRefunded)
		}
	}
}

func (s *OrderServiceSuite) TestTransition_IllegalMoveLeavesOrderUntouched() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 1)))
	s.Require().NoError(err)

	for _, to := range []model.OrderStatus{model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusRefunded, model.OrderStatusPending} {
		_, err := s.svc.TransitionOrder(s.ctx, o.ID, s.admin, model.TransitionRequest{Status: to})
		s.ErrorIs(err, model.ErrIllegalTransition, "pending -> %s", to)
	}

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusPending, stored.Status)
	s.Equal(1, stored.History.Len())
	s.Equal(1, stored.Version)
}

func (s *OrderServiceSuite) TestRefund_ReleasesStockAndPayment() {
	req := s.request("", line(s.variantY, 2))
	req.PaymentMethod = model.PaymentMethodCOD
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, req)
	s.Require().NoError(err)

	delivered := s.advance(o.ID, model.OrderStatusProcessing, model.OrderStatusShipped, model.OrderStatusDelivered)
	s.Equal(model.PaymentStatusPaid, delivered.PaymentStatus)
	s.Equal(8, s.stock(s.variantY))

	refunded := s.advance(o.ID, model.OrderStatusRefunded)
	s.Equal(model.OrderStatusRefunded, refunded.Status)
	s.Equal(model.PaymentStatusRefunded, refunded.PaymentStatus)
	s.Equal(10, s.stock(s.variantY))
	s.Equal(5, refunded.History.Len())
}

func (s *OrderServiceSuite) TestUpdatePaymentStatus() {
	o, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 1)))
	s.Require().NoError(err)

	paid, err := s.svc.UpdatePaymentStatus(s.ctx, o.ID, model.PaymentStatusRequest{PaymentStatus: model.PaymentStatusPaid})
	s.Require().NoError(err)
	s.Equal(model.PaymentStatusPaid, paid.PaymentStatus)
	s.NotNil(paid.PaidAt)
	s.Equal(1, paid.History.Len())

	_, err = s.svc.UpdatePaymentStatus(s.ctx, o.ID, model.PaymentStatusRequest{PaymentStatus: model.PaymentStatusPending})
	s.ErrorIs(err, model.ErrIllegalPaymentTransition)
}

// ---------------------------------------------------------------------
// reads and maintenance
// ---------------------------------------------------------------------

func (s *OrderServiceSuite) TestGetAndListOrders() {
	other := uuid.New()
	for i := 0; i < 3; i++ {
		s.clock = s.clock.Add(time.Minute)
		_, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantY, 1)))
		s.Require().NoError(err)
	}
	foreign, err := s.svc.CreateOrder(s.ctx, other, s.request("", line(s.variantY, 1)))
	s.Require().NoError(err)

	_, err = s.svc.GetOrder(s.ctx, foreign.ID, s.buyerActor())
	s.ErrorIs(err, model.ErrForbidden)
	got, err := s.svc.GetOrder(s.ctx, foreign.ID, s.admin)
	s.Require().NoError(err)
	s.Equal(other, got.UserID)

	_, err = s.svc.GetOrder(s.ctx, uuid.New(), s.admin)
	s.ErrorIs(err, model.ErrOrderNotFound)

	mine, err := s.svc.ListOrders(s.ctx, &s.buyer, model.ListOrdersRequest{Page: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, mine.Pagination.Total)
	s.Equal(2, mine.Pagination.TotalPages)
	s.Len(mine.Orders, 2)
	s.True(mine.Orders[0].CreatedAt.After(mine.Orders[1].CreatedAt))

	all, err := s.svc.ListOrders(s.ctx, nil, model.ListOrdersRequest{Status: string(model.OrderStatusPending)})
	s.Require().NoError(err)
	s.Equal(4, all.Pagination.Total)
}

func (s *OrderServiceSuite) TestAutoCancelStalePending() {
	online, err := s.svc.CreateOrder(s.ctx, s.buyer, s.request("", line(s.variantX, 2)))
	s.Require().NoError(err)

	codReq := s.request("", line(s.variantY, 1))
	codReq.PaymentMethod = model.PaymentMethodCOD
	cod, err := s.svc.CreateOrder(s.ctx, s.buyer, codReq)
	s.Require().NoError(err)

	s.clock = s.clock.Add(10 * time.Minute)
	n, err := s.svc.AutoCancelStalePending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(0, n)

	s.clock = s.clock.Add(time.Hour)
	n, err = s.svc.AutoCancelStalePending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, n)

	stored, err := s.orders.GetByID(s.ctx, online.ID)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusCancelled, stored.Status)
	last, _ := stored.History.Last()
	s.Nil(last.ChangedBy)
	s.Equal(5, s.stock(s.variantX))

	stored, err = s.orders.GetByID(s.ctx, cod.ID)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusPending, stored.Status)
}
