package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	inventoryModel "storefront-backend/internal/domains/inventory/model"
	"storefront-backend/internal/domains/order/model"
	"storefront-backend/pkg/logger"
)

const orderNumberAttempts = 3

// =====================================================
// CREATE ORDER
// =====================================================

func (s *orderService) CreateOrder(ctx context.Context, userID uuid.UUID, req model.CreateOrderRequest) (*model.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewOrderError(model.ErrCodeInvalidOrder, "Invalid order request", err)
	}

	claim, existing, err := s.claimIdempotencyKey(ctx, userID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var order *model.Order
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := s.buildOrder(ctx, userID, req)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		claim.release(ctx)
		return nil, err
	}

	claim.complete(ctx, order.ID)
	s.enqueueStockSnapshot(ctx, order, "order_created")

	logger.Info("Order created", map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      userID,
		"total":        order.Total.String(),
	})
	return order, nil
}

// buildOrder runs the forward steps and undoes the completed ones if a later
// step fails.
func (s *orderService) buildOrder(ctx context.Context, userID uuid.UUID, req model.CreateOrderRequest) (*model.Order, error) {
	sg := newSaga()

	order, err := s.assemble(ctx, sg, userID, req)
	if err != nil {
		if cerrs := sg.Compensate(ctx); len(cerrs) > 0 {
			for _, cerr := range cerrs {
				logger.ErrorWithFields("Order creation rollback step failed", cerr, map[string]interface{}{
					"user_id": userID,
				})
			}
		}
		return nil, err
	}
	return order, nil
}

func (s *orderService) assemble(ctx context.Context, sg *saga, userID uuid.UUID, req model.CreateOrderRequest) (*model.Order, error) {
	now := s.now()
	order := &model.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        model.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: model.PaymentStatusPending,
		Shipping:      req.Shipping,
		Discount:      decimal.Zero,
		ShippingFee:   s.cfg.ShippingFee,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// 1. Snapshot prices
	items, err := s.snapshotItems(ctx, order.ID, req.Items)
	if err != nil {
		return nil, err
	}
	order.Items = items

	// 2. Reserve stock in ascending variant id order
	for _, idx := range reservationOrder(items) {
		variantID, qty := items[idx].VariantID, items[idx].Quantity
		err := sg.Do(ctx,
			func(ctx context.Context) error { return s.ledger.Reserve(ctx, variantID, qty) },
			func(ctx context.Context) error { return s.ledger.Release(ctx, variantID, qty) },
		)
		if err != nil {
			return nil, fmt.Errorf("reserve variant %s: %w", variantID, err)
		}
	}

	// 3. Subtotal
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	order.Subtotal = subtotal

	// 4. Coupon
	if req.CouponCode != nil {
		if _, err := s.coupons.Validate(ctx, *req.CouponCode, subtotal); err != nil {
			return nil, err
		}

		code := *req.CouponCode
		err := sg.Do(ctx,
			func(ctx context.Context) error {
				quote, err := s.coupons.Consume(ctx, code, subtotal)
				if err != nil {
					return err
				}
				order.Discount = quote.Discount
				order.CouponCode = &quote.Code
				return nil
			},
			func(ctx context.Context) error { return s.coupons.Revert(ctx, code) },
		)
		if err != nil {
			return nil, err
		}
	}

	// 5. Total
	order.Total = model.ComputeTotal(order.Subtotal, order.Discount, order.ShippingFee)

	// 6. Persist with the first history entry
	order.History.Append(model.OrderStatusPending, nil, &userID, now)
	if err := s.persist(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) snapshotItems(ctx context.Context, orderID uuid.UUID, lines []model.CreateOrderItem) ([]model.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariantID)
	}

	variants, err := s.ledger.GetVariants(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]model.OrderItem, 0, len(lines))
	for i, line := range lines {
		v, ok := variants[line.VariantID]
		if !ok {
			return nil, inventoryModel.NewVariantNotFoundError(line.VariantID)
		}

		item := model.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			Position:    i + 1,
			VariantID:   v.ID,
			ProductID:   v.ProductID,
			ProductName: v.ProductName,
			Size:        v.Size,
			Color:       v.Color,
			UnitPrice:   v.UnitPrice(),
			Quantity:    line.Quantity,
		}
		item.LineTotal = item.CalculateLineTotal()
		items = append(items, item)
	}
	return items, nil
}

// reservationOrder returns item indexes sorted by variant id bytes, the
// global lock order for stock rows.
func reservationOrder(items []model.OrderItem) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		va, vb := items[idx[a]].VariantID, items[idx[b]].VariantID
		return bytes.Compare(va[:], vb[:]) < 0
	})
	return idx
}

// persist stores the order, drawing a fresh number if the random one
// collides.
func (s *orderService) persist(ctx context.Context, order *model.Order) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber, err = model.GenerateOrderNumber(order.CreatedAt)
		if err != nil {
			return err
		}

		err = s.repo.Create(ctx, order)
		if err == nil || !errors.Is(err, model.ErrOrderNumberTaken) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	return nil
}
