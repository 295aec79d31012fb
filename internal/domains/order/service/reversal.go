package service

import (
	"context"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/order/model"
	"storefront-backend/pkg/logger"
)

// reverse returns every unreleased item's stock and the coupon usage, if not
// already reverted, marking each step done on the order. A failed step does
// not stop the others; failures are returned for reporting.
func (s *orderService) reverse(ctx context.Context, sg *saga, order *model.Order) []model.ReversalFailure {
	var failures []model.ReversalFailure

	for i := range order.Items {
		item := &order.Items[i]
		if item.Released {
			continue
		}

		variantID, qty := item.VariantID, item.Quantity
		err := sg.Do(ctx,
			func(ctx context.Context) error { return s.ledger.Release(ctx, variantID, qty) },
			func(ctx context.Context) error { return s.ledger.Reserve(ctx, variantID, qty) },
		)
		if err != nil {
			failures = append(failures, model.ReversalFailure{VariantID: &variantID, Quantity: qty, Err: err})
			continue
		}
		item.Released = true
	}

	if order.HasCoupon() && !order.CouponReverted {
		code := *order.CouponCode
		err := sg.Do(ctx,
			func(ctx context.Context) error { return s.coupons.Revert(ctx, code) },
			func(ctx context.Context) error { return s.coupons.Reapply(ctx, code) },
		)
		if err != nil {
			failures = append(failures, model.ReversalFailure{CouponCode: code, Err: err})
		} else {
			order.CouponReverted = true
		}
	}

	return failures
}

// =====================================================
// RECONCILIATION
// =====================================================

func (s *orderService) ReconcileReversal(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	var (
		result  *model.Order
		partial *model.ReversalPartialFailureError
		changed bool
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.repo.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
			order, err := s.repo.GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			if !order.Status.IsReversal() {
				return model.NewOrderError(
					model.ErrCodeNotReversible,
					"Only cancelled or refunded orders can be reconciled",
					model.ErrNotReversible,
				)
			}
			result = order
			if !order.NeedsReversal() {
				return nil
			}

			failures, persisted := s.settleReversal(ctx, order)
			if len(failures) > 0 {
				partial = &model.ReversalPartialFailureError{OrderID: order.ID, Failures: failures}
			}
			changed = persisted
			return nil
		})
	})
	if err != nil {
		return nil, conflictError(err)
	}

	if changed {
		s.enqueueStockSnapshot(ctx, result, "order_reconciled")
		logger.Info("Order reversal reconciled", map[string]interface{}{
			"order_id":        result.ID,
			"coupon_reverted": result.CouponReverted,
		})
	}
	if partial != nil {
		return result, partial
	}
	return result, nil
}

// =====================================================
// SCHEDULED MAINTENANCE
// =====================================================

func (s *orderService) AutoCancelStalePending(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-s.cfg.PendingTTL)
	ids, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	req := model.CancelOrderRequest{Reason: "payment not received in time"}
	cancelled := 0
	for _, id := range ids {
		_, err := s.CancelOrder(ctx, id, model.SystemActor(), req)
		switch {
		case err == nil, model.IsReversalPartialFailure(err):
			cancelled++
		case isSkippable(err):
			logger.Debug("Auto-cancel skipped order " + id.String() + ": " + err.Error())
		default:
			logger.ErrorWithFields("Auto-cancel failed", err, map[string]interface{}{"order_id": id})
		}
	}
	return cancelled, nil
}

func (s *orderService) SweepUnreconciled(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.ListNeedingReversal(ctx, limit)
	if err != nil {
		return 0, err
	}
	if s.tasks == nil {
		return 0, nil
	}

	enqueued := 0
	for _, id := range ids {
		if err := s.tasks.EnqueueReconcileReversal(ctx, id); err != nil {
			logger.ErrorWithFields("Failed to enqueue reversal reconciliation", err, map[string]interface{}{"order_id": id})
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

