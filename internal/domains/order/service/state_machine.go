package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/order/model"
	"storefront-backend/pkg/logger"
)

// guardFunc inspects, and may annotate, the freshly loaded order before the
// transition is applied.
type guardFunc func(order *model.Order) error

// =====================================================
// TRANSITION ORDER (ADMIN)
// =====================================================

func (s *orderService) TransitionOrder(ctx context.Context, orderID uuid.UUID, actor model.Actor, req model.TransitionRequest) (*model.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewOrderError(model.ErrCodeInvalidOrder, "Invalid status request", err)
	}
	return s.transition(ctx, orderID, actor, req.Status, req.Note, nil)
}

// =====================================================
// CANCEL ORDER
// =====================================================

func (s *orderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor model.Actor, req model.CancelOrderRequest) (*model.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewOrderError(model.ErrCodeInvalidOrder, "Invalid cancel request", err)
	}

	reason := req.Reason
	guard := func(order *model.Order) error {
		if !order.Status.CanTransitionTo(model.OrderStatusCancelled) {
			return model.NewIllegalTransitionError(order.Status, model.OrderStatusCancelled)
		}
		// Buyers may only withdraw orders nobody has started on.
		if !actor.Privileged() && order.Status != model.OrderStatusPending {
			return model.NewOrderError(
				model.ErrCodeOrderCannotCancel,
				fmt.Sprintf("Order with status '%s' cannot be cancelled", order.Status),
				model.ErrOrderCannotCancel,
			)
		}
		order.CancellationReason = &reason
		return nil
	}

	return s.transition(ctx, orderID, actor, model.OrderStatusCancelled, &reason, guard)
}

// transition re-reads the order under its lock, validates the move and
// commits it under the order's version. Entering cancelled or refunded
// commits the new status first and only then returns stock and coupon usage,
// so a lost commit never leaves released units behind.
func (s *orderService) transition(
	ctx context.Context,
	orderID uuid.UUID,
	actor model.Actor,
	next model.OrderStatus,
	note *string,
	guard guardFunc,
) (*model.Order, error) {
	var (
		result  *model.Order
		partial *model.ReversalPartialFailureError
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.repo.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
			order, err := s.repo.GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			if !order.OwnedBy(actor) {
				return model.ErrForbidden
			}
			if guard != nil {
				if err := guard(order); err != nil {
					return err
				}
			}

			from := order.Status
			historyLen := order.History.Len()
			if err := order.ApplyTransition(next, note, actor, s.now()); err != nil {
				return err
			}
			if next == model.OrderStatusCancelled && order.CancellationReason == nil {
				order.CancellationReason = note
			}

			if err := s.repo.Update(ctx, order, historyLen); err != nil {
				return err
			}

			logger.Info("Order status changed", map[string]interface{}{
				"order_id": order.ID,
				"from":     from,
				"to":       next,
				"role":     actor.Role,
			})
			result = order

			if next.IsReversal() {
				if failures, _ := s.settleReversal(ctx, order); len(failures) > 0 {
					partial = &model.ReversalPartialFailureError{OrderID: order.ID, Failures: failures}
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, conflictError(err)
	}

	if next.IsReversal() {
		s.enqueueStockSnapshot(ctx, result, "order_"+string(next))
	}
	if partial != nil {
		s.reportPartialReversal(ctx, partial)
		return result, partial
	}
	return result, nil
}

// settleReversal runs reverse on an order whose reversal status is already
// committed and persists the steps that went through. When that write fails
// the steps are undone and reported as failures, leaving the order for
// reconciliation. persisted reports whether the flags were written.
func (s *orderService) settleReversal(ctx context.Context, order *model.Order) (failures []model.ReversalFailure, persisted bool) {
	before := order.Clone()
	sg := newSaga()

	failures = s.reverse(ctx, sg, order)
	if sg.Len() == 0 {
		return failures, false
	}

	err := s.repo.Update(ctx, order, order.History.Len())
	if err == nil {
		return failures, true
	}

	s.undoReversal(ctx, sg, order.ID)
	for i := range order.Items {
		item := &order.Items[i]
		if item.Released && !before.Items[i].Released {
			variantID := item.VariantID
			failures = append(failures, model.ReversalFailure{VariantID: &variantID, Quantity: item.Quantity, Err: err})
			item.Released = false
		}
	}
	if order.CouponReverted && !before.CouponReverted {
		failures = append(failures, model.ReversalFailure{CouponCode: *order.CouponCode, Err: err})
		order.CouponReverted = false
	}
	return failures, false
}

func (s *orderService) undoReversal(ctx context.Context, sg *saga, orderID uuid.UUID) {
	for _, err := range sg.Compensate(ctx) {
		logger.ErrorWithFields("Failed to undo unrecorded reversal step", err, map[string]interface{}{
			"order_id": orderID,
		})
	}
}

func (s *orderService) reportPartialReversal(ctx context.Context, partial *model.ReversalPartialFailureError) {
	for _, f := range partial.Failures {
		fields := map[string]interface{}{
			"order_id": partial.OrderID,
		}
		if f.VariantID != nil {
			fields["variant_id"] = *f.VariantID
			fields["quantity"] = f.Quantity
		} else {
			fields["coupon_code"] = f.CouponCode
		}
		logger.ErrorWithFields("Order reversal step failed", f.Err, fields)
	}
	s.enqueueReconcile(ctx, partial.OrderID)
}

// isSkippable reports errors that mean another actor already moved the order.
func isSkippable(err error) bool {
	return errors.Is(err, model.ErrIllegalTransition) ||
		errors.Is(err, model.ErrVersionMismatch) ||
		errors.Is(err, model.ErrOrderCannotCancel)
}
