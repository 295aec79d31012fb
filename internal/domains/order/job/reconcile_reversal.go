package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"storefront-backend/internal/domains/order/model"
	"storefront-backend/internal/domains/order/service"
	"storefront-backend/internal/shared"
	"storefront-backend/pkg/logger"
)

// ReconcileReversalHandler retries the stock and coupon restoration of a
// cancelled or refunded order. A partial failure is returned as-is so the
// queue retries with backoff.
type ReconcileReversalHandler struct {
	orders service.OrderService
}

func NewReconcileReversalHandler(orders service.OrderService) *ReconcileReversalHandler {
	return &ReconcileReversalHandler{orders: orders}
}

func (h *ReconcileReversalHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.ReconcileReversalPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Error("ReconcileReversal: failed to unmarshal payload", err)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", payload.OrderID, asynq.SkipRetry)
	}

	_, err = h.orders.ReconcileReversal(ctx, orderID)
	switch {
	case err == nil:
		logger.Info("order reversal reconciled", map[string]interface{}{
			"order_id": orderID,
		})
		return nil
	case errors.Is(err, model.ErrOrderNotFound), errors.Is(err, model.ErrNotReversible):
		logger.Warn("ReconcileReversal: nothing to reconcile", map[string]interface{}{
			"order_id": orderID,
			"reason":   err.Error(),
		})
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		logger.ErrorWithFields("ReconcileReversal: reconciliation incomplete", err, map[string]interface{}{
			"order_id": orderID,
		})
		return err
	}
}
