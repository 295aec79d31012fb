package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"storefront-backend/internal/domains/order/service"
	"storefront-backend/internal/shared"
	"storefront-backend/pkg/logger"
)

// ReconcileSweepHandler re-enqueues reconciliation for reversed orders that
// still hold stock or coupon usage, catching tasks that were never enqueued.
type ReconcileSweepHandler struct {
	orders service.OrderService
}

func NewReconcileSweepHandler(orders service.OrderService) *ReconcileSweepHandler {
	return &ReconcileSweepHandler{orders: orders}
}

func (h *ReconcileSweepHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	limit, err := batchLimit(task.Payload(), func(p []byte) (int, error) {
		var payload shared.ReconcileSweepPayload
		err := json.Unmarshal(p, &payload)
		return payload.Limit, err
	})
	if err != nil {
		logger.Error("ReconcileSweep: failed to unmarshal payload", err)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	queued, err := h.orders.SweepUnreconciled(ctx, limit)
	if err != nil {
		logger.Error("ReconcileSweep: run failed", err)
		return err
	}

	if queued > 0 {
		logger.Warn("unreconciled orders found", map[string]interface{}{
			"count": queued,
		})
	}
	return nil
}
