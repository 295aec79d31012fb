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

// DefaultBatchLimit bounds how many orders one scheduled run touches.
const DefaultBatchLimit = 100

// AutoCancelHandler cancels pending orders that outlived the payment window.
type AutoCancelHandler struct {
	orders service.OrderService
}

func NewAutoCancelHandler(orders service.OrderService) *AutoCancelHandler {
	return &AutoCancelHandler{orders: orders}
}

func (h *AutoCancelHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	limit, err := batchLimit(task.Payload(), func(p []byte) (int, error) {
		var payload shared.AutoCancelPendingPayload
		err := json.Unmarshal(p, &payload)
		return payload.Limit, err
	})
	if err != nil {
		logger.Error("AutoCancelPending: failed to unmarshal payload", err)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	cancelled, err := h.orders.AutoCancelStalePending(ctx, limit)
	if err != nil {
		logger.Error("AutoCancelPending: run failed", err)
		return err
	}

	if cancelled > 0 {
		logger.Info("stale pending orders cancelled", map[string]interface{}{
			"count": cancelled,
		})
	}
	return nil
}

// batchLimit decodes a scheduler payload, falling back to DefaultBatchLimit
// when the payload is empty or carries no positive limit.
func batchLimit(payload []byte, decode func([]byte) (int, error)) (int, error) {
	if len(payload) == 0 {
		return DefaultBatchLimit, nil
	}
	limit, err := decode(payload)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return DefaultBatchLimit, nil
	}
	return limit, nil
}
