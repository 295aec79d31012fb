package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"storefront-backend/internal/domains/inventory/service"
	"storefront-backend/internal/shared"
	"storefront-backend/pkg/logger"
)

// StockSnapshotHandler rewrites the cached stock snapshots of variants
// touched by an order mutation.
type StockSnapshotHandler struct {
	ledger service.ServiceInterface
}

func NewStockSnapshotHandler(ledger service.ServiceInterface) *StockSnapshotHandler {
	return &StockSnapshotHandler{ledger: ledger}
}

func (h *StockSnapshotHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.SyncStockSnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Error("SyncStockSnapshot: failed to unmarshal payload", err)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	ids := make([]uuid.UUID, 0, len(payload.VariantIDs))
	for _, raw := range payload.VariantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid variant id %q: %w", raw, asynq.SkipRetry)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := h.ledger.RefreshSnapshots(ctx, ids); err != nil {
		logger.Error("SyncStockSnapshot: refresh failed", err)
		return err
	}

	logger.Info("stock snapshots refreshed", map[string]interface{}{
		"variants": len(ids),
		"source":   payload.Source,
	})
	return nil
}
