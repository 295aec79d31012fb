package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"storefront-backend/internal/shared"
)

// TaskClient enqueues order follow-up work onto asynq.
type TaskClient struct {
	client *asynq.Client
}

func NewTaskClient(client *asynq.Client) *TaskClient {
	return &TaskClient{client: client}
}

// EnqueueReconcileReversal schedules a retry of an order's stock and coupon
// restoration. One task per order is kept in flight at a time.
func (t *TaskClient) EnqueueReconcileReversal(ctx context.Context, orderID uuid.UUID) error {
	payload, err := json.Marshal(shared.ReconcileReversalPayload{OrderID: orderID.String()})
	if err != nil {
		return fmt.Errorf("marshal reconcile payload: %w", err)
	}

	task := asynq.NewTask(shared.TypeReconcileReversal, payload,
		asynq.Queue(shared.QueueCritical),
		asynq.MaxRetry(10),
		asynq.Timeout(time.Minute),
		asynq.TaskID(shared.TypeReconcileReversal+":"+orderID.String()),
		asynq.Retention(time.Hour),
	)

	_, err = t.client.EnqueueContext(ctx, task)
	if err != nil && !isDuplicateTask(err) {
		return fmt.Errorf("enqueue reconcile reversal: %w", err)
	}
	return nil
}

// EnqueueStockSnapshot asks the worker to refresh cached stock for the
// given variants.
func (t *TaskClient) EnqueueStockSnapshot(ctx context.Context, variantIDs []uuid.UUID, source string) error {
	if len(variantIDs) == 0 {
		return nil
	}

	ids := make([]string, len(variantIDs))
	for i, id := range variantIDs {
		ids[i] = id.String()
	}

	payload, err := json.Marshal(shared.SyncStockSnapshotPayload{VariantIDs: ids, Source: source})
	if err != nil {
		return fmt.Errorf("marshal snapshot payload: %w", err)
	}

	task := asynq.NewTask(shared.TypeSyncStockSnapshot, payload,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	)

	if _, err := t.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue stock snapshot: %w", err)
	}
	return nil
}

func isDuplicateTask(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}
