package main

import (
	"github.com/hibiken/asynq"

	inventoryJob "storefront-backend/internal/domains/inventory/job"
	orderJob "storefront-backend/internal/domains/order/job"
	"storefront-backend/internal/shared"
	"storefront-backend/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	// Order reversal
	reconcileReversal *orderJob.ReconcileReversalHandler

	// Scheduled maintenance
	autoCancel     *orderJob.AutoCancelHandler
	reconcileSweep *orderJob.ReconcileSweepHandler

	// Inventory
	stockSnapshot *inventoryJob.StockSnapshotHandler
}

func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		reconcileReversal: c.ReconcileReversalJob,
		autoCancel:        c.AutoCancelJob,
		reconcileSweep:    c.ReconcileSweepJob,
		stockSnapshot:     c.StockSnapshotJob,
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeReconcileReversal, h.reconcileReversal.ProcessTask)

	mux.HandleFunc(shared.TypeAutoCancelPending, h.autoCancel.ProcessTask)
	mux.HandleFunc(shared.TypeReconcileSweep, h.reconcileSweep.ProcessTask)

	mux.HandleFunc(shared.TypeSyncStockSnapshot, h.stockSnapshot.ProcessTask)
}
