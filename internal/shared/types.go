package shared

// Task types handled by the worker.
const (
	TypeReconcileReversal = "order:reconcile_reversal"
	TypeAutoCancelPending = "order:auto_cancel_pending"
	TypeReconcileSweep    = "order:reconcile_sweep"
	TypeSyncStockSnapshot = "inventory:sync_stock_snapshot"
)

// Queues, in priority order.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ReconcileReversalPayload asks the worker to finish reversing an order
// whose cancellation or refund left stock or coupon usage unrestored.
type ReconcileReversalPayload struct {
	OrderID string `json:"order_id"`
}

// AutoCancelPendingPayload drives the scheduled cancellation of stale
// unpaid orders.
type AutoCancelPendingPayload struct {
	Limit int `json:"limit"`
}

// ReconcileSweepPayload drives the scheduled scan for unreconciled orders.
type ReconcileSweepPayload struct {
	Limit int `json:"limit"`
}

// SyncStockSnapshotPayload refreshes cached stock for the listed variants.
type SyncStockSnapshotPayload struct {
	VariantIDs []string `json:"variant_ids"`
	Source     string   `json:"source"`
}
