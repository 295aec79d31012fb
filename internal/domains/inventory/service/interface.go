package service

import (
	"context"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/inventory/model"
)

// ServiceInterface is the stock ledger: the single source of truth for
// whether a quantity of a variant can be sold.
type ServiceInterface interface {
	// Reserve atomically takes quantity units of the variant or fails with
	// *model.InsufficientStockError without mutating anything.
	Reserve(ctx context.Context, variantID uuid.UUID, quantity int) error

	// Release puts quantity units back. It has no upper bound.
	Release(ctx context.Context, variantID uuid.UUID, quantity int) error

	// GetVariants resolves ids to variants with current pricing.
	GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Variant, error)

	// GetStock returns the stock snapshot, served from cache when possible.
	GetStock(ctx context.Context, variantID uuid.UUID) (*model.StockSnapshot, error)

	// RefreshSnapshots rewrites the cached snapshots of the given variants.
	RefreshSnapshots(ctx context.Context, variantIDs []uuid.UUID) error
}
