package repository

import (
	"context"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/inventory/model"
)

// RepositoryInterface is the persistence contract of the stock ledger.
// ReserveStock and ReleaseStock are atomic per variant: the check and the
// mutation happen under the variant's own lock and never under a global one.
type RepositoryInterface interface {
	GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error)

	// GetVariants returns every requested variant keyed by id.
	// A missing id fails the whole call with ErrVariantNotFound.
	GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Variant, error)

	// ReserveStock decrements stock by quantity when stock >= quantity,
	// otherwise returns *model.InsufficientStockError and changes nothing.
	ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (*model.Variant, error)

	// ReleaseStock adds quantity back without an upper bound.
	ReleaseStock(ctx context.Context, id uuid.UUID, quantity int) (*model.Variant, error)
}
