package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/inventory/model"
)

type variantCell struct {
	mu      sync.Mutex
	variant model.Variant
}

// MemoryRepository keeps variants in process. Each variant has its own
// mutex so unrelated variants never contend.
type MemoryRepository struct {
	mu    sync.RWMutex
	cells map[uuid.UUID]*variantCell

	movMu     sync.Mutex
	movements []model.StockMovement
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cells: make(map[uuid.UUID]*variantCell)}
}

// Seed registers variants. Status is derived from the given stock.
func (r *MemoryRepository) Seed(variants ...*model.Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range variants {
		cp := *v
		cp.RecomputeStatus()
		if cp.Version == 0 {
			cp.Version = 1
		}
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = time.Now()
		}
		r.cells[cp.ID] = &variantCell{variant: cp}
	}
}

// Movements returns the audit trail recorded so far.
func (r *MemoryRepository) Movements() []model.StockMovement {
	r.movMu.Lock()
	defer r.movMu.Unlock()
	return append([]model.StockMovement(nil), r.movements...)
}

func (r *MemoryRepository) cell(id uuid.UUID) (*variantCell, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cells[id]
	if !ok {
		return nil, model.NewVariantNotFoundError(id)
	}
	return c, nil
}

func (r *MemoryRepository) GetVariant(_ context.Context, id uuid.UUID) (*model.Variant, error) {
	c, err := r.cell(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.variant
	return &v, nil
}

func (r *MemoryRepository) GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Variant, error) {
	result := make(map[uuid.UUID]*model.Variant, len(ids))
	for _, id := range ids {
		v, err := r.GetVariant(ctx, id)
		if err != nil {
			return nil, err
		}
		result[id] = v
	}
	return result, nil
}

func (r *MemoryRepository) ReserveStock(_ context.Context, id uuid.UUID, quantity int) (*model.Variant, error) {
	return r.adjust(id, -quantity, model.MovementReserve)
}

func (r *MemoryRepository) ReleaseStock(_ context.Context, id uuid.UUID, quantity int) (*model.Variant, error) {
	return r.adjust(id, quantity, model.MovementRelease)
}

func (r *MemoryRepository) adjust(id uuid.UUID, delta int, movementType string) (*model.Variant, error) {
	c, err := r.cell(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	before := c.variant.Stock
	if before+delta < 0 {
		c.mu.Unlock()
		return nil, model.NewInsufficientStockError(id, before, -delta)
	}
	c.variant.Stock = before + delta
	c.variant.RecomputeStatus()
	c.variant.Version++
	c.variant.UpdatedAt = time.Now()
	v := c.variant
	c.mu.Unlock()

	r.movMu.Lock()
	r.movements = append(r.movements, model.StockMovement{
		VariantID:   id,
		Type:        movementType,
		Quantity:    abs(delta),
		StockBefore: before,
		StockAfter:  v.Stock,
		CreatedAt:   v.UpdatedAt,
	})
	r.movMu.Unlock()

	return &v, nil
}
