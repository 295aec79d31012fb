package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/inventory/model"
	"storefront-backend/internal/domains/inventory/repository"
	"storefront-backend/pkg/cache"
	"storefront-backend/pkg/logger"
)

// StockCacheKey is the Redis key of a variant's stock snapshot.
func StockCacheKey(variantID uuid.UUID) string {
	return fmt.Sprintf("inventory:variant:%s:stock", variantID)
}

type ledgerService struct {
	repo     repository.RepositoryInterface
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewLedgerService(repo repository.RepositoryInterface, c cache.Cache, cacheTTL time.Duration) ServiceInterface {
	return &ledgerService{
		repo:     repo,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

func (s *ledgerService) Reserve(ctx context.Context, variantID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: got %d", model.ErrInvalidQuantity, quantity)
	}

	v, err := s.repo.ReserveStock(ctx, variantID, quantity)
	if err != nil {
		return err
	}

	s.invalidate(ctx, v.ID)
	return nil
}

func (s *ledgerService) Release(ctx context.Context, variantID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: got %d", model.ErrInvalidQuantity, quantity)
	}

	v, err := s.repo.ReleaseStock(ctx, variantID, quantity)
	if err != nil {
		return err
	}

	s.invalidate(ctx, v.ID)
	return nil
}

func (s *ledgerService) GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Variant, error) {
	return s.repo.GetVariants(ctx, ids)
}

func (s *ledgerService) GetStock(ctx context.Context, variantID uuid.UUID) (*model.StockSnapshot, error) {
	key := StockCacheKey(variantID)

	if s.cache != nil {
		var snap model.StockSnapshot
		found, err := s.cache.Get(ctx, key, &snap)
		if err != nil {
			logger.Error("stock cache read failed", err)
		} else if found {
			return &snap, nil
		}
	}

	v, err := s.repo.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	snap := v.Snapshot()
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, snap, s.cacheTTL); err != nil {
			logger.Error("stock cache write failed", err)
		}
	}
	return &snap, nil
}

func (s *ledgerService) RefreshSnapshots(ctx context.Context, variantIDs []uuid.UUID) error {
	if s.cache == nil || len(variantIDs) == 0 {
		return nil
	}

	variants, err := s.repo.GetVariants(ctx, variantIDs)
	if err != nil {
		return fmt.Errorf("load variants: %w", err)
	}

	for id, v := range variants {
		if err := s.cache.Set(ctx, StockCacheKey(id), v.Snapshot(), s.cacheTTL); err != nil {
			return fmt.Errorf("cache snapshot %s: %w", id, err)
		}
	}
	return nil
}

// invalidate drops the cached snapshot. A cache failure never fails the
// ledger operation; the TTL bounds staleness.
func (s *ledgerService) invalidate(ctx context.Context, variantID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, StockCacheKey(variantID)); err != nil {
		logger.Info("failed to invalidate stock cache", map[string]interface{}{
			"variant_id": variantID,
			"error":      err.Error(),
		})
	}
}
