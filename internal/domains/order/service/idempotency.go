package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"storefront-backend/internal/domains/order/model"
	"storefront-backend/pkg/cache"
	"storefront-backend/pkg/logger"
)

const (
	idempotencyProcessing = "processing"
	idempotencyDone       = "done"
)

type idempotencyRecord struct {
	State   string    `json:"state"`
	OrderID uuid.UUID `json:"order_id,omitempty"`
}

func IdempotencyCacheKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("order:idempotency:%s:%s", userID, key)
}

// idempotencyClaim is held while the first request with a key runs. A nil
// claim is a no-op.
type idempotencyClaim struct {
	cache cache.Cache
	key   string
	svc   *orderService
}

// claimIdempotencyKey marks key as in flight. If the key already finished it
// returns the order it produced; if it is still in flight it fails with
// model.ErrDuplicateRequest.
func (s *orderService) claimIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*idempotencyClaim, *model.Order, error) {
	if key == "" || s.cache == nil {
		return nil, nil, nil
	}

	cacheKey := IdempotencyCacheKey(userID, key)
	acquired, err := s.cache.SetNX(ctx, cacheKey, idempotencyRecord{State: idempotencyProcessing}, s.cfg.IdempotencyTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if acquired {
		return &idempotencyClaim{cache: s.cache, key: cacheKey, svc: s}, nil, nil
	}

	var rec idempotencyRecord
	found, err := s.cache.Get(ctx, cacheKey, &rec)
	if err != nil {
		return nil, nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if !found || rec.State != idempotencyDone {
		return nil, nil, model.NewOrderError(model.ErrCodeDuplicateRequest, "A request with this Idempotency-Key is in progress", model.ErrDuplicateRequest)
	}

	order, err := s.repo.GetByID(ctx, rec.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return nil, order, nil
}

func (c *idempotencyClaim) complete(ctx context.Context, orderID uuid.UUID) {
	if c == nil {
		return
	}
	rec := idempotencyRecord{State: idempotencyDone, OrderID: orderID}
	if err := c.cache.Set(ctx, c.key, rec, c.svc.cfg.IdempotencyTTL); err != nil {
		logger.Error("Failed to record idempotency result", err)
	}
}

// release frees the key so the buyer can retry a failed request.
func (c *idempotencyClaim) release(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.cache.Delete(context.WithoutCancel(ctx), c.key); err != nil {
		logger.Error("Failed to release idempotency key", err)
	}
}
