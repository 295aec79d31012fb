package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domains/inventory/model"
	"storefront-backend/internal/domains/inventory/repository"
	"storefront-backend/internal/domains/inventory/service"
	"storefront-backend/internal/shared"
	"storefront-backend/pkg/cache"
)

func TestStockSnapshotHandler_ProcessTask(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	variantID := uuid.New()
	repo.Seed(&model.Variant{ID: variantID, ProductID: uuid.New(), BasePrice: decimal.NewFromInt(1000), Stock: 4})

	c := cache.NewMemoryCache()
	ledger := service.NewLedgerService(repo, c, time.Hour)
	h := NewStockSnapshotHandler(ledger)

	payload, err := json.Marshal(shared.SyncStockSnapshotPayload{
		VariantIDs: []string{variantID.String()},
		Source:     "test",
	})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(ctx, asynq.NewTask(shared.TypeSyncStockSnapshot, payload)))

	var snap model.StockSnapshot
	found, err := c.Get(ctx, service.StockCacheKey(variantID), &snap)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, snap.Stock)
	assert.Equal(t, model.VariantStatusActive, snap.Status)
}

func TestStockSnapshotHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := NewStockSnapshotHandler(nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeSyncStockSnapshot, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	payload, _ := json.Marshal(shared.SyncStockSnapshotPayload{VariantIDs: []string{"nope"}})
	err = h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeSyncStockSnapshot, payload))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
