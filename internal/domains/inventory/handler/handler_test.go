package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domains/inventory/model"
	"storefront-backend/internal/domains/inventory/repository"
	"storefront-backend/internal/domains/inventory/service"
	"storefront-backend/pkg/cache"
)

func TestGetStock(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepository()
	variantID := uuid.New()
	repo.Seed(&model.Variant{ID: variantID, ProductID: uuid.New(), BasePrice: decimal.NewFromInt(1000), Stock: 7})

	h := NewHandler(service.NewLedgerService(repo, cache.NewMemoryCache(), time.Minute))
	r := gin.New()
	r.GET("/variants/:id/stock", h.GetStock)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "known variant", id: variantID.String(), wantStatus: http.StatusOK},
		{name: "unknown variant", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "malformed id", id: "abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/variants/"+tt.id+"/stock", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/variants/"+variantID.String()+"/stock", nil))

	var body struct {
		Data model.StockSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 7, body.Data.Stock)
	assert.Equal(t, variantID, body.Data.VariantID)
}
