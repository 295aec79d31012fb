package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-backend/internal/domains/inventory/model"
	"storefront-backend/internal/domains/inventory/service"
	"storefront-backend/internal/shared/response"
	"storefront-backend/pkg/logger"
)

type Handler struct {
	service service.ServiceInterface
}

// NewHandler creates a new inventory handler
func NewHandler(service service.ServiceInterface) *Handler {
	return &Handler{
		service: service,
	}
}

// GetStock handles GET /variants/:id/stock
func (h *Handler) GetStock(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid variant ID format")
		return
	}

	snap, err := h.service.GetStock(c.Request.Context(), id)
	if err != nil {
		if model.IsNotFoundError(err) {
			response.NotFound(c, "Variant not found")
			return
		}
		logger.Error("get stock failed", err)
		response.InternalServerError(c, "Failed to get stock")
		return
	}

	response.Success(c, http.StatusOK, snap)
}
