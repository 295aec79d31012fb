package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"storefront-backend/internal/domains/promotion/model"
	"storefront-backend/internal/domains/promotion/service"
	"storefront-backend/internal/shared/response"
	"storefront-backend/pkg/logger"
)

type Handler struct {
	service service.ServiceInterface
}

func NewHandler(service service.ServiceInterface) *Handler {
	return &Handler{service: service}
}

// ValidateCoupon handles POST /coupons/validate
// Previews a discount without consuming the coupon.
func (h *Handler) ValidateCoupon(c *gin.Context) {
	var req model.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request payload")
		return
	}
	if err := req.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), "Validation failed", err)
		return
	}

	quote, err := h.service.Validate(c.Request.Context(), req.Code, req.OrderAmount)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, quote)
}

// CreateCoupon handles POST /admin/coupons
func (h *Handler) CreateCoupon(c *gin.Context) {
	var req model.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request payload")
		return
	}

	coupon, err := h.service.CreateCoupon(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, coupon)
}

// GetCoupon handles GET /admin/coupons/:code
func (h *Handler) GetCoupon(c *gin.Context) {
	coupon, err := h.service.GetCoupon(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, coupon)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		response.ErrorWithDetails(c, http.StatusBadRequest, string(model.ErrCodeValidationFailed), "Validation failed", verrs)
	case errors.Is(err, model.ErrCouponNotFound):
		response.ErrorResponse(c, http.StatusNotFound, string(model.ErrCodeCouponNotFound), err.Error())
	case errors.Is(err, model.ErrCouponDuplicateCode):
		response.ErrorResponse(c, http.StatusConflict, string(model.ErrCodeCouponDuplicateCode), err.Error())
	case model.IsCouponRejection(err):
		var minErr *model.MinimumNotMetError
		if errors.As(err, &minErr) {
			response.ErrorWithDetails(c, http.StatusUnprocessableEntity, string(model.CodeFor(err)), err.Error(), gin.H{
				"required": minErr.Required,
				"actual":   minErr.Actual,
			})
			return
		}
		response.ErrorResponse(c, http.StatusUnprocessableEntity, string(model.CodeFor(err)), err.Error())
	default:
		logger.Error("coupon request failed", err)
		response.InternalServerError(c, "Internal server error")
	}
}
