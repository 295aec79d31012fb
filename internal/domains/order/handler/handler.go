package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	inventoryModel "storefront-backend/internal/domains/inventory/model"
	"storefront-backend/internal/domains/order/model"
	"storefront-backend/internal/domains/order/service"
	promotionModel "storefront-backend/internal/domains/promotion/model"
	"storefront-backend/internal/shared/middleware"
	"storefront-backend/internal/shared/response"
	"storefront-backend/pkg/logger"
)

const idempotencyHeader = "Idempotency-Key"

// =====================================================
// ORDER HANDLER
// =====================================================
type OrderHandler struct {
	orderService service.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// =====================================================
// ROUTES REGISTRATION
// =====================================================

// RegisterRoutes wires buyer routes on user and admin routes on admin. Both
// groups must already carry authentication; admin also the role check.
func (h *OrderHandler) RegisterRoutes(user, admin *gin.RouterGroup) {
	orders := user.Group("/orders")
	{
		orders.POST("", h.CreateOrder)            // POST /orders
		orders.GET("", h.ListMyOrders)            // GET /orders?page=1&limit=20&status=pending
		orders.GET("/:id", h.GetOrder)            // GET /orders/:id
		orders.POST("/:id/cancel", h.CancelOrder) // POST /orders/:id/cancel
	}

	adminOrders := admin.Group("/orders")
	{
		adminOrders.GET("", h.ListAllOrders)
		adminOrders.GET("/:id", h.GetOrder)
		adminOrders.PATCH("/:id/status", h.TransitionOrder)
		adminOrders.POST("/:id/cancel", h.CancelOrder)
		adminOrders.PATCH("/:id/payment-status", h.UpdatePaymentStatus)
		adminOrders.POST("/:id/reconcile", h.ReconcileReversal)
	}
}

// =====================================================
// BUYER ENDPOINTS
// =====================================================

// CreateOrder handles POST /orders
// Reserves stock, applies the coupon and returns the pending order.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	var req model.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	order, err := h.orderService.CreateOrder(c.Request.Context(), actor.UserID, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, order)
}

// ListMyOrders handles GET /orders
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	h.list(c, &actor.UserID)
}

// CancelOrder handles POST /orders/:id/cancel and POST /admin/orders/:id/cancel.
// Buyers may cancel pending orders; admins also processing and shipped ones.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	var req model.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), orderID, actor, req)
	h.respondWithOrder(c, order, err)
}

// =====================================================
// ADMIN ENDPOINTS
// =====================================================

// ListAllOrders handles GET /admin/orders
func (h *OrderHandler) ListAllOrders(c *gin.Context) {
	h.list(c, nil)
}

// TransitionOrder handles PATCH /admin/orders/:id/status
func (h *OrderHandler) TransitionOrder(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	var req model.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	order, err := h.orderService.TransitionOrder(c.Request.Context(), orderID, actor, req)
	h.respondWithOrder(c, order, err)
}

// UpdatePaymentStatus handles PATCH /admin/orders/:id/payment-status
func (h *OrderHandler) UpdatePaymentStatus(c *gin.Context) {
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	var req model.PaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	order, err := h.orderService.UpdatePaymentStatus(c.Request.Context(), orderID, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, order)
}

// ReconcileReversal handles POST /admin/orders/:id/reconcile
func (h *OrderHandler) ReconcileReversal(c *gin.Context) {
	orderID, ok := h.orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orderService.ReconcileReversal(c.Request.Context(), orderID)
	h.respondWithOrder(c, order, err)
}

// =====================================================
// HELPERS
// =====================================================

func (h *OrderHandler) list(c *gin.Context, userID *uuid.UUID) {
	var req model.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.orderService.ListOrders(c.Request.Context(), userID, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, result.Orders, &response.Meta{
		Page:  result.Pagination.Page,
		Limit: result.Pagination.Limit,
		Total: result.Pagination.Total,
	})
}

// respondWithOrder writes a status-changing result. A partial reversal has
// already committed, so it is reported as success with warnings.
func (h *OrderHandler) respondWithOrder(c *gin.Context, order *model.Order, err error) {
	var partial *model.ReversalPartialFailureError
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, order)
	case errors.As(err, &partial) && order != nil:
		response.SuccessWithWarnings(c, http.StatusOK, order, partial.Warnings())
	default:
		h.handleServiceError(c, err)
	}
}

func (h *OrderHandler) actorFromContext(c *gin.Context) (model.Actor, bool) {
	raw, exists := c.Get(middleware.ContextUserID)
	userID, ok := raw.(uuid.UUID)
	if !exists || !ok {
		response.Unauthorized(c, "Unauthorized")
		return model.Actor{}, false
	}

	role := c.GetString(middleware.ContextRole)
	if role == "" {
		role = model.RoleUser
	}
	return model.Actor{UserID: userID, Role: role}, true
}

func (h *OrderHandler) orderIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid order ID format")
		return uuid.Nil, false
	}
	return id, true
}

// =====================================================
// ERROR MAPPING
// =====================================================

func (h *OrderHandler) handleServiceError(c *gin.Context, err error) {
	var (
		verrs      validation.Errors
		stockErr   *inventoryModel.InsufficientStockError
		illegal    *model.IllegalTransitionError
		payIllegal *model.IllegalPaymentTransitionError
		minErr     *promotionModel.MinimumNotMetError
		orderErr   *model.OrderError
	)

	switch {
	case errors.As(err, &verrs):
		response.ErrorWithDetails(c, http.StatusBadRequest, model.ErrCodeInvalidOrder, "Validation failed", verrs)

	case errors.As(err, &stockErr):
		response.ErrorWithDetails(c, http.StatusConflict, model.ErrCodeInsufficientStock, "Insufficient stock", gin.H{
			"variant_id": stockErr.VariantID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})

	case inventoryModel.IsInsufficientStockError(err):
		response.ErrorResponse(c, http.StatusConflict, model.ErrCodeInsufficientStock, "Insufficient stock")

	case errors.Is(err, inventoryModel.ErrVariantNotFound):
		response.ErrorResponse(c, http.StatusNotFound, model.ErrCodeVariantNotFound, err.Error())

	case errors.As(err, &minErr):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, string(promotionModel.CodeFor(err)), "Order amount is below the coupon minimum", gin.H{
			"required": minErr.Required,
			"actual":   minErr.Actual,
		})

	case errors.Is(err, promotionModel.ErrCouponNotFound):
		response.ErrorResponse(c, http.StatusNotFound, string(promotionModel.ErrCodeCouponNotFound), "Coupon not found")

	case promotionModel.IsCouponRejection(err):
		response.ErrorResponse(c, http.StatusUnprocessableEntity, string(promotionModel.CodeFor(err)), err.Error())

	case errors.As(err, &illegal):
		response.ErrorWithDetails(c, http.StatusConflict, model.ErrCodeIllegalTransition, "Illegal status transition", gin.H{
			"from":    illegal.From,
			"to":      illegal.To,
			"allowed": model.AllowedTransitions(illegal.From),
		})

	case errors.As(err, &payIllegal):
		response.ErrorWithDetails(c, http.StatusConflict, model.ErrCodeIllegalPaymentTransition, "Illegal payment status transition", gin.H{
			"from": payIllegal.From,
			"to":   payIllegal.To,
		})

	case errors.Is(err, model.ErrOrderNotFound):
		response.ErrorResponse(c, http.StatusNotFound, model.ErrCodeOrderNotFound, "Order not found")

	case errors.Is(err, model.ErrForbidden):
		response.ErrorResponse(c, http.StatusForbidden, model.ErrCodeForbidden, "Order belongs to another user")

	case errors.As(err, &orderErr):
		response.ErrorResponse(c, statusForCode(orderErr.Code), orderErr.Code, orderErr.Message)

	default:
		logger.Error("Order request failed", err)
		response.InternalServerError(c, "Internal server error")
	}
}

// statusForCode maps business error codes to HTTP status codes
func statusForCode(code string) int {
	statusMap := map[string]int{
		model.ErrCodeOrderNotFound:     http.StatusNotFound,
		model.ErrCodeOrderCannotCancel: http.StatusUnprocessableEntity,
		model.ErrCodeVersionMismatch:   http.StatusConflict,
		model.ErrCodeDuplicateRequest:  http.StatusConflict,
		model.ErrCodeNotReversible:     http.StatusConflict,
		model.ErrCodeForbidden:         http.StatusForbidden,
		model.ErrCodeInvalidOrder:      http.StatusBadRequest,
	}

	if status, exists := statusMap[code]; exists {
		return status
	}
	return http.StatusInternalServerError
}
