package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/shared/middleware"
	"storefront-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	router.GET("/health", healthCheckHandler(c))

	v1 := router.Group("/api/v1")
	{
		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(c.JWTManager))

		admin := authed.Group("/admin")
		admin.Use(middleware.AdminMiddleware())

		setupInventoryRoutes(v1, c)
		setupCouponRoutes(authed, admin, c)
		c.OrderHandler.RegisterRoutes(authed, admin)
	}

	return router
}

// ========================================
// INVENTORY ROUTES
// ========================================
func setupInventoryRoutes(v1 *gin.RouterGroup, c *container.Container) {
	variants := v1.Group("/variants")
	{
		variants.GET("/:id/stock", c.InventoryHandler.GetStock)
	}
}

// ========================================
// COUPON ROUTES
// ========================================
func setupCouponRoutes(authed, admin *gin.RouterGroup, c *container.Container) {
	authed.POST("/coupons/validate", c.CouponHandler.ValidateCoupon)

	adminCoupons := admin.Group("/coupons")
	{
		adminCoupons.POST("", c.CouponHandler.CreateCoupon)
		adminCoupons.GET("/:code", c.CouponHandler.GetCoupon)
	}
}

// ========================================
// HEALTH CHECK
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
			"store":     appCtx.Config.Store.Driver,
		}
		status := http.StatusOK

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if appCtx.DB == nil {
			dbStatus = "not configured"
		} else if err := appCtx.DB.HealthCheck(ctx); err != nil {
			dbStatus = fmt.Sprintf("error: %v", err)
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		redisStatus := "ok"
		if appCtx.Redis == nil {
			redisStatus = "not configured"
		} else if err := appCtx.Redis.Ping(ctx); err != nil {
			redisStatus = fmt.Sprintf("error: %v", err)
			health["status"] = "degraded"
		}

		health["services"] = gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
		}
		c.JSON(status, health)
	}
}
