package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-backend/pkg/container"
)

// HealthChecker performs startup health checks
type HealthChecker struct {
	c *container.Container
}

// startServices checks dependencies and starts the health endpoint
func startServices(c *container.Container, cfg *Config) error {
	log.Println("============================================")
	log.Println("[Startup] Storefront worker starting...")
	log.Println("============================================")

	checker := &HealthChecker{c: c}
	if err := checker.checkAll(context.Background()); err != nil {
		return err
	}

	go startHealthCheckServer(cfg.HealthAddr, checker)

	return nil
}

func (h *HealthChecker) checks() []struct {
	name string
	fn   func(context.Context) error
} {
	return []struct {
		name string
		fn   func(context.Context) error
	}{
		{"Redis Connection", h.checkRedis},
		{"Database Connection", h.checkDatabase},
	}
}

// checkAll runs all health checks
func (h *HealthChecker) checkAll(ctx context.Context) error {
	for _, check := range h.checks() {
		log.Printf("[Startup] Checking %s...", check.name)
		if err := check.fn(ctx); err != nil {
			log.Printf("[Startup] %s: %v", check.name, err)
			return fmt.Errorf("%s failed: %w", check.name, err)
		}
		log.Printf("[Startup] ✓ %s: OK", check.name)
	}
	return nil
}

func (h *HealthChecker) checkRedis(ctx context.Context) error {
	if h.c.Redis == nil {
		return fmt.Errorf("redis is not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.c.Redis.Ping(ctx)
}

func (h *HealthChecker) checkDatabase(ctx context.Context) error {
	if h.c.DB == nil {
		return fmt.Errorf("database is not connected")
	}
	return h.c.DB.HealthCheck(ctx)
}

// startHealthCheckServer serves /health and /ready for probes
func startHealthCheckServer(addr string, checker *HealthChecker) {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "service": "storefront-worker"})
	})
	router.GET("/ready", func(c *gin.Context) {
		for _, check := range checker.checks() {
			if err := check.fn(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_READY", "check": check.name, "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "READY"})
	})

	log.Printf("[Health] Starting health check server on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Printf("[Health] Failed to start: %v", err)
	}
}
