package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config is populated from environment variables.
type Config struct {
	App   AppConfig
	Redis RedisConfig
	JWT   JWTConfig
	Store StoreConfig
	Order OrderConfig
	Job   JobConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
	LogLevel    string
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	AccessTokenExpiry int // minutes
}

// StoreConfig selects the repository backend.
type StoreConfig struct {
	Driver string // postgres | memory
}

// OrderConfig holds pricing and lifecycle knobs for the order engine.
type OrderConfig struct {
	ShippingFee       decimal.Decimal
	PendingTTL        time.Duration // unpaid online orders older than this get auto-cancelled
	IdempotencyTTL    time.Duration
	InventoryCacheTTL time.Duration
}

// JobConfig drives the worker scheduler.
type JobConfig struct {
	AutoCancelCron     string
	AutoCancelLimit    int
	ReconcileSweepCron string
	ReconcileLimit     int
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Load reads config from the environment and validates it.
func Load() (*Config, error) {
	shippingFee, err := decimal.NewFromString(getEnv("ORDER_SHIPPING_FEE", "30000"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORDER_SHIPPING_FEE: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Storefront API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenExpiry: getEnvInt("JWT_ACCESS_EXPIRY", 15),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Order: OrderConfig{
			ShippingFee:       shippingFee,
			PendingTTL:        getEnvDuration("ORDER_PENDING_TTL", 30*time.Minute),
			IdempotencyTTL:    getEnvDuration("ORDER_IDEMPOTENCY_TTL", 24*time.Hour),
			InventoryCacheTTL: getEnvDuration("INVENTORY_CACHE_TTL", 5*time.Minute),
		},
		Job: JobConfig{
			AutoCancelCron:     getEnv("JOB_AUTO_CANCEL_CRON", "*/10 * * * *"),
			AutoCancelLimit:    getEnvInt("JOB_AUTO_CANCEL_LIMIT", 100),
			ReconcileSweepCron: getEnv("JOB_RECONCILE_SWEEP_CRON", "*/30 * * * *"),
			ReconcileLimit:     getEnvInt("JOB_RECONCILE_LIMIT", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Store.Driver != StoreDriverPostgres && c.Store.Driver != StoreDriverMemory {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver)
	}
	if c.Order.ShippingFee.IsNegative() {
		return fmt.Errorf("ORDER_SHIPPING_FEE cannot be negative")
	}

	if c.App.Environment == "production" {
		if c.JWT.Secret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Store.Driver == StoreDriverMemory {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
