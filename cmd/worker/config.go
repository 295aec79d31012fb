package main

import (
	"log"
	"os"
	"strconv"

	"storefront-backend/internal/config"
)

// Config holds worker-only settings. Shared settings come from the container.
type Config struct {
	RedisAddr   string
	Concurrency int
	HealthAddr  string
	Job         config.JobConfig
}

func loadConfig(appCfg *config.Config) *Config {
	cfg := &Config{
		RedisAddr:   appCfg.Redis.Host,
		Concurrency: getEnvInt("WORKER_CONCURRENCY", 20),
		HealthAddr:  getEnv("WORKER_HEALTH_ADDR", ":9999"),
		Job:         appCfg.Job,
	}

	log.Printf("[Config] Redis: %s, concurrency: %d, health: %s",
		cfg.RedisAddr, cfg.Concurrency, cfg.HealthAddr)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
