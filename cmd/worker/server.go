package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"storefront-backend/internal/shared"
	"storefront-backend/pkg/container"
	"storefront-backend/pkg/logger"
)

// asynqServer wraps asynq.Server with lifecycle logging
type asynqServer struct {
	*asynq.Server
}

// setupAsynqServer creates the server, registers handlers and starts it
func setupAsynqServer(c *container.Container, cfg *Config, handlers *HandlerRegistry) *asynqServer {
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	srv := asynq.NewServer(
		c.RedisClientOpt(),
		asynq.Config{
			Queues: map[string]int{
				shared.QueueCritical: 6,
				shared.QueueDefault:  3,
				shared.QueueLow:      1,
			},
			Concurrency:     cfg.Concurrency,
			ShutdownTimeout: 30 * time.Second,
			RetryDelayFunc:  retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.ErrorWithFields("task failed", err, map[string]interface{}{
					"type":      task.Type(),
					"retried":   retried,
					"max_retry": maxRetry,
					"skip":      errors.Is(err, asynq.SkipRetry),
				})
			}),
		},
	)

	go func() {
		log.Println("[Worker] Starting...")
		if err := srv.Run(mux); err != nil {
			log.Fatalf("[Worker] Failed: %v", err)
		}
	}()

	return &asynqServer{Server: srv}
}

// retryDelay backs off reconciliation more slowly than the asynq default so a
// ledger outage is not hammered.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	if task.Type() == shared.TypeReconcileReversal {
		d := time.Duration(1<<min(n, 8)) * 10 * time.Second
		return min(d, time.Hour)
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

// Shutdown waits up to ShutdownTimeout for in-flight tasks
func (s *asynqServer) Shutdown() {
	log.Println("[Worker] Shutting down (waiting max 30s)...")
	s.Server.Shutdown()
	log.Println("[Worker] ✓ Gracefully stopped")
}
