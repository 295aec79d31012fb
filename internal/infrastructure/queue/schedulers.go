package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"storefront-backend/internal/config"
	"storefront-backend/internal/shared"
	"storefront-backend/pkg/logger"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
	jobConfig config.JobConfig
}

func NewScheduler(redisOpt asynq.RedisClientOpt, jobConfig config.JobConfig) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		jobConfig: jobConfig,
	}
}

func (s *Scheduler) RegisterOrderJobs() error {
	if err := s.registerAutoCancelPendingJob(); err != nil {
		return err
	}

	if err := s.registerReconcileSweepJob(); err != nil {
		return err
	}

	return nil
}

// ================================================
// JOB 1: Auto-cancel stale pending orders
// ================================================
func (s *Scheduler) registerAutoCancelPendingJob() error {
	payload, err := json.Marshal(shared.AutoCancelPendingPayload{
		Limit: s.jobConfig.AutoCancelLimit,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeAutoCancelPending, payload)

	_, err = s.scheduler.Register(
		s.jobConfig.AutoCancelCron,
		task,
		asynq.Queue(shared.QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
		// overlapping runs would fight over the same rows
		asynq.Unique(5*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register AutoCancelPending job", err)
		return err
	}

	logger.Info("✓ Registered AutoCancelPending", map[string]interface{}{
		"cron":  s.jobConfig.AutoCancelCron,
		"limit": s.jobConfig.AutoCancelLimit,
	})
	return nil
}

// ================================================
// JOB 2: Sweep reversed orders that were never reconciled
// ================================================
func (s *Scheduler) registerReconcileSweepJob() error {
	payload, err := json.Marshal(shared.ReconcileSweepPayload{
		Limit: s.jobConfig.ReconcileLimit,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeReconcileSweep, payload)

	_, err = s.scheduler.Register(
		s.jobConfig.ReconcileSweepCron,
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register ReconcileSweep job", err)
		return err
	}

	logger.Info("✓ Registered ReconcileSweep", map[string]interface{}{
		"cron":  s.jobConfig.ReconcileSweepCron,
		"limit": s.jobConfig.ReconcileLimit,
	})
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
