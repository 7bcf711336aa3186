package scheduler

import (
	"context"
	"fmt"

	"retention_backend/platform/config"
	"retention_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the booking fan-out on the configured cron schedule.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: asynqLogger{log}})
	cronExpr := cfg.GetSyncFanoutCron()
	if cronExpr == "" {
		cronExpr = "0 */6 * * *"
	}
	if _, err := s.Register(cronExpr, NewBookingFanoutTask(), asynq.Queue(queue), asynq.Unique(defaultUniqueTTL)); err != nil {
		return nil, fmt.Errorf("register booking fanout %q: %w", cronExpr, err)
	}

	return &Periodic{scheduler: s, log: log}, nil
}

// Run blocks until ctx is cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	if err := p.scheduler.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
	return nil
}
