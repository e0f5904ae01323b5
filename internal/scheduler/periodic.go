package scheduler

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Cron specs, evaluated in the business timezone.
const (
	metricsRollupCron = "59 23 * * *"
	scoreDecayCron    = "0 0 * * 0"
)

// Periodic enqueues the daily metrics rollup and the weekly score decay.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, loc *time.Location, log *logger.Logger) (*Periodic, error) {
	opt, queue, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: loc})

	rollup, err := NewMetricsRollupTask(MetricsRollupPayload{})
	if err != nil {
		return nil, err
	}
	if _, err := s.Register(metricsRollupCron, rollup, asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register metrics rollup: %w", err)
	}
	if _, err := s.Register(scoreDecayCron, NewScoreDecayTask(), asynq.Queue(queue), asynq.MaxRetry(1)); err != nil {
		return nil, fmt.Errorf("register score decay: %w", err)
	}

	return &Periodic{scheduler: s, log: log}, nil
}

// Run enqueues periodic tasks until ctx is cancelled.
func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
		return
	}
	p.log.Info("periodic scheduler started", "rollup", metricsRollupCron, "decay", scoreDecayCron)
	<-ctx.Done()
	p.scheduler.Shutdown()
}
