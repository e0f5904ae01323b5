package scheduler

import (
	"context"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outreach/lifecycle"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// ScoreDecayer applies the weekly inactivity decay.
type ScoreDecayer interface {
	Decay(ctx context.Context) (lifecycle.DecayResult, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	bus     events.Bus
	rollup  *MetricsRollup
	decayer ScoreDecayer
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, rollup *MetricsRollup, decayer ScoreDecayer, log *logger.Logger) (*Worker, error) {
	opt, queue, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := &Worker{
		server:  server,
		mux:     asynq.NewServeMux(),
		bus:     bus,
		rollup:  rollup,
		decayer: decayer,
		log:     log,
	}
	w.routes()
	return w, nil
}

func (w *Worker) routes() {
	w.mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)
	w.mux.HandleFunc(TaskMetricsRollup, w.handleMetricsRollup)
	w.mux.HandleFunc(TaskScoreDecay, w.handleScoreDecay)
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  payload.OutboxID,
	})
}

func (w *Worker) handleMetricsRollup(ctx context.Context, task *asynq.Task) error {
	if w.rollup == nil {
		return nil
	}

	payload, err := ParseMetricsRollupPayload(task)
	if err != nil {
		return err
	}

	_, err = w.rollup.Run(ctx, payload.Day)
	return err
}

func (w *Worker) handleScoreDecay(ctx context.Context, _ *asynq.Task) error {
	if w.decayer == nil {
		return nil
	}

	_, err := w.decayer.Decay(ctx)
	return err
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
}
