package scheduler

import (
	"context"
	"time"

	"outreach_backend/internal/notification/outbox"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outboxPollInterval = 2 * time.Second
	outboxClaimBatch   = 50
	// Rows untouched this long while enqueued or processing are assumed lost.
	outboxStallAfter = 10 * time.Minute
	// Stalled rows are swept every this many polls.
	outboxSweepEvery = 30
)

type outboxQueue interface {
	ClaimDue(ctx context.Context, limit int) ([]outbox.Record, error)
	Release(ctx context.Context, id uuid.UUID, lastError string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NotificationOutboxDispatcher polls the outbox and pushes due rows onto the
// task queue, where Worker turns them into NotificationOutboxDue events.
type NotificationOutboxDispatcher struct {
	client *asynq.Client
	enq    taskEnqueuer
	queue  string
	repo   outboxQueue
	log    *logger.Logger
}

func NewNotificationOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*NotificationOutboxDispatcher, error) {
	opt, queue, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}
	client := asynq.NewClient(opt)
	return &NotificationOutboxDispatcher{
		client: client,
		enq:    client,
		queue:  queue,
		repo:   outbox.New(pool),
		log:    log,
	}, nil
}

func (d *NotificationOutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Run polls until ctx is cancelled.
func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.enq == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()

	for polls := 0; ; polls++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if polls%outboxSweepEvery == 0 {
			d.sweep(ctx)
		}
		d.dispatch(ctx)
	}
}

// dispatch claims one batch and enqueues it. It returns how many rows made it
// onto the queue.
func (d *NotificationOutboxDispatcher) dispatch(ctx context.Context) int {
	records, err := d.repo.ClaimDue(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		if err := d.enqueue(ctx, rec); err != nil {
			d.log.Warn("outbox enqueue failed", "outboxId", rec.ID, "kind", rec.Kind, "error", err)
			if relErr := d.repo.Release(ctx, rec.ID, err.Error()); relErr != nil {
				d.log.Error("outbox release failed", "outboxId", rec.ID, "error", relErr)
			}
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		d.log.Debug("outbox records enqueued", "count", enqueued)
	}
	return enqueued
}

func (d *NotificationOutboxDispatcher) enqueue(ctx context.Context, rec outbox.Record) error {
	task, err := NewNotificationOutboxDueTask(rec.ID)
	if err != nil {
		return err
	}
	_, err = d.enq.EnqueueContext(ctx, task, asynq.ProcessAt(rec.RunAt), asynq.Queue(d.queue))
	return err
}

func (d *NotificationOutboxDispatcher) sweep(ctx context.Context) {
	n, err := d.repo.RequeueStale(ctx, outboxStallAfter)
	if err != nil {
		d.log.Warn("outbox stall sweep failed", "error", err)
		return
	}
	if n > 0 {
		d.log.Warn("requeued stalled outbox records", "count", n)
	}
}
