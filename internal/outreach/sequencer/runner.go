package sequencer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/config"
	"outreach_backend/platform/lock"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// ReasonTickInProgress is reported when another tick still holds the lock.
const ReasonTickInProgress = "tick_in_progress"

const tickLockKey = "outreach:sequence-tick"

// Trigger names for logs and events.
const (
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// PauseReader reads the emergency pause flag.
type PauseReader interface {
	IsSystemPaused(ctx context.Context) (bool, error)
}

// Runner drives the scheduler on an interval and on demand. Overlapping
// ticks are skipped: an in-process flag covers this process and the
// distributed lock covers other replicas.
type Runner struct {
	scheduler *Scheduler
	settings  PauseReader
	cfg       config.SequencerConfig
	locks     lock.Factory
	bus       events.Bus
	now       func() time.Time
	running   atomic.Bool
	log       *logger.Logger
}

type RunnerOption func(*Runner)

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithRunnerBus publishes SequenceBatchCompleted after every tick.
func WithRunnerBus(bus events.Bus) RunnerOption {
	return func(r *Runner) { r.bus = bus }
}

// NewRunner wires a runner. A nil lock factory disables the cross-process lock.
func NewRunner(scheduler *Scheduler, settings PauseReader, cfg config.SequencerConfig, locks lock.Factory, log *logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		scheduler: scheduler,
		settings:  settings,
		cfg:       cfg,
		locks:     locks,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run ticks immediately and then every configured interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	interval := r.cfg.GetSequenceInterval()
	r.log.Info("sequence runner started", "interval", interval.String(), "batchSize", r.cfg.GetSequenceBatchSize())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx, TriggerInterval); err != nil && ctx.Err() == nil {
			r.log.Error("sequence tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.log.Info("sequence runner stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs exactly one batch. The pause flag is read before the lock so a
// paused system does no work at all.
func (r *Runner) Tick(ctx context.Context, trigger string) (BatchResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return BatchResult{Reason: ReasonTickInProgress}, nil
	}
	defer r.running.Store(false)

	started := time.Now()
	ctx = context.WithValue(ctx, logger.TickIDKey, uuid.NewString())
	log := r.log.WithContext(ctx)
	paused, err := r.settings.IsSystemPaused(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("read pause flag: %w", err)
	}

	var result BatchResult
	if paused {
		result = r.scheduler.RunBatch(ctx, SchedulerContext{Paused: true})
	} else {
		if r.locks != nil {
			l := r.locks(tickLockKey)
			ok, err := l.Acquire(ctx)
			if err != nil {
				return BatchResult{}, err
			}
			if !ok {
				log.Info("sequence tick skipped, another tick holds the lock", "trigger", trigger)
				return BatchResult{Reason: ReasonTickInProgress}, nil
			}
			defer func() {
				if err := l.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release tick lock failed", "error", err)
				}
			}()
		}
		result = r.scheduler.RunBatch(ctx, r.context())
	}

	log.SchedulerBatch(trigger, result.Processed, result.Skipped, result.Deferred, result.Failed, result.Errors, result.Reason, time.Since(started))
	if r.bus != nil {
		r.bus.Publish(ctx, events.SequenceBatchCompleted{
			BaseEvent: events.NewBaseEvent(),
			Trigger:   trigger,
			Processed: result.Processed,
			Skipped:   result.Skipped,
			Deferred:  result.Deferred,
			Failed:    result.Failed,
			Completed: result.Completed,
			Errors:    result.Errors,
			Reason:    result.Reason,
		})
	}
	return result, nil
}

func (r *Runner) context() SchedulerContext {
	limits := make(map[domain.ActivityChannel]int)
	for channel, limit := range r.cfg.GetDailyLimits() {
		limits[domain.ActivityChannel(channel)] = limit
	}
	return SchedulerContext{
		Now:         r.now(),
		BatchSize:   r.cfg.GetSequenceBatchSize(),
		Limits:      limits,
		SendTimeout: r.cfg.GetSendTimeout(),
	}
}
