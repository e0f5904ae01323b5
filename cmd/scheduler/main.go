package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	"outreach_backend/internal/notification"
	"outreach_backend/internal/notification/outbox"
	"outreach_backend/internal/outreach"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/internal/scheduler"
	"outreach_backend/internal/sms"
	"outreach_backend/internal/voice"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/lock"
	"outreach_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.GetSequenceInterval(), "timezone", cfg.GetTimezone())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil || redisClient == nil {
		log.Error("redis is required by the scheduler", "error", err)
		panic("redis is required by the scheduler")
	}
	defer func() { _ = redisClient.Close() }()

	loc, err := time.LoadLocation(cfg.GetTimezone())
	if err != nil {
		panic("failed to load timezone: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)
	repo := repository.New(pool)
	sender := email.NewSender(cfg, log)

	notificationModule := notification.New(outbox.New(pool), repo, sender, cfg, log)
	notificationModule.SetBus(eventBus)
	notificationModule.RegisterHandlers(eventBus)

	providers := outreach.Providers{Email: sender}
	if c := sms.NewClient(cfg, log); c != nil {
		providers.SMS = c
	}
	if c := voice.NewClient(cfg, log); c != nil {
		providers.Call = c
	}

	outreachModule, err := outreach.NewModule(repo, notificationModule, providers, cfg, lock.NewFactory(redisClient, pool, cfg.GetTickLockTTL()), eventBus, log)
	if err != nil {
		log.Error("failed to initialize outreach module", "error", err)
		panic("failed to initialize outreach module: " + err.Error())
	}
	notificationModule.SetAutoActionSender(outreachModule.SMSSender())

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()

	rollup := scheduler.NewMetricsRollup(repo, loc, log)
	worker, err := scheduler.NewWorker(cfg, eventBus, rollup, outreachModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, loc, log)
	if err != nil {
		log.Error("failed to initialize periodic jobs", "error", err)
		panic("failed to initialize periodic jobs: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { outreachModule.Runner().Run(gctx); return nil })
	g.Go(func() error { dispatcher.Run(gctx); return nil })
	g.Go(func() error { worker.Run(gctx); return nil })
	g.Go(func() error { periodic.Run(gctx); return nil })
	_ = g.Wait()

	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
