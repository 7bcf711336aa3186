package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retention_backend/internal/archive"
	"retention_backend/internal/booking/adapters"
	"retention_backend/internal/booking/adapters/acuity"
	"retention_backend/internal/booking/adapters/square"
	bookingrepo "retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/syncer"
	"retention_backend/internal/events"
	"retention_backend/internal/nudge/holidays"
	nudgerepo "retention_backend/internal/nudge/repository"
	nudgeservice "retention_backend/internal/nudge/service"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/config"
	"retention_backend/platform/db"
	"retention_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

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

	eventBus := events.NewInMemoryBus(log)
	registerEventLogging(eventBus, log)

	redisClient, err := scheduler.RedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer func() { _ = queue.Close() }()

	bookingStore := bookingrepo.New(pool)
	registry := adapters.NewRegistry(acuity.New(cfg), square.New(cfg))
	syncSvc := syncer.New(bookingStore, registry, cfg, log).WithEventBus(eventBus)
	if cfg.IsMinIOEnabled() {
		store, err := archive.NewMinIO(cfg)
		if err != nil {
			log.Error("failed to initialize raw payload archive", "error", err)
			panic("failed to initialize raw payload archive: " + err.Error())
		}
		syncSvc.WithArchive(store)
	}

	calendar, err := holidays.Load(cfg.GetNudgeHolidaysFile())
	if err != nil {
		log.Error("failed to load holiday calendar", "error", err, "file", cfg.GetNudgeHolidaysFile())
		panic("failed to load holiday calendar: " + err.Error())
	}
	selector := nudgeservice.New(nudgerepo.New(pool), calendar, cfg.GetNudgeHolidayBufferDays(), log)

	worker, err := scheduler.NewWorker(cfg, scheduler.WorkerDeps{
		Syncer:       syncSvc,
		Integrations: bookingStore,
		Enqueuer:     queue,
		Nudges:       nudgeservice.NewTrigger(selector, eventBus, cfg, log),
		Redis:        redisClient,
	}, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return periodic.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
	}
	eventBus.Wait()
}

// registerEventLogging records sync and selection outcomes. Message delivery
// subscribes to the same events elsewhere.
func registerEventLogging(bus *events.InMemoryBus, log *logger.Logger) {
	bus.Subscribe(events.BookingSyncCompleted{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.BookingSyncCompleted)
		if !ok {
			return nil
		}
		log.WithOwnerID(e.OwnerID.String()).Info("booking sync completed",
			"platform", e.Platform,
			"fetched", e.Fetched,
			"upserted", e.AppointmentsUpserted,
			"periods_completed", e.PeriodsCompleted,
			"periods_failed", e.PeriodsFailed,
			"duration", e.Duration.String(),
		)
		return nil
	}))
	bus.Subscribe(events.BookingPeriodFailed{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.BookingPeriodFailed)
		if !ok {
			return nil
		}
		log.WithOwnerID(e.OwnerID.String()).Warn("booking period failed", "platform", e.Platform, "period", e.Period, "reason", e.Reason)
		return nil
	}))
	bus.Subscribe(events.NudgeCandidatesSelected{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.NudgeCandidatesSelected)
		if !ok {
			return nil
		}
		log.WithOwnerID(e.OwnerID.String()).Info("nudge candidates selected",
			"open_slots", e.OpenSlots,
			"limit", e.Limit,
			"recipients", len(e.Recipients),
			"total_available", e.TotalAvailableClients,
		)
		return nil
	}))
}

// withRetry runs fn up to attempts times with exponential backoff from baseDelay.
func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := fn(); err != nil {
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return errors.New(name + ": " + err.Error())
	}
	return nil
}
