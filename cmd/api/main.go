package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retention_backend/internal/archive"
	"retention_backend/internal/booking"
	"retention_backend/internal/booking/adapters"
	"retention_backend/internal/booking/adapters/acuity"
	"retention_backend/internal/booking/adapters/square"
	bookingrepo "retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/syncer"
	"retention_backend/internal/events"
	apphttp "retention_backend/internal/http"
	"retention_backend/internal/http/router"
	"retention_backend/internal/nudge"
	"retention_backend/internal/nudge/holidays"
	nudgerepo "retention_backend/internal/nudge/repository"
	nudgeservice "retention_backend/internal/nudge/service"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/config"
	"retention_backend/platform/db"
	"retention_backend/platform/logger"
	"retention_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	var rawArchive archive.Archiver
	if cfg.IsMinIOEnabled() {
		store, err := archive.NewMinIO(cfg)
		if err != nil {
			log.Error("failed to initialize raw payload archive", "error", err)
			panic("failed to initialize raw payload archive: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure raw payload bucket", 5, 2*time.Second, func() error {
			return store.EnsureBucketExists(ctx)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketRawPayloads())
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		rawArchive = store
		log.Info("raw payload archive initialized", "bucket", cfg.GetMinioBucketRawPayloads())
	} else {
		log.Warn("MINIO_ENDPOINT not configured; raw payload archive disabled")
	}

	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer func() { _ = queue.Close() }()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	bookingStore := bookingrepo.New(pool)
	registry := adapters.NewRegistry(acuity.New(cfg), square.New(cfg))
	syncSvc := syncer.New(bookingStore, registry, cfg, log).WithEventBus(eventBus)
	if rawArchive != nil {
		syncSvc.WithArchive(rawArchive)
	}
	bookingModule := booking.NewModule(syncSvc, bookingStore, queue, rawArchive, val)

	calendar, err := holidays.Load(cfg.GetNudgeHolidaysFile())
	if err != nil {
		log.Error("failed to load holiday calendar", "error", err, "file", cfg.GetNudgeHolidaysFile())
		panic("failed to load holiday calendar: " + err.Error())
	}
	selector := nudgeservice.New(nudgerepo.New(pool), calendar, cfg.GetNudgeHolidayBufferDays(), log)
	trigger := nudgeservice.NewTrigger(selector, eventBus, cfg, log)
	nudgeModule := nudge.NewModule(selector, trigger, queue, val)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Ready:  pool,
		Modules: []apphttp.Module{
			bookingModule,
			nudgeModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
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
