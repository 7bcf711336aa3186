package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/syncer"
	nudgeservice "retention_backend/internal/nudge/service"
	"retention_backend/platform/apperr"
	"retention_backend/platform/config"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Syncer runs account syncs.
type Syncer interface {
	Run(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, opts syncer.Options) (syncer.Summary, error)
	Resume(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) (syncer.Summary, error)
	RetryFailed(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) (syncer.Summary, error)
}

// NudgeEvaluator runs one outreach evaluation.
type NudgeEvaluator interface {
	Evaluate(ctx context.Context, ownerID uuid.UUID, availability nudgeservice.Availability) (nudgeservice.Decision, error)
}

// WorkerDeps are the services the task handlers drive.
type WorkerDeps struct {
	Syncer       Syncer
	Integrations repository.IntegrationStore
	Enqueuer     SyncEnqueuer
	Nudges       NudgeEvaluator
	Redis        *redis.Client
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	deps    WorkerDeps
	lockTTL time.Duration
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deps WorkerDeps, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	// Concurrency bounds how many accounts sync at once.
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 4
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		Logger: asynqLogger{log},
	})

	w := newWorker(deps, cfg.GetSyncLockTTL(), log)
	w.server = server
	return w, nil
}

func newWorker(deps WorkerDeps, lockTTL time.Duration, log *logger.Logger) *Worker {
	if lockTTL <= 0 {
		lockTTL = defaultUniqueTTL
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		mux:     mux,
		deps:    deps,
		lockTTL: lockTTL,
		log:     log,
	}

	mux.HandleFunc(TaskBookingSyncAccount, w.handleBookingSync)
	mux.HandleFunc(TaskBookingSyncResume, w.handleBookingResume)
	mux.HandleFunc(TaskBookingSyncFanout, w.handleBookingFanout)
	mux.HandleFunc(TaskNudgeEvaluate, w.handleNudgeEvaluate)

	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleBookingSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBookingSyncPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	ownerID := uuid.MustParse(payload.OwnerID)
	platform := domain.Platform(payload.Platform)

	return w.withOwnerLock(ctx, ownerID, platform, func(ctx context.Context) error {
		_, err := w.deps.Syncer.Run(ctx, ownerID, platform, syncer.Options{
			MonthsBack: payload.MonthsBack,
			Force:      payload.Force,
		})
		return taskError(err)
	})
}

func (w *Worker) handleBookingResume(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBookingResumePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	ownerID := uuid.MustParse(payload.OwnerID)
	platform := domain.Platform(payload.Platform)

	return w.withOwnerLock(ctx, ownerID, platform, func(ctx context.Context) error {
		if payload.RetryFailed {
			_, err := w.deps.Syncer.RetryFailed(ctx, ownerID, platform)
			return taskError(err)
		}
		_, err := w.deps.Syncer.Resume(ctx, ownerID, platform)
		return taskError(err)
	})
}

// handleBookingFanout queues a sync for every active integration.
func (w *Worker) handleBookingFanout(ctx context.Context, _ *asynq.Task) error {
	integrations, err := w.deps.Integrations.ListActiveIntegrations(ctx)
	if err != nil {
		return err
	}

	queued := 0
	for _, in := range integrations {
		_, err := w.deps.Enqueuer.EnqueueSync(ctx, BookingSyncPayload{
			OwnerID:  in.OwnerID.String(),
			Platform: string(in.Platform),
		})
		if apperr.Is(err, apperr.KindConflict) {
			continue
		}
		if err != nil {
			w.log.Error("enqueue account sync",
				slog.String("owner_id", in.OwnerID.String()),
				slog.String("platform", string(in.Platform)),
				slog.String("error", err.Error()),
			)
			continue
		}
		queued++
	}

	w.log.Info("booking sync fanout", slog.Int("integrations", len(integrations)), slog.Int("queued", queued))
	return nil
}

func (w *Worker) handleNudgeEvaluate(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNudgeEvaluatePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	_, err = w.deps.Nudges.Evaluate(ctx, uuid.MustParse(payload.OwnerID), nudgeservice.Availability{
		OpenSlots:           payload.OpenSlots,
		RevenuePerSlotCents: payload.RevenuePerSlotCents,
	})
	return taskError(err)
}

// withOwnerLock runs fn while holding the owner's sync lock. A task that
// finds the lock taken is dropped; the holder covers the same periods.
func (w *Worker) withOwnerLock(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, fn func(context.Context) error) error {
	if w.deps.Redis == nil {
		return fn(ctx)
	}

	ok, err := RunLocked(ctx, w.deps.Redis, ownerID, w.lockTTL, w.log, fn)
	if !ok && err == nil {
		w.log.Info("owner sync already running",
			slog.String("owner_id", ownerID.String()),
			slog.String("platform", string(platform)),
		)
	}
	return err
}

// taskError lets asynq retry transient failures only.
func taskError(err error) error {
	if err == nil {
		return nil
	}
	if apperr.IsTransient(err) {
		return err
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Error(fmt.Sprint(args...)) }
