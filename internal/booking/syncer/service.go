// Package syncer orchestrates booking syncs. Each owner's history is split
// into monthly periods that are fetched newest first; every period runs
// fetch, resolve, reconcile and aggregate recompute, and its progress is
// persisted so an interrupted run can be resumed.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"retention_backend/internal/archive"
	"retention_backend/internal/booking/adapters"
	"retention_backend/internal/booking/adapters/apiclient"
	"retention_backend/internal/booking/aggregates"
	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/reconciler"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/resolver"
	"retention_backend/internal/events"
	"retention_backend/platform/apperr"
	"retention_backend/platform/config"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// ErrAccountWide marks failures that stop every remaining period of a run.
var ErrAccountWide = errors.New("account-wide sync failure")

// Options tune one Run. Zero values fall back to the service defaults.
type Options struct {
	MonthsBack     int
	PriorityMonths int
	// Force re-processes completed background periods too. Priority periods
	// are still open to new bookings and edits and always run.
	Force bool
	Now   time.Time
}

// Backoff holds the retry delays. Priority periods retry at a constant delay,
// background periods back off exponentially up to BackgroundMax.
type Backoff struct {
	PriorityDelay  time.Duration
	BackgroundBase time.Duration
	BackgroundMax  time.Duration
}

// Service runs booking syncs.
type Service struct {
	store      repository.Store
	adapters   *adapters.Registry
	resolver   *resolver.Resolver
	aggregates *aggregates.Maintainer
	archive    archive.Archiver
	bus        events.Bus
	log        *logger.Logger

	backoff  Backoff
	defaults Options
	now      func() time.Time
}

// New creates a sync service.
func New(store repository.Store, registry *adapters.Registry, cfg config.SyncConfig, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		adapters:   registry,
		resolver:   resolver.New(store, log).WithAssignments(store),
		aggregates: aggregates.NewMaintainer(store, log),
		log:        log,
		backoff: Backoff{
			PriorityDelay:  cfg.GetSyncPriorityRetryDelay(),
			BackgroundBase: cfg.GetSyncBackgroundRetryBase(),
			BackgroundMax:  cfg.GetSyncBackgroundRetryMax(),
		},
		defaults: Options{
			MonthsBack:     cfg.GetSyncMonthsBack(),
			PriorityMonths: cfg.GetSyncPriorityMonths(),
		},
		now: time.Now,
	}
}

// WithArchive enables raw payload archiving.
func (s *Service) WithArchive(a archive.Archiver) *Service {
	s.archive = a
	return s
}

// WithEventBus publishes sync events on bus.
func (s *Service) WithEventBus(bus events.Bus) *Service {
	s.bus = bus
	return s
}

// WithBackoff overrides the retry delays.
func (s *Service) WithBackoff(b Backoff) *Service {
	s.backoff = b
	return s
}

type target struct {
	period   domain.Period
	priority bool
}

// Run syncs the most recent MonthsBack periods of one owner's platform. The
// PriorityMonths newest periods are always fetched again; older completed
// periods are skipped unless Force is set. The returned error is
// non-nil only for account-wide failures and cancellation; failed periods
// are reported in the Summary.
func (s *Service) Run(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, opts Options) (Summary, error) {
	opts = s.withDefaults(opts)

	periods := domain.PeriodsBack(opts.Now, opts.MonthsBack)
	targets := make([]target, 0, len(periods))
	for i, p := range periods {
		targets = append(targets, target{period: p, priority: i < opts.PriorityMonths})
	}

	return s.execute(ctx, ownerID, platform, targets, func(t target, st domain.PeriodStatus) bool {
		return opts.Force || t.priority || st.Status != domain.SyncCompleted
	})
}

// Resume continues every period left pending, processing or retrying by an
// interrupted run. Completed and failed periods are not touched.
func (s *Service) Resume(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) (Summary, error) {
	return s.rerun(ctx, ownerID, platform, func(st domain.SyncStatus) bool { return st.Resumable() })
}

// RetryFailed re-runs every period parked in the failed state.
func (s *Service) RetryFailed(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) (Summary, error) {
	return s.rerun(ctx, ownerID, platform, func(st domain.SyncStatus) bool { return st == domain.SyncFailed })
}

// Status lists the tracked periods, newest first.
func (s *Service) Status(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) ([]domain.PeriodStatus, error) {
	if _, err := s.adapters.Get(platform); err != nil {
		return nil, err
	}
	return s.store.ListPeriods(ctx, ownerID, platform)
}

func (s *Service) rerun(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, want func(domain.SyncStatus) bool) (Summary, error) {
	existing, err := s.store.ListPeriods(ctx, ownerID, platform)
	if err != nil {
		return Summary{OwnerID: ownerID, Platform: platform}, fmt.Errorf("list sync periods: %w", err)
	}

	targets := make([]target, 0, len(existing))
	for _, st := range existing {
		if want(st.Status) {
			targets = append(targets, target{period: st.Period, priority: st.Priority})
		}
	}
	return s.execute(ctx, ownerID, platform, targets, func(target, domain.PeriodStatus) bool { return true })
}

func (s *Service) withDefaults(opts Options) Options {
	if opts.MonthsBack <= 0 {
		opts.MonthsBack = s.defaults.MonthsBack
	}
	if opts.PriorityMonths <= 0 {
		opts.PriorityMonths = s.defaults.PriorityMonths
	}
	if opts.PriorityMonths > opts.MonthsBack {
		opts.PriorityMonths = opts.MonthsBack
	}
	if opts.Now.IsZero() {
		opts.Now = s.now()
	}
	return opts
}

func (s *Service) execute(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, targets []target, shouldRun func(target, domain.PeriodStatus) bool) (Summary, error) {
	started := s.now()
	summary := Summary{OwnerID: ownerID, Platform: platform}
	log := s.log.WithOwnerID(ownerID.String())

	if ownerID == uuid.Nil {
		return summary, apperr.PermanentInput("owner scope is required", nil).WithOp("syncer.Run")
	}

	adapter, err := s.adapters.Get(platform)
	if err != nil {
		return summary, err
	}
	integration, err := s.store.GetIntegration(ctx, ownerID, platform)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrAccountWide, err)
	}
	if !integration.Active {
		return summary, apperr.Conflict("integration is disabled")
	}

	// Every period is tracked before any work starts so an interrupted run
	// leaves the untouched ones pending for Resume.
	statuses := make([]domain.PeriodStatus, len(targets))
	for i, t := range targets {
		status, err := s.store.EnsurePeriod(ctx, ownerID, platform, t.period, t.priority)
		if err != nil {
			return summary, fmt.Errorf("%w: %w", ErrAccountWide, err)
		}
		statuses[i] = status
	}

	var runErr error
	for i, t := range targets {
		if !shouldRun(t, statuses[i]) {
			summary.PeriodsSkipped++
			continue
		}

		result, err := s.processPeriod(ctx, integration, adapter, t)
		if err == nil {
			summary.add(result)
			log.SyncPeriod(string(platform), string(t.period), string(domain.SyncCompleted),
				result.fetched, result.reconcile.TotalProcessed, result.reconcile.Skipped)
			continue
		}

		if ctx.Err() != nil {
			// Status stays processing/retrying so Resume picks the period up.
			runErr = ctx.Err()
			break
		}

		reason := err.Error()
		if markErr := s.store.MarkFailed(context.WithoutCancel(ctx), ownerID, platform, t.period, reason); markErr != nil {
			log.Error("mark period failed", slog.String("period", string(t.period)), slog.String("error", markErr.Error()))
		}
		summary.fail(t.period, reason)
		log.SyncPeriod(string(platform), string(t.period), string(domain.SyncFailed), 0, 0, 0)
		s.publish(ctx, events.BookingPeriodFailed{
			BaseEvent: events.NewBaseEvent(),
			OwnerID:   ownerID,
			Platform:  string(platform),
			Period:    string(t.period),
			Reason:    reason,
		})

		if accountWide(err) {
			runErr = err
			break
		}
	}

	summary.Duration = s.now().Sub(started)
	s.publish(ctx, summary.event())
	log.Info("booking sync finished",
		slog.String("platform", string(platform)),
		slog.Int("fetched", summary.Fetched),
		slog.Int("new_clients", summary.NewClients),
		slog.Int("upserted", summary.AppointmentsUpserted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("revenue_preserved", summary.RevenuePreserved),
		slog.Int("periods_completed", summary.PeriodsCompleted),
		slog.Int("periods_failed", summary.PeriodsFailed),
	)
	return summary, runErr
}

func accountWide(err error) bool {
	return errors.Is(err, ErrAccountWide) || apiclient.IsAccountWide(err)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

func (s *Service) backoffFor(priority bool) retry.Backoff {
	if priority {
		return retry.NewConstant(positive(s.backoff.PriorityDelay, 2*time.Second))
	}
	base := positive(s.backoff.BackgroundBase, time.Second)
	return retry.WithCappedDuration(positive(s.backoff.BackgroundMax, 30*time.Second), retry.NewExponential(base))
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// processPeriod retries transient failures without a count limit; each retry
// is recorded on the period so operators can see it is still trying.
func (s *Service) processPeriod(ctx context.Context, integration domain.Integration, adapter domain.Adapter, t target) (periodResult, error) {
	ownerID, platform := integration.OwnerID, integration.Platform

	return retry.DoValue(ctx, s.backoffFor(t.priority), func(ctx context.Context) (periodResult, error) {
		result, err := s.syncPeriod(ctx, integration, adapter, t.period)
		if err == nil {
			return result, nil
		}
		if !apperr.IsTransient(err) {
			return periodResult{}, err
		}

		if markErr := s.store.MarkRetrying(ctx, ownerID, platform, t.period, err.Error()); markErr != nil {
			s.log.Warn("mark period retrying", slog.String("period", string(t.period)), slog.String("error", markErr.Error()))
		}
		s.log.Warn("sync period retrying",
			slog.String("owner_id", ownerID.String()),
			slog.String("period", string(t.period)),
			slog.Bool("priority", t.priority),
			slog.String("error", err.Error()),
		)
		return periodResult{}, retry.RetryableError(err)
	})
}

func (s *Service) syncPeriod(ctx context.Context, integration domain.Integration, adapter domain.Adapter, period domain.Period) (periodResult, error) {
	ownerID, platform := integration.OwnerID, integration.Platform

	if err := s.store.MarkProcessing(ctx, ownerID, platform, period); err != nil {
		return periodResult{}, storeError("mark processing", err)
	}

	window, err := period.Window()
	if err != nil {
		return periodResult{}, apperr.PermanentInput("invalid period", err)
	}

	fetched, err := adapter.Fetch(ctx, integration, window)
	if err != nil {
		return periodResult{}, err
	}

	if s.archive != nil && len(fetched.Raw) > 0 {
		if _, err := s.archive.Store(ctx, ownerID, string(platform), string(period), fetched.Raw); err != nil {
			s.log.Warn("archive raw payload", slog.String("period", string(period)), slog.String("error", err.Error()))
		}
	}

	res, err := s.resolver.Resolve(ctx, ownerID, fetched.Appointments)
	if err != nil {
		if apperr.IsTransient(err) {
			return periodResult{}, err
		}
		return periodResult{}, fmt.Errorf("%w: %w", ErrAccountWide, err)
	}

	clients := make([]domain.Client, 0, len(res.Clients))
	for _, c := range res.Clients {
		clients = append(clients, *c)
	}
	if err := s.store.UpsertClients(ctx, ownerID, clients); err != nil {
		return periodResult{}, storeError("upsert clients", err)
	}

	rec := reconciler.New(s.store, ownerID, s.log)
	rec.Process(fetched.Appointments, res)
	reconciled, err := rec.Upsert(ctx)
	if err != nil {
		return periodResult{}, err
	}

	// Clients that lost an appointment to another client need their totals
	// rebuilt as well.
	touched := res.ClientIDs()
	for _, id := range reconciled.ReassignedFrom {
		if _, ok := res.Clients[id]; !ok {
			touched = append(touched, id)
		}
	}
	if _, err := s.aggregates.Recompute(ctx, ownerID, touched); err != nil {
		return periodResult{}, err
	}

	counts := domain.PeriodCounts{
		Fetched:  len(fetched.Appointments),
		Upserted: reconciled.TotalProcessed,
		Skipped:  reconciled.Skipped,
	}
	if err := s.store.MarkCompleted(ctx, ownerID, platform, period, counts); err != nil {
		return periodResult{}, storeError("mark completed", err)
	}

	return periodResult{fetched: len(fetched.Appointments), resolution: res, reconcile: reconciled}, nil
}

func storeError(msg string, err error) error {
	if apperr.IsTransient(err) {
		return apperr.Transient(msg, err)
	}
	return apperr.Persistence(msg, err)
}
