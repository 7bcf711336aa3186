package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"retention_backend/internal/archive"
	"retention_backend/internal/booking/adapters"
	"retention_backend/internal/booking/adapters/acuity"
	"retention_backend/internal/booking/adapters/square"
	"retention_backend/internal/booking/domain"
	bookingrepo "retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/syncer"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/config"
	"retention_backend/platform/db"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

type account struct {
	ownerID  uuid.UUID
	platform domain.Platform
}

func main() {
	ownersFlag := flag.String("owners", "", "comma-separated owner IDs (default: every active integration)")
	platformFlag := flag.String("platform", "", "limit to one platform (acuity or square)")
	monthsBack := flag.Int("months", 0, "months of history to sync (default: SYNC_MONTHS_BACK)")
	force := flag.Bool("force", false, "re-sync periods that already completed")
	resume := flag.Bool("resume", false, "only finish periods left pending or retrying")
	retryFailed := flag.Bool("retry-failed", false, "only re-run failed periods")
	concurrency := flag.Int("concurrency", 4, "owners synced at once")
	lockWait := flag.Duration("lock-wait", 10*time.Minute, "how long to wait for an owner sync already running elsewhere")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting booking sync backfill")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	store := bookingrepo.New(pool)
	registry := adapters.NewRegistry(acuity.New(cfg), square.New(cfg))
	svc := syncer.New(store, registry, cfg, log)
	if cfg.IsMinIOEnabled() {
		raw, err := archive.NewMinIO(cfg)
		if err != nil {
			log.Error("failed to initialize raw payload archive", "error", err)
			panic("failed to initialize raw payload archive: " + err.Error())
		}
		svc.WithArchive(raw)
	}

	accounts, err := listAccounts(ctx, store, *ownersFlag, domain.Platform(*platformFlag))
	if err != nil {
		log.Error("failed to list accounts", "error", err)
		panic("failed to list accounts: " + err.Error())
	}
	if len(accounts) == 0 {
		log.Info("no accounts to backfill")
		return
	}

	rdb, err := scheduler.RedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	var (
		mu     sync.Mutex
		total  syncer.Summary
		failed int
	)

	runAccount := func(ctx context.Context, acct account) {
		alog := log.WithOwnerID(acct.ownerID.String())

		var summary syncer.Summary
		var err error
		switch {
		case *retryFailed:
			summary, err = svc.RetryFailed(ctx, acct.ownerID, acct.platform)
		case *resume:
			summary, err = svc.Resume(ctx, acct.ownerID, acct.platform)
		default:
			summary, err = svc.Run(ctx, acct.ownerID, acct.platform, syncer.Options{MonthsBack: *monthsBack, Force: *force})
		}

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed++
			alog.Error("account backfill failed", "platform", acct.platform, "error", err)
			return
		}
		total.Fetched += summary.Fetched
		total.AppointmentsUpserted += summary.AppointmentsUpserted
		total.NewClients += summary.NewClients
		alog.Info("account backfill finished",
			"platform", acct.platform,
			"fetched", summary.Fetched,
			"upserted", summary.AppointmentsUpserted,
			"periods_completed", summary.PeriodsCompleted,
			"periods_failed", summary.PeriodsFailed,
		)
	}

	owners := byOwner(accounts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))
	for _, group := range owners {
		g.Go(func() error {
			ownerID := group[0].ownerID
			err := lockOwner(gctx, rdb, ownerID, cfg.GetSyncLockTTL(), *lockWait, log, func(ctx context.Context) error {
				// An owner's platforms share clients and run one after another.
				for _, acct := range group {
					runAccount(ctx, acct)
				}
				return nil
			})
			if err != nil {
				mu.Lock()
				failed += len(group)
				mu.Unlock()
				log.WithOwnerID(ownerID.String()).Error("owner backfill skipped", "error", err)
			}
			// One owner's failure never stops the others.
			return nil
		})
	}
	_ = g.Wait()

	log.Info("booking sync backfill completed",
		"accounts", len(accounts),
		"failed_accounts", failed,
		"fetched", total.Fetched,
		"upserted", total.AppointmentsUpserted,
		"new_clients", total.NewClients,
	)
}

var errOwnerBusy = errors.New("owner sync already running")

// lockOwner waits up to wait for the owner's sync lock, polling while another
// process holds it, then runs fn under the lock.
func lockOwner(ctx context.Context, rdb *redis.Client, ownerID uuid.UUID, ttl, wait time.Duration, log *logger.Logger, fn func(context.Context) error) error {
	backoff := retry.WithMaxDuration(wait, retry.NewConstant(5*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := scheduler.RunLocked(ctx, rdb, ownerID, ttl, log, fn)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errOwnerBusy)
		}
		return nil
	})
}

// byOwner groups accounts per owner, keeping the listing order.
func byOwner(accounts []account) [][]account {
	index := make(map[uuid.UUID]int)
	var groups [][]account
	for _, acct := range accounts {
		i, ok := index[acct.ownerID]
		if !ok {
			i = len(groups)
			index[acct.ownerID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], acct)
	}
	return groups
}

func listAccounts(ctx context.Context, store bookingrepo.IntegrationStore, ownersCSV string, platform domain.Platform) ([]account, error) {
	integrations, err := store.ListActiveIntegrations(ctx)
	if err != nil {
		return nil, err
	}

	wanted := map[uuid.UUID]bool{}
	for _, raw := range strings.Split(ownersCSV, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		wanted[id] = true
	}

	accounts := make([]account, 0, len(integrations))
	for _, in := range integrations {
		if len(wanted) > 0 && !wanted[in.OwnerID] {
			continue
		}
		if platform != "" && in.Platform != platform {
			continue
		}
		accounts = append(accounts, account{ownerID: in.OwnerID, platform: in.Platform})
	}
	return accounts, nil
}
