package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"retention_backend/platform/apperr"
	"retention_backend/platform/distlock"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OwnerLockKey names the lock serializing booking syncs of one owner. Client
// identities are shared by all of an owner's platforms, so the key carries no
// platform.
func OwnerLockKey(ownerID uuid.UUID) string {
	return "booking-sync:" + ownerID.String()
}

// RunLocked runs fn while holding the owner's sync lock and keeps the lock
// alive until fn returns. It reports false without calling fn when another
// process holds the lock. Losing the lock mid-run cancels fn's context and
// is returned as a transient error.
func RunLocked(ctx context.Context, rdb *redis.Client, ownerID uuid.UUID, ttl time.Duration, log *logger.Logger, fn func(context.Context) error) (bool, error) {
	lock := distlock.New(rdb, OwnerLockKey(ownerID), ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return false, err
	}

	held, stop := lock.KeepAlive(ctx)
	defer func() {
		stop()
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			log.Warn("release owner sync lock", slog.String("key", lock.Key()), slog.String("error", err.Error()))
		}
	}()

	err = fn(held)
	if cause := context.Cause(held); ctx.Err() == nil && errors.Is(cause, distlock.ErrNotHeld) {
		return true, apperr.Transient("owner sync lock lost", cause)
	}
	return true, err
}
