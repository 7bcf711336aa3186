package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestAcquireIsExclusive(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	first := New(client, "sync:owner-1", time.Minute)
	second := New(client, "sync:owner-1", time.Minute)

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire should fail while first holds the lock")
	}

	if err := second.Release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("release by non-owner should return ErrNotHeld, got %v", err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release by owner: %v", err)
	}

	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLockExpires(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	lock := New(client, "sync:owner-2", time.Second)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}

	mr.FastForward(2 * time.Second)

	if err := lock.Extend(ctx, time.Minute); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("extend after expiry should return ErrNotHeld, got %v", err)
	}
}

func TestKeepAliveRefreshesExpiry(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	lock := New(client, "sync:owner-3", 60*time.Millisecond)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	_, stop := lock.KeepAlive(ctx)
	defer stop()

	mr.SetTTL(lock.Key(), time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for mr.TTL(lock.Key()) <= time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatal("expiry was never pushed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKeepAliveCancelsWhenLockIsLost(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	lock := New(client, "sync:owner-4", 30*time.Millisecond)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	held, stop := lock.KeepAlive(ctx)
	defer stop()

	mr.Del(lock.Key())

	select {
	case <-held.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled after the key disappears")
	}
	if !errors.Is(context.Cause(held), ErrNotHeld) {
		t.Fatalf("cause = %v, want ErrNotHeld", context.Cause(held))
	}
}
