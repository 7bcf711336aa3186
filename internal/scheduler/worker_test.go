package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/syncer"
	nudgeservice "retention_backend/internal/nudge/service"
	"retention_backend/platform/apperr"
	"retention_backend/platform/distlock"
	"retention_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

var ownerID = uuid.MustParse("0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d")

type fakeSyncer struct {
	mu      sync.Mutex
	runs    []syncer.Options
	resumes int
	retries int
	err     error
}

func (f *fakeSyncer) Run(_ context.Context, _ uuid.UUID, _ domain.Platform, opts syncer.Options) (syncer.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	return syncer.Summary{}, f.err
}

func (f *fakeSyncer) Resume(context.Context, uuid.UUID, domain.Platform) (syncer.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return syncer.Summary{}, f.err
}

func (f *fakeSyncer) RetryFailed(context.Context, uuid.UUID, domain.Platform) (syncer.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	return syncer.Summary{}, f.err
}

type fakeEnqueuer struct {
	queued   []BookingSyncPayload
	conflict map[string]bool
}

func (f *fakeEnqueuer) EnqueueSync(_ context.Context, p BookingSyncPayload) (string, error) {
	if f.conflict[p.OwnerID] {
		return "", apperr.Conflict("duplicate")
	}
	f.queued = append(f.queued, p)
	return "task-" + p.OwnerID, nil
}

func (f *fakeEnqueuer) EnqueueResume(context.Context, BookingResumePayload) (string, error) {
	return "", nil
}

type fakeNudges struct {
	got nudgeservice.Availability
}

func (f *fakeNudges) Evaluate(_ context.Context, _ uuid.UUID, a nudgeservice.Availability) (nudgeservice.Decision, error) {
	f.got = a
	return nudgeservice.Decision{}, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func syncTask(t *testing.T, p BookingSyncPayload) *asynq.Task {
	t.Helper()
	task, err := NewBookingSyncTask(p)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestHandleBookingSyncRunsUnderLock(t *testing.T) {
	rdb := newRedis(t)
	fs := &fakeSyncer{}
	w := newWorker(WorkerDeps{Syncer: fs, Redis: rdb}, time.Minute, logger.Discard())

	task := syncTask(t, BookingSyncPayload{OwnerID: ownerID.String(), Platform: "acuity", MonthsBack: 6, Force: true})
	if err := w.handleBookingSync(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fs.runs) != 1 || fs.runs[0].MonthsBack != 6 || !fs.runs[0].Force {
		t.Fatalf("unexpected runs: %+v", fs.runs)
	}

	held := distlock.New(rdb, OwnerLockKey(ownerID), time.Minute)
	if ok, err := held.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("lock should be free after the run: ok=%v err=%v", ok, err)
	}
	if err := w.handleBookingSync(context.Background(), task); err != nil {
		t.Fatalf("handle while locked: %v", err)
	}
	if len(fs.runs) != 1 {
		t.Fatalf("expected locked account to be skipped, got %d runs", len(fs.runs))
	}

	// Clients are shared across platforms, so the owner's other platform waits too.
	square := syncTask(t, BookingSyncPayload{OwnerID: ownerID.String(), Platform: "square"})
	if err := w.handleBookingSync(context.Background(), square); err != nil {
		t.Fatalf("handle square while locked: %v", err)
	}
	if len(fs.runs) != 1 {
		t.Fatalf("expected the owner's square sync to be skipped, got %d runs", len(fs.runs))
	}
}

func TestRunLockedReportsLostLockAsTransient(t *testing.T) {
	rdb := newRedis(t)

	ok, err := RunLocked(context.Background(), rdb, ownerID, 30*time.Millisecond, logger.Discard(), func(ctx context.Context) error {
		if err := rdb.Del(ctx, "lock:"+OwnerLockKey(ownerID)).Err(); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if !ok {
		t.Fatal("expected the lock to be acquired")
	}
	if !apperr.IsTransient(err) {
		t.Fatalf("expected a transient error, got %v", err)
	}
}

func TestHandleBookingSyncRetryPolicy(t *testing.T) {
	fs := &fakeSyncer{err: apperr.Transient("upstream 503", nil)}
	w := newWorker(WorkerDeps{Syncer: fs}, time.Minute, logger.Discard())
	task := syncTask(t, BookingSyncPayload{OwnerID: ownerID.String(), Platform: "square"})

	err := w.handleBookingSync(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	fs.err = syncer.ErrAccountWide
	err = w.handleBookingSync(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry, got %v", err)
	}

	bad := asynq.NewTask(TaskBookingSyncAccount, []byte(`{"ownerId":"nope","platform":"acuity"}`))
	if err := w.handleBookingSync(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected invalid payload to skip retry, got %v", err)
	}
}

func TestHandleBookingResume(t *testing.T) {
	fs := &fakeSyncer{}
	w := newWorker(WorkerDeps{Syncer: fs}, time.Minute, logger.Discard())

	resume, err := NewBookingResumeTask(BookingResumePayload{OwnerID: ownerID.String(), Platform: "acuity"})
	if err != nil {
		t.Fatal(err)
	}
	retry, err := NewBookingResumeTask(BookingResumePayload{OwnerID: ownerID.String(), Platform: "acuity", RetryFailed: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.handleBookingResume(context.Background(), resume); err != nil {
		t.Fatal(err)
	}
	if err := w.handleBookingResume(context.Background(), retry); err != nil {
		t.Fatal(err)
	}
	if fs.resumes != 1 || fs.retries != 1 {
		t.Fatalf("expected one resume and one retry, got %d/%d", fs.resumes, fs.retries)
	}
}

func TestHandleBookingFanout(t *testing.T) {
	store := repository.NewMemory()
	ctx := context.Background()
	other := uuid.MustParse("11111111-2222-4333-8444-555555555555")
	busy := uuid.MustParse("99999999-8888-4777-8666-555555555555")

	for _, in := range []domain.Integration{
		{OwnerID: ownerID, Platform: domain.PlatformAcuity, AccessToken: "a", Active: true},
		{OwnerID: other, Platform: domain.PlatformSquare, AccessToken: "b", Active: true},
		{OwnerID: other, Platform: domain.PlatformAcuity, AccessToken: "c", Active: false},
		{OwnerID: busy, Platform: domain.PlatformSquare, AccessToken: "d", Active: true},
	} {
		if err := store.SaveIntegration(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	enq := &fakeEnqueuer{conflict: map[string]bool{busy.String(): true}}
	w := newWorker(WorkerDeps{Integrations: store, Enqueuer: enq}, time.Minute, logger.Discard())

	if err := w.handleBookingFanout(ctx, NewBookingFanoutTask()); err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if len(enq.queued) != 2 {
		t.Fatalf("expected 2 queued syncs, got %+v", enq.queued)
	}
}

func TestHandleNudgeEvaluate(t *testing.T) {
	nudges := &fakeNudges{}
	w := newWorker(WorkerDeps{Nudges: nudges}, time.Minute, logger.Discard())

	revenue := int64(5500)
	task, err := NewNudgeEvaluateTask(NudgeEvaluatePayload{OwnerID: ownerID.String(), OpenSlots: 6, RevenuePerSlotCents: &revenue})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.handleNudgeEvaluate(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if nudges.got.OpenSlots != 6 || nudges.got.RevenuePerSlotCents == nil || *nudges.got.RevenuePerSlotCents != 5500 {
		t.Fatalf("unexpected availability %+v", nudges.got)
	}
}

func TestNewTaskValidatesPayload(t *testing.T) {
	if _, err := NewBookingSyncTask(BookingSyncPayload{OwnerID: ownerID.String(), Platform: "mindbody"}); err == nil {
		t.Fatal("expected unsupported platform to be rejected")
	}
	if _, err := NewNudgeEvaluateTask(NudgeEvaluatePayload{OwnerID: ownerID.String(), OpenSlots: -1}); err == nil {
		t.Fatal("expected negative slots to be rejected")
	}
}
