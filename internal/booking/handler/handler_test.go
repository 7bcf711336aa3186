package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/transport"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/httpkit"
	"retention_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeStatus struct {
	periods []domain.PeriodStatus
}

func (f fakeStatus) Status(context.Context, uuid.UUID, domain.Platform) ([]domain.PeriodStatus, error) {
	return f.periods, nil
}

type fakeEnqueuer struct {
	syncs   []scheduler.BookingSyncPayload
	resumes []scheduler.BookingResumePayload
}

func (f *fakeEnqueuer) EnqueueSync(_ context.Context, p scheduler.BookingSyncPayload) (string, error) {
	f.syncs = append(f.syncs, p)
	return "sync-1", nil
}

func (f *fakeEnqueuer) EnqueueResume(_ context.Context, p scheduler.BookingResumePayload) (string, error) {
	f.resumes = append(f.resumes, p)
	return "resume-1", nil
}

func setup(owner uuid.UUID, status StatusReader, enq scheduler.SyncEnqueuer, store repository.IntegrationStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextOwnerIDKey, owner)
		c.Next()
	})
	h := New(status, enq, store, nil, validator.New())
	h.RegisterRoutes(engine.Group("/booking"), func(c *gin.Context) { c.Next() })
	return engine
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestStartSyncQueuesOwnerScopedTask(t *testing.T) {
	owner := uuid.New()
	enq := &fakeEnqueuer{}
	engine := setup(owner, fakeStatus{}, enq, repository.NewMemory())

	rec := do(engine, http.MethodPost, "/booking/sync/acuity", `{"monthsBack":6,"force":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(enq.syncs) != 1 {
		t.Fatalf("expected one enqueue, got %d", len(enq.syncs))
	}
	got := enq.syncs[0]
	if got.OwnerID != owner.String() || got.Platform != "acuity" || got.MonthsBack != 6 || !got.Force {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestStartSyncWithoutBody(t *testing.T) {
	enq := &fakeEnqueuer{}
	engine := setup(uuid.New(), fakeStatus{}, enq, repository.NewMemory())

	rec := do(engine, http.MethodPost, "/booking/sync/square", "")
	if rec.Code != http.StatusAccepted || len(enq.syncs) != 1 {
		t.Fatalf("status = %d, enqueued %d", rec.Code, len(enq.syncs))
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	enq := &fakeEnqueuer{}
	engine := setup(uuid.New(), fakeStatus{}, enq, repository.NewMemory())

	rec := do(engine, http.MethodPost, "/booking/sync/calendly", "")
	if rec.Code != http.StatusBadRequest || len(enq.syncs) != 0 {
		t.Fatalf("status = %d, enqueued %d", rec.Code, len(enq.syncs))
	}
}

func TestResumeSync(t *testing.T) {
	enq := &fakeEnqueuer{}
	engine := setup(uuid.New(), fakeStatus{}, enq, repository.NewMemory())

	rec := do(engine, http.MethodPost, "/booking/sync/acuity/resume", `{"retryFailed":true}`)
	if rec.Code != http.StatusAccepted || len(enq.resumes) != 1 || !enq.resumes[0].RetryFailed {
		t.Fatalf("status = %d, resumes %+v", rec.Code, enq.resumes)
	}
}

func TestStatusTotals(t *testing.T) {
	status := fakeStatus{periods: []domain.PeriodStatus{
		{Period: "2025-03", Status: domain.SyncCompleted},
		{Period: "2025-02", Status: domain.SyncCompleted},
		{Period: "2025-01", Status: domain.SyncFailed},
	}}
	engine := setup(uuid.New(), status, &fakeEnqueuer{}, repository.NewMemory())

	rec := do(engine, http.MethodGet, "/booking/sync/acuity/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp transport.SyncStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Totals[string(domain.SyncCompleted)] != 2 || resp.Totals[string(domain.SyncFailed)] != 1 || len(resp.Periods) != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestArchiveDisabled(t *testing.T) {
	engine := setup(uuid.New(), fakeStatus{}, &fakeEnqueuer{}, repository.NewMemory())

	rec := do(engine, http.MethodGet, "/booking/sync/acuity/archive/2025-03", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSaveIntegrationNeverEchoesToken(t *testing.T) {
	owner := uuid.New()
	store := repository.NewMemory()
	engine := setup(owner, fakeStatus{}, &fakeEnqueuer{}, store)

	rec := do(engine, http.MethodPut, "/booking/integrations/square", `{"accessToken":"sq0atp-secret-token","accountRef":"LOC1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("token leaked in response: %s", rec.Body.String())
	}

	in, err := store.GetIntegration(context.Background(), owner, domain.PlatformSquare)
	if err != nil {
		t.Fatalf("integration not saved: %v", err)
	}
	if in.AccessToken != "sq0atp-secret-token" || !in.Active || in.AccountRef == nil || *in.AccountRef != "LOC1" {
		t.Fatalf("unexpected integration %+v", in)
	}
}
