package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"retention_backend/internal/nudge/scoring"
	"retention_backend/internal/nudge/service"
	"retention_backend/internal/nudge/transport"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/httpkit"
	"retention_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeSelector struct {
	gotLimit int
	result   service.SelectionResult
}

func (f *fakeSelector) SelectClients(_ context.Context, _ uuid.UUID, limit int) service.SelectionResult {
	f.gotLimit = limit
	return f.result
}

type fakeEnqueuer struct {
	payloads []scheduler.NudgeEvaluatePayload
}

func (f *fakeEnqueuer) EnqueueNudgeEvaluate(_ context.Context, p scheduler.NudgeEvaluatePayload) (string, error) {
	f.payloads = append(f.payloads, p)
	return "task-1", nil
}

func newEngine(owner uuid.UUID, h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextOwnerIDKey, owner)
		c.Next()
	})
	h.RegisterRoutes(engine.Group("/nudge"), func(c *gin.Context) { c.Next() })
	return engine
}

func TestPreviewUsesDefaultLimit(t *testing.T) {
	first := "Ana"
	sel := &fakeSelector{result: service.SelectionResult{
		TotalAvailableClients: 3,
		Clients: []scoring.ScoredClient{
			{ClientID: uuid.New(), FirstName: &first, PhoneNormalized: "+14165550000", Score: 870},
		},
	}}
	engine := newEngine(uuid.New(), New(sel, &fakeEnqueuer{}, validator.New()))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nudge/preview", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if sel.gotLimit != defaultPreviewLimit {
		t.Fatalf("limit = %d", sel.gotLimit)
	}
	var resp transport.PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalAvailableClients != 3 || len(resp.Clients) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Clients[0].PhoneDisplay == "" || resp.Clients[0].Score != 870 {
		t.Fatalf("unexpected client %+v", resp.Clients[0])
	}
}

func TestPreviewRejectsOversizedLimit(t *testing.T) {
	engine := newEngine(uuid.New(), New(&fakeSelector{}, &fakeEnqueuer{}, validator.New()))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nudge/preview?limit=5000", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEvaluateQueuesTask(t *testing.T) {
	owner := uuid.New()
	enq := &fakeEnqueuer{}
	engine := newEngine(owner, New(&fakeSelector{}, enq, validator.New()))

	body := strings.NewReader(`{"openSlots":4,"revenuePerSlotCents":5625}`)
	req := httptest.NewRequest(http.MethodPost, "/nudge/evaluate", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(enq.payloads) != 1 {
		t.Fatalf("expected one enqueue, got %d", len(enq.payloads))
	}
	p := enq.payloads[0]
	if p.OwnerID != owner.String() || p.OpenSlots != 4 || p.RevenuePerSlotCents == nil || *p.RevenuePerSlotCents != 5625 {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestEvaluateRejectsNegativeSlots(t *testing.T) {
	enq := &fakeEnqueuer{}
	engine := newEngine(uuid.New(), New(&fakeSelector{}, enq, validator.New()))

	req := httptest.NewRequest(http.MethodPost, "/nudge/evaluate", strings.NewReader(`{"openSlots":-1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || len(enq.payloads) != 0 {
		t.Fatalf("status = %d, enqueued %d", rec.Code, len(enq.payloads))
	}
}
