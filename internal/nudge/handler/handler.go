package handler

import (
	"context"
	"net/http"

	"retention_backend/internal/nudge/service"
	"retention_backend/internal/nudge/transport"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/httpkit"
	"retention_backend/platform/phone"
	"retention_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultPreviewLimit = 20

// Selector runs candidate selection without side effects.
type Selector interface {
	SelectClients(ctx context.Context, ownerID uuid.UUID, limit int) service.SelectionResult
}

// Handler handles HTTP requests for outreach selection
type Handler struct {
	selector Selector
	enqueuer scheduler.NudgeEnqueuer
	val      *validator.Validator
}

// New creates a new nudge handler
func New(selector Selector, enqueuer scheduler.NudgeEnqueuer, val *validator.Validator) *Handler {
	return &Handler{selector: selector, enqueuer: enqueuer, val: val}
}

// RegisterRoutes registers the nudge routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, triggers gin.HandlerFunc) {
	rg.GET("/preview", h.Preview)
	rg.POST("/evaluate", triggers, h.Evaluate)
}

// Preview handles GET /api/v1/nudge/preview
func (h *Handler) Preview(c *gin.Context) {
	var q transport.PreviewQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultPreviewLimit
	}

	owner, ok := httpkit.MustGetOwner(c)
	if !ok {
		return
	}

	result := h.selector.SelectClients(c.Request.Context(), owner.ID, q.Limit)
	resp := transport.PreviewResponse{
		Limit:                 q.Limit,
		TotalAvailableClients: result.TotalAvailableClients,
		Clients:               make([]transport.PreviewClient, 0, len(result.Clients)),
	}
	for _, sc := range result.Clients {
		resp.Clients = append(resp.Clients, transport.PreviewClient{
			ScoredClient: sc,
			DisplayName:  sc.DisplayName(),
			PhoneDisplay: phone.Display(sc.PhoneNormalized),
		})
	}
	httpkit.OK(c, resp)
}

// Evaluate handles POST /api/v1/nudge/evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	var req transport.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	owner, ok := httpkit.MustGetOwner(c)
	if !ok {
		return
	}

	taskID, err := h.enqueuer.EnqueueNudgeEvaluate(c.Request.Context(), scheduler.NudgeEvaluatePayload{
		OwnerID:             owner.ID.String(),
		OpenSlots:           req.OpenSlots,
		RevenuePerSlotCents: req.RevenuePerSlotCents,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, transport.TaskAcceptedResponse{TaskID: taskID})
}
