package handler

import (
	"context"
	"net/http"

	"retention_backend/internal/archive"
	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/transport"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/apperr"
	"retention_backend/platform/httpkit"
	"retention_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// StatusReader lists tracked sync periods.
type StatusReader interface {
	Status(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) ([]domain.PeriodStatus, error)
}

// Handler handles HTTP requests for booking sync
type Handler struct {
	status       StatusReader
	enqueuer     scheduler.SyncEnqueuer
	integrations repository.IntegrationStore
	archive      archive.Archiver
	val          *validator.Validator
}

// New creates a new booking handler. archive may be nil.
func New(status StatusReader, enqueuer scheduler.SyncEnqueuer, integrations repository.IntegrationStore, arch archive.Archiver, val *validator.Validator) *Handler {
	return &Handler{status: status, enqueuer: enqueuer, integrations: integrations, archive: arch, val: val}
}

// RegisterRoutes registers the sync routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, triggers gin.HandlerFunc) {
	rg.POST("/sync/:platform", triggers, h.StartSync)
	rg.POST("/sync/:platform/resume", triggers, h.ResumeSync)
	rg.GET("/sync/:platform/status", h.Status)
	rg.GET("/sync/:platform/archive/:period", h.ArchiveURL)
	rg.PUT("/integrations/:platform", h.SaveIntegration)
}

func platformParam(c *gin.Context) (domain.Platform, bool) {
	switch p := domain.Platform(c.Param("platform")); p {
	case domain.PlatformAcuity, domain.PlatformSquare:
		return p, true
	default:
		httpkit.Error(c, http.StatusBadRequest, "unsupported platform", c.Param("platform"))
		return "", false
	}
}

// StartSync handles POST /api/v1/sync/:platform
func (h *Handler) StartSync(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	var req transport.StartSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	owner, ok := httpkit.MustGetOwner(c)
	if !ok {
		return
	}

	taskID, err := h.enqueuer.EnqueueSync(c.Request.Context(), scheduler.BookingSyncPayload{
		OwnerID:    owner.ID.String(),
		Platform:   string(platform),
		MonthsBack: req.MonthsBack,
		Force:      req.Force,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, transport.TaskAcceptedResponse{TaskID: taskID, Platform: string(platform)})
}

// ResumeSync handles POST /api/v1/sync/:platform/resume
func (h *Handler) ResumeSync(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	var req transport.ResumeSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}

	owner, ok := httpkit.MustGetOwner(c)
	if !ok {
		return
	}

	taskID, err := h.enqueuer.EnqueueResume(c.Request.Context(), scheduler.BookingResumePayload{
		OwnerID:     owner.ID.String(),
		Platform:    string(platform),
		RetryFailed: req.RetryFailed,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, transport.TaskAcceptedResponse{TaskID: taskID, Platform: string(platform)})
}

// Status handles GET /api/v1/sync/:platform/status
func (h *Handler) Status(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	owner, ok := httpkit.MustGetOwner(c)
	if !ok {
		return
	}

	periods, err := h.status.Status(c.Request.Context(), owner.ID, platform)
	if httpkit.HandleError(c, err) {
		return
	}

	totals := map[string]int{}
	for _, p := range periods {
		totals[string(p.Status)]++
	}
	httpkit.OK(c, transport.SyncStatusResponse{Platform: string(platform), Totals: totals, Periods: periods})
}

// ArchiveURL handles GET /api/v1/sync/:platform/archive/:period
func (h *Handler) ArchiveURL(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	period, err := domain.ParsePeriod(c.Param("period"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if h.archive == nil {
		httpkit.HandleError(c, apperr.NotFound("raw payload archive is not enabled"))
		return
	}

	owner, ok := httpkit.MustGetOwner(c)
	if !ok {
		return
	}

	url, err := h.archive.DownloadURL(c.Request.Context(), owner.ID, string(platform), string(period))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ArchiveURLResponse{Period: string(period), URL: url})
}

// SaveIntegration handles PUT /api/v1/integrations/:platform
func (h *Handler) SaveIntegration(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	var req transport.SaveIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	owner, ok := httpkit.MustGetOwner(c)
	if !ok {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	in := domain.Integration{
		OwnerID:     owner.ID,
		Platform:    platform,
		AccessToken: req.AccessToken,
		AccountRef:  req.AccountRef,
		Active:      active,
	}
	if err := h.integrations.SaveIntegration(c.Request.Context(), in); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.IntegrationResponse{Platform: string(platform), AccountRef: in.AccountRef, Active: in.Active})
}
