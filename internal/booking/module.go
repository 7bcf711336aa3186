// Package booking provides the booking-sync domain module.
package booking

import (
	"retention_backend/internal/archive"
	"retention_backend/internal/booking/handler"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/syncer"
	apphttp "retention_backend/internal/http"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/validator"
)

// Module represents the booking-sync domain module
type Module struct {
	handler *handler.Handler
	Syncer  *syncer.Service
}

// NewModule wires the sync HTTP surface. arch may be nil when archiving is disabled.
func NewModule(svc *syncer.Service, store repository.IntegrationStore, enqueuer scheduler.SyncEnqueuer, arch archive.Archiver, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, enqueuer, store, arch, val),
		Syncer:  svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "booking"
}

// RegisterRoutes registers the module's routes under /api/v1/booking
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/booking"), ctx.TriggerRateLimiter.RateLimit())
}

var _ apphttp.Module = (*Module)(nil)
