// Package nudge provides the outreach-selection domain module.
package nudge

import (
	apphttp "retention_backend/internal/http"
	"retention_backend/internal/nudge/handler"
	"retention_backend/internal/nudge/service"
	"retention_backend/internal/scheduler"
	"retention_backend/platform/validator"
)

// Module represents the nudge domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
	Trigger *service.Trigger
}

// NewModule wires the nudge HTTP surface around an existing selection service.
func NewModule(svc *service.Service, trigger *service.Trigger, enqueuer scheduler.NudgeEnqueuer, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, enqueuer, val),
		Service: svc,
		Trigger: trigger,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "nudge"
}

// RegisterRoutes registers the module's routes under /api/v1/nudge
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/nudge"), ctx.TriggerRateLimiter.RateLimit())
}

var _ apphttp.Module = (*Module)(nil)
