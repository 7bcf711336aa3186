// Package http holds the pieces shared by the gin router and the domain
// modules that mount routes on it.
package http

import (
	"retention_backend/platform/config"
	"retention_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a domain package that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the groups and shared middleware modules mount on.
type RouterContext struct {
	Engine *gin.Engine
	V1     *gin.RouterGroup
	// Protected requires a valid access token; its subject is the owner every
	// route in the group is scoped to.
	Protected *gin.RouterGroup
	Config    config.JWTConfig
	// TriggerRateLimiter guards routes that enqueue background work.
	TriggerRateLimiter *httpkit.TriggerRateLimiter
}
