package http

import (
	"context"

	"retention_backend/platform/config"
	"retention_backend/platform/logger"
)

// RouterConfig is the configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// Pinger reports whether a backing store is reachable. Used by /api/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App is what the composition root hands to router.New.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Ready   Pinger
	Modules []Module
}
