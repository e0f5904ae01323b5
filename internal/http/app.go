// Package http is the composition point between cmd/api and the modules that
// serve HTTP routes.
package http

import (
	"context"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Pinger backs the /api/health endpoint. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Module is a bounded context that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(r *Routes)
}

// Routes are the groups a module may mount on. Webhooks already carries the
// provider callback rate limit.
type Routes struct {
	V1       *gin.RouterGroup
	Webhooks *gin.RouterGroup
}

// App is everything the router needs, assembled by main.
type App struct {
	Config  config.HTTPConfig
	Logger  *logger.Logger
	Health  Pinger
	Modules []Module
}
