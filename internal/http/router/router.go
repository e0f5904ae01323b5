package router

import (
	"context"
	"net/http"
	"time"

	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/config"
	"outreach_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// New builds the engine: shared middleware, /api/health, then every module.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		httpkit.RequestID(),
		httpkit.RequestLogger(app.Logger),
		httpkit.SecurityHeaders(),
		cors.New(corsConfig(app.Config)),
	)

	engine.GET("/api/health", health(app.Health))

	routes := &apphttp.Routes{
		V1:       engine.Group("/api/v1"),
		Webhooks: engine.Group("/api/webhooks", httpkit.NewWebhookRateLimiter(app.Logger).RateLimit()),
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(routes)
		app.Logger.Info("module registered", "module", m.Name())
	}
	return engine
}

func health(p apphttp.Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		httpkit.OK(c, gin.H{"status": "ok"})
	}
}

func corsConfig(cfg config.HTTPConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpkit.HeaderRequestID},
		ExposeHeaders:    []string{httpkit.HeaderRequestID},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
