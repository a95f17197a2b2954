package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-analyzer/internal/shared/config"
	"interview-analyzer/internal/shared/metrics"
	"interview-analyzer/internal/shared/server/middleware"
	"interview-analyzer/internal/shared/server/respond"
)

// RouteRegistrar attaches a handler's routes to the API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// HealthReporter produces the /health payload.
type HealthReporter interface {
	Report(c *gin.Context) any
}

// HealthFunc adapts a function to HealthReporter.
type HealthFunc func(c *gin.Context) any

// Report implements HealthReporter.
func (f HealthFunc) Report(c *gin.Context) any { return f(c) }

// RouterDeps lists what the router needs.
type RouterDeps struct {
	Config   config.Config
	Health   HealthReporter
	Handlers []RouteRegistrar
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigins),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	if deps.Config.TriggerRatePerSec > 0 {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				middleware.RateLimitGroupTrigger: {
					Rate:  deps.Config.TriggerRatePerSec,
					Burst: deps.Config.TriggerBurst,
				},
			},
			GroupFor: middleware.TriggerGroup,
		}))
	}

	// Health always answers 200; degraded adapters are reported in the body.
	healthHandler := func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		respond.OK(c, deps.Health.Report(c))
	}
	r.GET("/health", healthHandler)
	api.GET("/health", healthHandler)

	for _, h := range deps.Handlers {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})
	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
