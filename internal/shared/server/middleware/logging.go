package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"interview-analyzer/internal/shared/telemetry"
)

// Context keys handlers set so the request log line carries job identity.
const (
	AnalysisIDKey       = "analysisId"
	OwnerIDKey          = "ownerId"
	UnitIDKey           = "unitId"
	StatusTransitionKey = "statusTransition"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		telemetry.Info("request.complete", map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"route":             c.FullPath(),
			"status":            c.Writer.Status(),
			"status_transition": c.GetString(StatusTransitionKey),
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"analysis_id":       c.GetString(AnalysisIDKey),
			"owner_id":          c.GetString(OwnerIDKey),
			"unit_id":           c.GetString(UnitIDKey),
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		})
	}
}
