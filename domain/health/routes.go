package health

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers health check and metrics routes
func RegisterRoutes(e *echo.Echo, h *Handler, m *MetricsHandler) {
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/api/health", h.Health)

	e.GET("/api/metrics/queue", m.QueueMetrics)
	e.GET("/api/metrics/scheduler", m.SchedulerMetrics)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
