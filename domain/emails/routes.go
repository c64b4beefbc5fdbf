package emails

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the email scheduling routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.POST("/api/schedule", h.Schedule)
	e.POST("/api/schedule/bulk", h.ScheduleBulk)

	g := e.Group("/api/emails")
	g.GET("", h.List)
	g.GET("/scheduled", h.ListScheduled)
	g.GET("/sent", h.ListSent)
}
