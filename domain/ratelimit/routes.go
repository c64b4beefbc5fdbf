package ratelimit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the rate-limit routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/rate-limits", h.GetStatus)
}
