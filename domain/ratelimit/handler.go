package ratelimit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/outbox-sh/outbox/pkg/apperror"
)

// Handler handles HTTP requests for rate-limit state
type Handler struct {
	limiter *Limiter
}

// NewHandler creates a new rate-limit handler
func NewHandler(limiter *Limiter) *Handler {
	return &Handler{limiter: limiter}
}

// GetStatus returns the current-window counters for a sender
// GET /api/rate-limits?senderId=<uuid>
func (h *Handler) GetStatus(c echo.Context) error {
	senderID := c.QueryParam("senderId")
	if senderID == "" {
		return apperror.ErrBadRequest.WithMessage("senderId query parameter is required")
	}

	status, err := h.limiter.Status(c.Request().Context(), senderID)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}

	return c.JSON(http.StatusOK, status)
}
