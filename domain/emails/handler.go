package emails

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/outbox-sh/outbox/pkg/apperror"
)

// Handler handles HTTP requests for email scheduling
type Handler struct {
	svc *Service
}

// NewHandler creates a new emails handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Schedule schedules a single email
// POST /api/schedule
func (h *Handler) Schedule(c echo.Context) error {
	req := &ScheduleRequest{}
	if err := c.Bind(req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body").WithInternal(err)
	}

	resp, err := h.svc.ScheduleOne(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, resp)
}

// ScheduleBulk schedules a staggered batch of emails
// POST /api/schedule/bulk
func (h *Handler) ScheduleBulk(c echo.Context) error {
	req := &BulkScheduleRequest{}
	if err := c.Bind(req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body").WithInternal(err)
	}

	resp, err := h.svc.ScheduleBulk(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, resp)
}

// List returns every email job, newest first
// GET /api/emails
func (h *Handler) List(c echo.Context) error {
	resp, err := h.svc.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// ListScheduled returns pending jobs ordered by send time
// GET /api/emails/scheduled
func (h *Handler) ListScheduled(c echo.Context) error {
	resp, err := h.svc.ListScheduled(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// ListSent returns sent jobs, most recent first
// GET /api/emails/sent
func (h *Handler) ListSent(c echo.Context) error {
	resp, err := h.svc.ListSent(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
