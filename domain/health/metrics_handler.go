package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/outbox-sh/outbox/internal/jobs"
	"github.com/outbox-sh/outbox/internal/sched"
)

// MetricsHandler serves queue and worker metrics as JSON
type MetricsHandler struct {
	queue     *jobs.Queue
	worker    *jobs.Worker
	scheduler *sched.Scheduler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(queue *jobs.Queue, worker *jobs.Worker, scheduler *sched.Scheduler) *MetricsHandler {
	return &MetricsHandler{
		queue:     queue,
		worker:    worker,
		scheduler: scheduler,
	}
}

// QueueMetricsResponse combines queue depth with worker pool counters
type QueueMetricsResponse struct {
	Queue     *jobs.Stats        `json:"queue"`
	Worker    jobs.WorkerMetrics `json:"worker"`
	Running   bool               `json:"running"`
	Timestamp string             `json:"timestamp"`
}

// QueueMetrics returns queue depth and worker pool counters
// GET /api/metrics/queue
func (h *MetricsHandler) QueueMetrics(c echo.Context) error {
	stats, err := h.queue.GetStats(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, QueueMetricsResponse{
		Queue:     stats,
		Worker:    h.worker.Metrics(),
		Running:   h.worker.IsRunning(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SchedulerMetrics returns the registered maintenance tasks
// GET /api/metrics/scheduler
func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running": h.scheduler.IsRunning(),
		"tasks":   h.scheduler.ListTasks(),
	})
}
