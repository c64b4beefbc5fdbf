package emails

import (
	"context"
	"log/slog"
	"time"

	"github.com/outbox-sh/outbox/internal/jobs"
	"github.com/outbox-sh/outbox/pkg/clock"
	"github.com/outbox-sh/outbox/pkg/logger"
)

// recoveryStore is the slice of the repository recovery needs
type recoveryStore interface {
	ResetProcessing(ctx context.Context) (int, error)
	ListScheduled(ctx context.Context) ([]EmailJob, error)
}

// recoveryQueue is the slice of the delay queue recovery needs
type recoveryQueue interface {
	ExistsForJob(ctx context.Context, jobID string) (bool, error)
	Enqueue(ctx context.Context, jobKey string, payload jobs.Payload, delay time.Duration, retryLimit int) (*jobs.Entry, error)
}

// Recovery reconciles job records with the delay queue after a restart.
// It is idempotent; running it on a healthy system changes nothing.
type Recovery struct {
	store recoveryStore
	queue recoveryQueue
	clock clock.Clock
	log   *slog.Logger
}

// NewRecovery creates a new recovery pass
func NewRecovery(repo *Repository, queue *jobs.Queue, clk clock.Clock, log *slog.Logger) *Recovery {
	return newRecovery(repo, queue, clk, log)
}

func newRecovery(store recoveryStore, queue recoveryQueue, clk clock.Clock, log *slog.Logger) *Recovery {
	return &Recovery{
		store: store,
		queue: queue,
		clock: clk,
		log:   log.With(logger.Scope("emails.recovery")),
	}
}

// Result reports what a recovery pass did
type Result struct {
	Reset     int `json:"reset"`
	Requeued  int `json:"requeued"`
	Inspected int `json:"inspected"`
}

// Run resets jobs stuck in processing back to scheduled, then re-queues any
// scheduled job that has no live queue entry. Jobs whose send time already
// passed go out immediately.
func (r *Recovery) Run(ctx context.Context) (*Result, error) {
	reset, err := r.store.ResetProcessing(ctx)
	if err != nil {
		return nil, err
	}
	if reset > 0 {
		r.log.Warn("reset jobs stuck in processing", slog.Int("count", reset))
	}

	scheduled, err := r.store.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}

	requeued := 0
	for _, job := range scheduled {
		exists, err := r.queue.ExistsForJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		delay := job.ScheduledAt.Sub(r.clock.Now())
		if _, err := r.queue.Enqueue(ctx, job.ID, jobs.Payload{payloadKeyJobID: job.ID}, delay, 0); err != nil {
			return nil, err
		}
		requeued++

		r.log.Info("re-queued orphaned email job",
			slog.String("job_id", job.ID),
			slog.Time("send_at", job.ScheduledAt))
	}

	result := &Result{
		Reset:     reset,
		Requeued:  requeued,
		Inspected: len(scheduled),
	}

	r.log.Info("recovery pass completed",
		slog.Int("reset", result.Reset),
		slog.Int("requeued", result.Requeued),
		slog.Int("inspected", result.Inspected))

	return result, nil
}
