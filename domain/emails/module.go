package emails

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/outbox-sh/outbox/internal/config"
	"github.com/outbox-sh/outbox/internal/jobs"
	"github.com/outbox-sh/outbox/internal/sched"
	"github.com/outbox-sh/outbox/pkg/logger"
)

// Module provides the emails domain: the scheduling API, the dispatch worker
// pool, and the restart recovery pass.
var Module = fx.Module("emails",
	fx.Provide(
		NewRepository,
		NewSender,
		NewService,
		NewDispatcher,
		NewRecovery,
		NewHandler,
		newWorkerPool,
	),
	fx.Invoke(
		RegisterRoutes,
		registerLifecycle,
		registerMaintenance,
	),
)

func newWorkerPool(queue *jobs.Queue, dispatcher *Dispatcher, cfg *config.Config, log *slog.Logger) *jobs.Worker {
	wc := jobs.WorkerConfig{
		Name:              "emails",
		Concurrency:       cfg.Dispatch.WorkerConcurrency,
		PollInterval:      cfg.Dispatch.WorkerPollInterval(),
		DispatchPerSecond: cfg.Dispatch.QueueRateLimit,
	}
	return jobs.NewWorker(queue, wc, log, dispatcher.Process)
}

// registerLifecycle runs the recovery pass and then starts the worker pool.
// Recovery runs first so re-queued jobs are visible before consumption
// begins.
func registerLifecycle(lc fx.Lifecycle, recovery *Recovery, worker *jobs.Worker, log *slog.Logger) {
	log = log.With(logger.Scope("emails"))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := recovery.Run(ctx); err != nil {
				// The periodic sweep retries; starting degraded beats
				// refusing to serve the API
				log.Error("startup recovery failed", logger.Error(err))
			}
			return worker.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})
}

// registerMaintenance schedules the periodic sweep: reclaim queue entries
// stuck in processing, then reconcile job records with the queue.
func registerMaintenance(s *sched.Scheduler, queue *jobs.Queue, recovery *Recovery, cfg *config.Config) error {
	threshold := time.Duration(cfg.Dispatch.StaleThresholdMinutes) * time.Minute

	return s.AddIntervalTask("stale_recovery", cfg.Dispatch.StaleRecoveryInterval(), func(ctx context.Context) error {
		if _, err := queue.RecoverStale(ctx, threshold); err != nil {
			return err
		}
		_, err := recovery.Run(ctx)
		return err
	})
}
