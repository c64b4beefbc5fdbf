package jobs

import (
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/outbox-sh/outbox/internal/config"
)

// Module provides the delay queue. Worker pools are constructed by the
// domains that consume the queue, since they own the process function.
var Module = fx.Module("jobs",
	fx.Provide(newQueueFromConfig),
)

func newQueueFromConfig(cfg *config.Config, db bun.IDB, log *slog.Logger) *Queue {
	qc := QueueConfig{
		BackoffBase:       cfg.Dispatch.TransportRetryBase(),
		DefaultRetryLimit: cfg.Dispatch.TransportRetryAttempts,
	}
	return NewQueue(db, qc, log)
}
