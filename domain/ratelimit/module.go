package ratelimit

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/outbox-sh/outbox/internal/config"
	"github.com/outbox-sh/outbox/pkg/clock"
)

// Module provides the rate-limit domain
var Module = fx.Module("ratelimit",
	fx.Provide(newLimiterFromConfig),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

func newLimiterFromConfig(rdb *redis.Client, clk clock.Clock, cfg *config.Config, log *slog.Logger) *Limiter {
	limits := Limits{
		PerSender: cfg.Dispatch.MaxEmailsPerHourPerSender,
		Global:    cfg.Dispatch.GlobalMaxEmailsPerHour,
	}
	return NewLimiter(rdb, clk, limits, log)
}
