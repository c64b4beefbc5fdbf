// Package main provides the entry point for the OutBox scheduler API
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/outbox-sh/outbox/domain/emails"
	"github.com/outbox-sh/outbox/domain/health"
	"github.com/outbox-sh/outbox/domain/ratelimit"
	"github.com/outbox-sh/outbox/domain/users"
	"github.com/outbox-sh/outbox/internal/config"
	"github.com/outbox-sh/outbox/internal/database"
	"github.com/outbox-sh/outbox/internal/jobs"
	"github.com/outbox-sh/outbox/internal/migrate"
	"github.com/outbox-sh/outbox/internal/redisconn"
	"github.com/outbox-sh/outbox/internal/sched"
	"github.com/outbox-sh/outbox/internal/server"
	"github.com/outbox-sh/outbox/pkg/clock"
	"github.com/outbox-sh/outbox/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		clock.Module,
		database.Module,
		redisconn.Module,
		migrate.Module,
		server.Module,
		jobs.Module,
		sched.Module,

		// Domain modules
		health.Module,
		users.Module,
		ratelimit.Module,
		emails.Module,
	).Run()
}
