// Package main provides the entry point for the HRM service: the contact job
// dispatcher, the completion consumer, the cleanup scheduler and the
// admin HTTP API.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/hrm-platform/hrm-service/domain/contactjobs"
	"github.com/hrm-platform/hrm-service/domain/contacts"
	"github.com/hrm-platform/hrm-service/domain/conversationmedia"
	"github.com/hrm-platform/hrm-service/domain/health"
	"github.com/hrm-platform/hrm-service/domain/scheduler"
	"github.com/hrm-platform/hrm-service/domain/tracing"
	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/database"
	"github.com/hrm-platform/hrm-service/internal/queue"
	"github.com/hrm-platform/hrm-service/internal/server"
	"github.com/hrm-platform/hrm-service/internal/storage"
	"github.com/hrm-platform/hrm-service/pkg/logger"
)

func main() {
	// .env.local overrides .env
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		server.Module,
		storage.Module,
		queue.Module,
		tracing.Module,

		// Domain modules
		health.Module,
		scheduler.Module,
		conversationmedia.Module,
		contacts.Module,

		// Dispatcher, completion consumer and cleanup
		contactjobs.Module,
	).Run()
}
