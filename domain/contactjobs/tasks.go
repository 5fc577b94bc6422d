package contactjobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrm-platform/hrm-service/domain/scheduler"
	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/pkg/logger"
	"github.com/hrm-platform/hrm-service/pkg/metrics"
)

const (
	cleanupTaskName = "contact_job_cleanup"
	statsTaskName   = "contact_job_stats"
	statsInterval   = time.Minute
)

// RegisterTasks schedules the cleanup sweep and the backlog gauge refresh.
func RegisterTasks(sched *scheduler.Scheduler, sweeper *Sweeper, store Store, cfg *config.ContactJobsConfig, log *slog.Logger) error {
	log = log.With(logger.Scope("contactjobs.tasks"))

	if err := sched.AddCronTask(cleanupTaskName, cfg.CleanupSchedule, sweeper.Run); err != nil {
		return err
	}
	if err := sched.AddIntervalTask(statsTaskName, statsInterval, func(ctx context.Context) error {
		return refreshPendingGauge(ctx, store)
	}); err != nil {
		return err
	}

	log.Info("contact job tasks registered",
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.Duration("retention", cfg.Retention),
	)
	return nil
}

func refreshPendingGauge(ctx context.Context, store Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	metrics.PendingJobs.Reset()
	for _, s := range stats {
		metrics.PendingJobs.WithLabelValues(string(s.JobType)).Set(float64(s.Pending))
	}
	return nil
}
