package contactjobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/queue"
	"github.com/hrm-platform/hrm-service/pkg/logger"
	"github.com/hrm-platform/hrm-service/pkg/metrics"
	"github.com/hrm-platform/hrm-service/pkg/tracing"
)

// Dispatcher claims due jobs and publishes them to their dispatch channels.
//
// A claim commits before anything is published. If publishing fails the job
// stays claimed, so it is not due again until the backoff has elapsed; the
// next claim after that republishes it with a higher attempt number.
type Dispatcher struct {
	store     Store
	publisher queue.Publisher
	channels  queue.Channels
	cfg       *config.ContactJobsConfig
	limiter   *rate.Limiter
	log       *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(store Store, publisher queue.Publisher, channels queue.Channels, cfg *config.ContactJobsConfig, log *slog.Logger) *Dispatcher {
	limit := rate.Inf
	if cfg.PublishRate > 0 {
		limit = rate.Limit(cfg.PublishRate)
	}
	burst := cfg.MaxPerTick
	if burst < 1 {
		burst = 1
	}

	return &Dispatcher{
		store:     store,
		publisher: publisher,
		channels:  channels,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, burst),
		log:       log.With(logger.Scope("contactjobs.dispatcher")),
		now:       time.Now,
	}
}

// Dispatch runs one claim-and-publish pass and returns the number of
// messages published. Only claim errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := tracing.Start(ctx, "contactjobs.dispatch")
	defer span.End()

	now := d.now()
	var jobs []*ContactJob
	err := d.store.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		var err error
		jobs, err = d.store.PullDueJobs(ctx, tx, PullParams{
			Now:         now,
			Backoff:     d.cfg.Backoff,
			Limit:       d.cfg.MaxPerTick,
			MaxAttempts: d.cfg.MaxAttempts,
		})
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		d.log.Error("failed to claim due contact jobs", logger.Error(err))
		return 0, err
	}

	span.SetAttributes(attribute.Int("hrm.contact_jobs.claimed", len(jobs)))
	if len(jobs) == 0 {
		return 0, nil
	}

	published := 0
	for _, job := range jobs {
		metrics.JobsClaimed.WithLabelValues(string(job.JobType)).Inc()

		if err := d.limiter.Wait(ctx); err != nil {
			// Remaining jobs are retried after backoff like any failed publish.
			d.log.Warn("dispatch interrupted",
				slog.Int("claimed", len(jobs)),
				slog.Int("published", published),
				logger.Error(err),
			)
			break
		}

		if err := d.publish(ctx, job); err != nil {
			metrics.PublishFailures.WithLabelValues(string(job.JobType)).Inc()
			d.log.Warn("failed to publish contact job, will retry after backoff",
				slog.String("job_id", job.ID),
				slog.String("job_type", string(job.JobType)),
				slog.Int("attempt_number", job.AttemptNumber),
				slog.Duration("backoff", d.cfg.Backoff),
				logger.Error(err),
			)
			continue
		}

		metrics.JobsPublished.WithLabelValues(string(job.JobType)).Inc()
		published++
	}

	span.SetAttributes(attribute.Int("hrm.contact_jobs.published", published))
	d.log.Debug("dispatched contact jobs",
		slog.Int("claimed", len(jobs)),
		slog.Int("published", published),
	)
	return published, nil
}

func (d *Dispatcher) publish(ctx context.Context, job *ContactJob) error {
	body, err := json.Marshal(NewDispatchMessage(job))
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, d.channels.Dispatch(string(job.JobType)), body)
}

// Tick adapts Dispatch to the poller.
func (d *Dispatcher) Tick(ctx context.Context) error {
	_, err := d.Dispatch(ctx)
	return err
}
