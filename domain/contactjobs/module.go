package contactjobs

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/jobs"
	"github.com/hrm-platform/hrm-service/pkg/logger"
)

// Module wires the job store, the dispatcher and completion consumer loops,
// the scheduled cleanup and the admin routes.
var Module = fx.Module("contactjobs",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		NewDispatcher,
		NewCompletionHandler,
		NewConsumer,
		NewSweeper,
		NewPollers,
		NewHandler,
	),
	fx.Invoke(RegisterPollers),
	fx.Invoke(RegisterTasks),
	fx.Invoke(RegisterRoutes),
)

// Pollers holds the dispatcher and completion consumer loops.
type Pollers struct {
	loops []*jobs.Poller
}

// PollerStatus is the state of one loop as reported by the stats endpoint.
type PollerStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	jobs.PollerMetrics
}

// NewPollers builds the loops. It returns an empty set when the pipeline is
// disabled.
func NewPollers(d *Dispatcher, c *Consumer, cfg *config.ContactJobsConfig, log *slog.Logger) *Pollers {
	log = log.With(logger.Scope("contactjobs"))

	if !cfg.Enabled {
		log.Info("contact job pipeline disabled (CONTACT_JOBS_ENABLED=false)")
		return &Pollers{}
	}

	return &Pollers{loops: []*jobs.Poller{
		jobs.NewPoller(jobs.PollerConfig{
			Name:       "contact-job-dispatcher",
			Interval:   cfg.PollInterval,
			RunOnStart: true,
		}, log, d.Tick),
		jobs.NewPoller(jobs.PollerConfig{
			Name:       "contact-job-completions",
			Interval:   cfg.CompletionPollInterval,
			RunOnStart: true,
		}, log, c.Tick),
	}}
}

// Status reports every loop in start order. It is safe on a nil receiver.
func (p *Pollers) Status() []PollerStatus {
	if p == nil {
		return []PollerStatus{}
	}
	out := make([]PollerStatus, 0, len(p.loops))
	for _, l := range p.loops {
		out = append(out, PollerStatus{
			Name:          l.Name(),
			Running:       l.IsRunning(),
			PollerMetrics: l.Metrics(),
		})
	}
	return out
}

// RegisterPollers runs the dispatcher and the completion consumer for the
// lifetime of the application.
func RegisterPollers(lc fx.Lifecycle, set *Pollers) {
	pollers := set.loops
	if len(pollers) == 0 {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, p := range pollers {
				if err := p.Start(ctx); err != nil {
					return err
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var firstErr error
			for _, p := range pollers {
				if err := p.Stop(ctx); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
	})
}
