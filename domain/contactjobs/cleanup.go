package contactjobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/pkg/logger"
	"github.com/hrm-platform/hrm-service/pkg/metrics"
	"github.com/hrm-platform/hrm-service/pkg/tracing"
)

// SweepResult summarizes one cleanup pass.
type SweepResult struct {
	Examined int `json:"examined"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	// Orphaned counts jobs whose resource data was deleted but whose row could
	// not be. Later passes see nothing attached and skip them.
	Orphaned int `json:"orphaned"`
}

// Sweeper deletes completed jobs past the retention window together with the
// stored data their resource still holds.
//
// A job is only deleted after its resource data has been deleted. Jobs whose
// resource holds nothing are left in place, and a failure on one job does not
// stop the pass.
type Sweeper struct {
	store     Store
	resources ResourceClient
	cfg       *config.ContactJobsConfig
	log       *slog.Logger
	now       func() time.Time
}

// NewSweeper creates a new cleanup sweeper
func NewSweeper(store Store, resources ResourceClient, cfg *config.ContactJobsConfig, log *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		resources: resources,
		cfg:       cfg,
		log:       log.With(logger.Scope("contactjobs.cleanup")),
		now:       time.Now,
	}
}

// Sweep runs one cleanup pass. It returns an error only when the candidate
// list cannot be read or ctx ends.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := tracing.Start(ctx, "contactjobs.cleanup")
	defer span.End()

	var result SweepResult
	query := CleanupQuery{
		CompletedBefore: s.now().Add(-s.cfg.Retention),
		JobTypes:        CleanableTypes(),
		Limit:           s.cfg.CleanupPageSize,
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		jobs, err := s.store.ListCleanupCandidates(ctx, query)
		if err != nil {
			tracing.RecordError(span, err)
			s.log.Error("failed to list cleanup candidates", logger.Error(err))
			return result, err
		}

		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Examined++

			outcome := s.cleanup(ctx, job)
			metrics.CleanupOutcomes.WithLabelValues(outcome).Inc()
			switch outcome {
			case "deleted":
				result.Deleted++
			case "skipped":
				result.Skipped++
			case "orphaned":
				result.Orphaned++
			default:
				result.Failed++
			}
		}

		if len(jobs) < query.Limit {
			break
		}
		query.AfterID = jobs[len(jobs)-1].ID
	}

	span.SetAttributes(
		attribute.Int("hrm.cleanup.examined", result.Examined),
		attribute.Int("hrm.cleanup.deleted", result.Deleted),
		attribute.Int("hrm.cleanup.failed", result.Failed),
		attribute.Int("hrm.cleanup.orphaned", result.Orphaned),
	)
	s.log.Info("contact job cleanup finished",
		slog.Int("examined", result.Examined),
		slog.Int("deleted", result.Deleted),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("orphaned", result.Orphaned),
	)
	return result, nil
}

// cleanup handles one job and returns its outcome label.
func (s *Sweeper) cleanup(ctx context.Context, job *ContactJob) string {
	log := s.log.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.JobType)),
	)

	if err := s.deleteResource(ctx, job); err != nil {
		if errors.Is(err, errNothingAttached) {
			return "skipped"
		}
		if errors.Is(err, ErrAttachmentGone) {
			log.Info("contact job resource data already gone, leaving job in place")
			return "skipped"
		}
		log.Warn("failed to delete contact job resource", logger.Error(err))
		return "failed"
	}

	deleted, err := s.store.Delete(ctx, job.ID)
	if err != nil {
		log.Error("resource data deleted but contact job row kept; later sweeps will skip it",
			logger.Error(err),
		)
		return "orphaned"
	}
	if !deleted {
		// Removed by a concurrent sweep.
		return "skipped"
	}

	log.Debug("contact job cleaned up")
	return "deleted"
}

var errNothingAttached = errors.New("nothing attached")

func (s *Sweeper) deleteResource(ctx context.Context, job *ContactJob) error {
	def, err := Lookup(job.JobType)
	if err != nil {
		return err
	}
	if !def.Cleanable() {
		return errNothingAttached
	}

	resourceID, err := def.ResourceID(job)
	if err != nil {
		return err
	}

	res, err := s.resources.GetResource(ctx, job.AccountSID, resourceID)
	if err != nil {
		return fmt.Errorf("get resource %s: %w", resourceID, err)
	}
	if res == nil || !def.HasAttachedData(res) {
		return errNothingAttached
	}

	if err := s.resources.DeleteResource(ctx, job.AccountSID, resourceID); err != nil {
		return fmt.Errorf("delete resource %s: %w", resourceID, err)
	}
	return nil
}

// Run adapts Sweep to the scheduler.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
