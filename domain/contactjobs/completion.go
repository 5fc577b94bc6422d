package contactjobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hrm-platform/hrm-service/pkg/logger"
	"github.com/hrm-platform/hrm-service/pkg/metrics"
	"github.com/hrm-platform/hrm-service/pkg/tracing"
)

// Outcome describes what handling a completion message did.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeFailureRecorded  Outcome = "failure_recorded"
	// OutcomeIgnored covers completions for jobs that are gone, and failures
	// reported for jobs that already succeeded.
	OutcomeIgnored Outcome = "ignored"
)

// CompletionHandler applies worker outcomes to the job store.
type CompletionHandler struct {
	store     Store
	resources ResourceClient
	log       *slog.Logger
	now       func() time.Time
}

// NewCompletionHandler creates a new completion handler
func NewCompletionHandler(store Store, resources ResourceClient, log *slog.Logger) *CompletionHandler {
	return &CompletionHandler{
		store:     store,
		resources: resources,
		log:       log.With(logger.Scope("contactjobs.completion")),
		now:       time.Now,
	}
}

// Handle applies one completion message. Redelivering a message is safe: a
// SUCCESS for a completed job changes nothing and a FAILURE only adds an
// audit entry.
func (h *CompletionHandler) Handle(ctx context.Context, msg CompletionMessage) (Outcome, error) {
	ctx, span := tracing.Start(ctx, "contactjobs.completion",
		attribute.String("hrm.contact_job.id", msg.JobID),
		attribute.String("hrm.contact_job.type", string(msg.JobType)),
		attribute.String("hrm.contact_job.result", string(msg.AttemptResult)),
		attribute.Int("hrm.contact_job.attempt", msg.AttemptNumber),
	)
	defer span.End()

	var (
		outcome Outcome
		err     error
	)
	switch msg.AttemptResult {
	case AttemptSuccess:
		outcome, err = h.handleSuccess(ctx, msg)
	case AttemptFailure:
		outcome, err = h.handleFailure(ctx, msg)
	default:
		err = fmt.Errorf("%w: attemptResult %q", ErrInvalidMessage, msg.AttemptResult)
	}

	if err != nil {
		tracing.RecordError(span, err)
		metrics.Completions.WithLabelValues(string(msg.JobType), string(msg.AttemptResult), "error").Inc()
		return "", err
	}

	metrics.Completions.WithLabelValues(string(msg.JobType), string(msg.AttemptResult), string(outcome)).Inc()
	return outcome, nil
}

func (h *CompletionHandler) handleSuccess(ctx context.Context, msg CompletionMessage) (Outcome, error) {
	var outcome Outcome

	err := h.store.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		job, newly, err := h.store.Complete(ctx, tx, msg.JobID, h.now(), msg.Payload)
		if err != nil {
			return fmt.Errorf("complete contact job: %w", err)
		}
		if job == nil {
			outcome = OutcomeIgnored
			return nil
		}
		if !newly {
			outcome = OutcomeAlreadyCompleted
			return nil
		}

		if job.JobType != msg.JobType {
			h.log.Warn("completion job type does not match stored job",
				slog.String("job_id", job.ID),
				slog.String("message_job_type", string(msg.JobType)),
				slog.String("job_type", string(job.JobType)),
			)
		}

		if err := h.applySuccess(ctx, tx, job, msg); err != nil {
			return err
		}
		outcome = OutcomeCompleted
		return nil
	})
	if err != nil {
		return "", err
	}

	switch outcome {
	case OutcomeIgnored:
		h.log.Warn("completion for unknown contact job ignored", slog.String("job_id", msg.JobID))
	case OutcomeAlreadyCompleted:
		h.log.Debug("contact job already completed", slog.String("job_id", msg.JobID))
	default:
		h.log.Info("contact job completed",
			slog.String("job_id", msg.JobID),
			slog.Int("attempt_number", msg.AttemptNumber),
		)
	}
	return outcome, nil
}

// applySuccess updates the job's resource and creates the successor job, all
// on tx.
func (h *CompletionHandler) applySuccess(ctx context.Context, tx bun.IDB, job *ContactJob, msg CompletionMessage) error {
	def, err := Lookup(job.JobType)
	if err != nil {
		return err
	}

	result, err := def.OnSuccess(job, msg.Payload)
	if err != nil {
		return err
	}

	resourceID, err := def.ResourceID(job)
	if err != nil {
		return err
	}

	var updated *Resource
	if result.Update.IsEmpty() {
		updated, err = h.resources.GetResource(ctx, job.AccountSID, resourceID)
	} else {
		updated, err = h.resources.UpdateResource(ctx, tx, job.AccountSID, resourceID, result.Update)
	}
	if err != nil {
		return fmt.Errorf("update resource %s: %w", resourceID, err)
	}
	if updated == nil {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}

	if result.Successor == nil {
		return nil
	}

	snapshot, err := withMedia(job.Resource, updated)
	if err != nil {
		return err
	}
	next, err := h.store.Create(ctx, tx, CreateParams{
		AccountSID:        job.AccountSID,
		ContactID:         job.ContactID,
		JobType:           result.Successor.JobType,
		Resource:          snapshot,
		AdditionalPayload: result.Successor.AdditionalPayload,
	})
	if err != nil {
		return fmt.Errorf("create successor job: %w", err)
	}

	h.log.Info("created successor contact job",
		slog.String("job_id", job.ID),
		slog.String("successor_id", next.ID),
		slog.String("successor_type", string(next.JobType)),
	)
	return nil
}

func (h *CompletionHandler) handleFailure(ctx context.Context, msg CompletionMessage) (Outcome, error) {
	appended, err := h.store.AppendFailedAttemptPayload(ctx, msg.JobID, msg.AttemptNumber, msg.Payload)
	if err != nil {
		return "", fmt.Errorf("record failed attempt: %w", err)
	}
	if !appended {
		h.log.Warn("failure for missing or completed contact job ignored",
			slog.String("job_id", msg.JobID),
			slog.Int("attempt_number", msg.AttemptNumber),
		)
		return OutcomeIgnored, nil
	}

	h.log.Info("contact job attempt failed",
		slog.String("job_id", msg.JobID),
		slog.String("job_type", string(msg.JobType)),
		slog.Int("attempt_number", msg.AttemptNumber),
	)
	return OutcomeFailureRecorded, nil
}
