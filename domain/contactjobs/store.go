package contactjobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/hrm-platform/hrm-service/internal/database"
	"github.com/hrm-platform/hrm-service/pkg/apperror"
	"github.com/hrm-platform/hrm-service/pkg/logger"
	"github.com/hrm-platform/hrm-service/pkg/pgutils"
)

// CreateParams describes a new job.
type CreateParams struct {
	AccountSID        string
	ContactID         string
	JobType           JobType
	Resource          json.RawMessage
	AdditionalPayload json.RawMessage
}

// PullParams bounds one claim.
type PullParams struct {
	Now     time.Time
	Backoff time.Duration
	Limit   int
	// MaxAttempts excludes jobs claimed this many times. 0 disables the limit.
	MaxAttempts int
}

// CleanupQuery pages through completed jobs past retention, ordered by id.
type CleanupQuery struct {
	CompletedBefore time.Time
	JobTypes        []JobType
	AfterID         string
	Limit           int
}

// Store is the durable job table.
//
// Methods taking a db run on that handle, which is a transaction when the
// caller needs the operation to commit together with other writes. A nil db
// uses the store's own connection.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error

	Create(ctx context.Context, db bun.IDB, params CreateParams) (*ContactJob, error)
	// PullDueJobs claims up to Limit due jobs: their rows are locked for the
	// rest of the transaction, last_attempt is set to Now and attempt_number
	// is incremented. Rows locked by another claimer are skipped.
	PullDueJobs(ctx context.Context, db bun.IDB, params PullParams) ([]*ContactJob, error)
	// Complete sets completed to completedAt and stores completion_payload,
	// once. It reports whether this call completed the job; a missing job
	// returns nil. completedAt comes from the same clock as PullParams.Now and
	// CleanupQuery.CompletedBefore.
	Complete(ctx context.Context, db bun.IDB, id string, completedAt time.Time, payload json.RawMessage) (*ContactJob, bool, error)
	// AppendFailedAttemptPayload appends to the failure log. It reports false
	// when the job is missing or already completed.
	AppendFailedAttemptPayload(ctx context.Context, id string, attemptNumber int, payload json.RawMessage) (bool, error)
	// GetByID returns nil when the job does not exist.
	GetByID(ctx context.Context, id string) (*ContactJob, error)

	ListCleanupCandidates(ctx context.Context, q CleanupQuery) ([]*ContactJob, error)
	// Delete removes a completed job. Pending jobs are never deleted.
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) ([]TypeStats, error)
}

// Repository is the Postgres Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new contact job repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("contactjobs.repo")),
	}
}

var _ Store = (*Repository)(nil)

func (r *Repository) conn(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// RunInTx runs fn in a transaction on the repository's database.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error {
	return database.WithTx(ctx, r.db, fn)
}

// Create inserts a new pending job.
func (r *Repository) Create(ctx context.Context, db bun.IDB, p CreateParams) (*ContactJob, error) {
	job, err := newJob(p)
	if err != nil {
		return nil, err
	}

	_, err = r.conn(db).NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to create contact job",
			slog.String("job_type", string(p.JobType)),
			slog.String("contact_id", p.ContactID),
			logger.Error(err),
		)
		if pgutils.IsForeignKeyViolation(err) {
			return nil, apperror.ErrContactNotFound.WithInternal(err)
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return job, nil
}

func newJob(p CreateParams) (*ContactJob, error) {
	if _, err := Lookup(p.JobType); err != nil {
		return nil, err
	}
	if p.AccountSID == "" || p.ContactID == "" {
		return nil, errors.New("contact job requires accountSid and contactId")
	}
	if len(p.Resource) == 0 || !json.Valid(p.Resource) {
		return nil, errors.New("contact job requires a JSON resource snapshot")
	}

	additional := p.AdditionalPayload
	if len(additional) == 0 {
		additional = json.RawMessage("{}")
	}
	if !json.Valid(additional) {
		return nil, errors.New("contact job additional payload is not valid JSON")
	}

	return &ContactJob{
		ID:                     uuid.NewString(),
		AccountSID:             p.AccountSID,
		ContactID:              p.ContactID,
		JobType:                p.JobType,
		Resource:               p.Resource,
		AdditionalPayload:      additional,
		FailedAttemptsPayloads: []FailedAttempt{},
	}, nil
}

// PullDueJobs claims due jobs with FOR UPDATE SKIP LOCKED. Call it inside a
// transaction so the row locks hold until commit.
func (r *Repository) PullDueJobs(ctx context.Context, db bun.IDB, p PullParams) ([]*ContactJob, error) {
	if p.Limit <= 0 {
		return nil, nil
	}

	cutoff := p.Now.Add(-p.Backoff)
	args := []any{cutoff}
	attemptFilter := ""
	if p.MaxAttempts > 0 {
		attemptFilter = "AND attempt_number < ?"
		args = append(args, p.MaxAttempts)
	}
	args = append(args, p.Limit, p.Now)

	var jobs []*ContactJob
	err := r.conn(db).NewRaw(fmt.Sprintf(`WITH due AS (
		SELECT id FROM hrm.contact_jobs
		WHERE completed IS NULL
			AND (last_attempt IS NULL OR last_attempt <= ?)
			%s
		ORDER BY created_at
		LIMIT ?
		FOR UPDATE SKIP LOCKED
	)
	UPDATE hrm.contact_jobs cj
	SET last_attempt = ?,
		attempt_number = cj.attempt_number + 1
	FROM due
	WHERE cj.id = due.id
	RETURNING cj.*`, attemptFilter), args...).Scan(ctx, &jobs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to pull due contact jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return jobs, nil
}

// Complete marks a job completed unless it already is.
func (r *Repository) Complete(ctx context.Context, db bun.IDB, id string, completedAt time.Time, payload json.RawMessage) (*ContactJob, bool, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	job := new(ContactJob)
	err := r.conn(db).NewRaw(`UPDATE hrm.contact_jobs
		SET completed = ?, completion_payload = ?::jsonb
		WHERE id = ? AND completed IS NULL
		RETURNING *`, completedAt, string(payload), id).Scan(ctx, job)
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to complete contact job", slog.String("job_id", id), logger.Error(err))
		return nil, false, apperror.ErrDatabase.WithInternal(err)
	}

	existing, err := r.get(ctx, r.conn(db), id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// AppendFailedAttemptPayload appends one entry to the failure log in a single
// statement, so concurrent appends never overwrite each other.
func (r *Repository) AppendFailedAttemptPayload(ctx context.Context, id string, attemptNumber int, payload json.RawMessage) (bool, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	res, err := r.db.NewRaw(`UPDATE hrm.contact_jobs
		SET failed_attempts_payloads = failed_attempts_payloads || jsonb_build_array(
			jsonb_build_object('attemptNumber', ?::int, 'payload', ?::jsonb)
		)
		WHERE id = ? AND completed IS NULL`, attemptNumber, string(payload), id).Exec(ctx)
	if err != nil {
		r.log.Error("failed to append failed attempt",
			slog.String("job_id", id),
			slog.Int("attempt_number", attemptNumber),
			logger.Error(err),
		)
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return n > 0, nil
}

// GetByID returns a job by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*ContactJob, error) {
	return r.get(ctx, r.db, id)
}

func (r *Repository) get(ctx context.Context, db bun.IDB, id string) (*ContactJob, error) {
	job := new(ContactJob)
	err := db.NewSelect().
		Model(job).
		Where("cj.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get contact job", slog.String("job_id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return job, nil
}

// ListCleanupCandidates returns the next page of completed jobs past retention.
func (r *Repository) ListCleanupCandidates(ctx context.Context, q CleanupQuery) ([]*ContactJob, error) {
	if len(q.JobTypes) == 0 || q.Limit <= 0 {
		return nil, nil
	}

	types := make([]string, len(q.JobTypes))
	for i, t := range q.JobTypes {
		types[i] = string(t)
	}

	var jobs []*ContactJob
	query := r.db.NewSelect().
		Model(&jobs).
		Where("cj.completed IS NOT NULL").
		Where("cj.completed <= ?", q.CompletedBefore).
		Where("cj.job_type = ANY(?)", pq.Array(types)).
		OrderExpr("cj.id ASC").
		Limit(q.Limit)
	if q.AfterID != "" {
		query = query.Where("cj.id > ?", q.AfterID)
	}

	if err := query.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to list cleanup candidates", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return jobs, nil
}

// Delete removes a completed job.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewDelete().
		TableExpr("hrm.contact_jobs").
		Where("id = ?", id).
		Where("completed IS NOT NULL").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete contact job", slog.String("job_id", id), logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return n > 0, nil
}

// Stats counts jobs by type.
func (r *Repository) Stats(ctx context.Context) ([]TypeStats, error) {
	var stats []TypeStats
	err := r.db.NewRaw(`SELECT job_type,
		COUNT(*) FILTER (WHERE completed IS NULL) AS pending,
		COUNT(*) FILTER (WHERE completed IS NOT NULL) AS completed,
		COUNT(*) FILTER (WHERE jsonb_array_length(failed_attempts_payloads) > 0) AS with_failures
		FROM hrm.contact_jobs
		GROUP BY job_type
		ORDER BY job_type`).Scan(ctx, &stats)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to get contact job stats", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return stats, nil
}
