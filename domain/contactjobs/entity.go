package contactjobs

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// JobType is the kind of deferred work a contact job represents.
type JobType string

const (
	JobTypeRetrieveTranscript JobType = "RETRIEVE_CONTACT_TRANSCRIPT"
	JobTypeScrubTranscript    JobType = "SCRUB_CONTACT_TRANSCRIPT"
)

// FailedAttempt is one entry of a job's failure audit log.
type FailedAttempt struct {
	AttemptNumber int             `json:"attemptNumber"`
	Payload       json.RawMessage `json:"payload"`
}

// ContactJob is a unit of deferred work tied to a contact.
//
// Rows are created in the same transaction as the contact mutation that needs
// the work, claimed by the dispatcher until a worker reports success, and
// removed by the cleanup sweeper once retention has elapsed.
type ContactJob struct {
	bun.BaseModel `bun:"table:hrm.contact_jobs,alias:cj"`

	ID                     string          `bun:"id,pk,type:uuid" json:"id"`
	AccountSID             string          `bun:"account_sid,notnull" json:"accountSid"`
	ContactID              string          `bun:"contact_id,notnull,type:uuid" json:"contactId"`
	JobType                JobType         `bun:"job_type,notnull" json:"jobType"`
	Resource               json.RawMessage `bun:"resource,type:jsonb,notnull" json:"resource"`
	AdditionalPayload      json.RawMessage `bun:"additional_payload,type:jsonb,notnull" json:"additionalPayload"`
	CreatedAt              time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	LastAttempt            *time.Time      `bun:"last_attempt" json:"lastAttempt"`
	AttemptNumber          int             `bun:"attempt_number,notnull" json:"attemptNumber"`
	FailedAttemptsPayloads []FailedAttempt `bun:"failed_attempts_payloads,type:jsonb,notnull" json:"failedAttemptsPayloads"`
	Completed              *time.Time      `bun:"completed" json:"completed"`
	CompletionPayload      json.RawMessage `bun:"completion_payload,type:jsonb" json:"completionPayload"`
}

// IsCompleted reports whether a SUCCESS outcome has been applied.
func (j *ContactJob) IsCompleted() bool {
	return j.Completed != nil
}

// IsDue reports whether the dispatcher may claim the job at now.
func (j *ContactJob) IsDue(now time.Time, backoff time.Duration) bool {
	if j.Completed != nil {
		return false
	}
	return j.LastAttempt == nil || now.Sub(*j.LastAttempt) >= backoff
}

// TypeStats aggregates jobs of one type.
type TypeStats struct {
	JobType      JobType `bun:"job_type" json:"jobType"`
	Pending      int     `bun:"pending" json:"pending"`
	Completed    int     `bun:"completed" json:"completed"`
	WithFailures int     `bun:"with_failures" json:"withFailures"`
}
