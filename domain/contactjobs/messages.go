package contactjobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DispatchMessage is published once per claim to the job type's channel.
type DispatchMessage struct {
	JobID             string          `json:"jobId"`
	JobType           JobType         `json:"jobType"`
	AttemptNumber     int             `json:"attemptNumber"`
	AccountSID        string          `json:"accountSid"`
	ContactID         string          `json:"contactId"`
	ResourceSnapshot  json.RawMessage `json:"resourceSnapshot"`
	AdditionalPayload json.RawMessage `json:"additionalPayload"`
}

// NewDispatchMessage builds the dispatch message for a claimed job.
func NewDispatchMessage(job *ContactJob) DispatchMessage {
	return DispatchMessage{
		JobID:             job.ID,
		JobType:           job.JobType,
		AttemptNumber:     job.AttemptNumber,
		AccountSID:        job.AccountSID,
		ContactID:         job.ContactID,
		ResourceSnapshot:  job.Resource,
		AdditionalPayload: job.AdditionalPayload,
	}
}

// AttemptResult is the outcome a worker reports.
type AttemptResult string

const (
	AttemptSuccess AttemptResult = "SUCCESS"
	AttemptFailure AttemptResult = "FAILURE"
)

// CompletionMessage is published by workers when an attempt finishes.
type CompletionMessage struct {
	JobID         string          `json:"jobId"`
	JobType       JobType         `json:"jobType"`
	AttemptNumber int             `json:"attemptNumber"`
	AttemptResult AttemptResult   `json:"attemptResult"`
	Payload       json.RawMessage `json:"payload"`
}

// UnmarshalJSON also accepts the outcome under "attemptPayload", as sent by
// older workers. "payload" wins when both are present.
func (m *CompletionMessage) UnmarshalJSON(data []byte) error {
	type plain CompletionMessage
	var aux struct {
		plain
		AttemptPayload json.RawMessage `json:"attemptPayload"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = CompletionMessage(aux.plain)
	if len(m.Payload) == 0 {
		m.Payload = aux.AttemptPayload
	}
	return nil
}

// ParseCompletionMessage decodes and validates a completion message body.
// The attempt result is accepted in any case.
func ParseCompletionMessage(body []byte) (CompletionMessage, error) {
	var msg CompletionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return CompletionMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		return CompletionMessage{}, fmt.Errorf("%w: jobId %q", ErrInvalidMessage, msg.JobID)
	}
	if _, err := Lookup(msg.JobType); err != nil {
		return CompletionMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.AttemptNumber < 0 {
		return CompletionMessage{}, fmt.Errorf("%w: attemptNumber %d", ErrInvalidMessage, msg.AttemptNumber)
	}

	msg.AttemptResult = AttemptResult(strings.ToUpper(string(msg.AttemptResult)))
	switch msg.AttemptResult {
	case AttemptSuccess, AttemptFailure:
	default:
		return CompletionMessage{}, fmt.Errorf("%w: attemptResult %q", ErrInvalidMessage, msg.AttemptResult)
	}

	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage("null")
	}
	return msg, nil
}
