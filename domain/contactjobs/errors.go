package contactjobs

import "errors"

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("contact job not found")
	// ErrUnknownJobType is returned for a job type outside the closed set.
	ErrUnknownJobType = errors.New("unknown contact job type")
	// ErrInvalidMessage marks a completion message that cannot be decoded.
	ErrInvalidMessage = errors.New("invalid completion message")
	// ErrInvalidCompletionPayload marks a SUCCESS payload the job type cannot apply.
	ErrInvalidCompletionPayload = errors.New("invalid completion payload")
	// ErrResourceNotFound is returned when the resource a job refers to is gone.
	ErrResourceNotFound = errors.New("contact job resource not found")
	// ErrAttachmentGone is returned by DeleteResource when the stored data was
	// already removed outside the pipeline. The resource record is updated to
	// match; there was nothing to delete.
	ErrAttachmentGone = errors.New("contact job resource data no longer stored")
)
