package contactjobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Successor describes the job created when a job of another type succeeds.
type Successor struct {
	JobType           JobType
	AdditionalPayload json.RawMessage
}

// SuccessResult is what a job type derives from a SUCCESS completion.
type SuccessResult struct {
	Update    ResourceUpdate
	Successor *Successor
}

// Definition holds the behaviour of one job type.
type Definition struct {
	Type JobType

	// ResourceID extracts the id of the resource the job works on.
	ResourceID func(job *ContactJob) (string, error)

	// OnSuccess maps the job and its completion payload to the resource
	// update and the optional follow-on job. It must not have side effects.
	OnSuccess func(job *ContactJob, completion json.RawMessage) (SuccessResult, error)

	// HasAttachedData reports whether the resource still holds data that
	// cleanup must delete. Nil means the job type owns nothing deletable.
	HasAttachedData func(res *Resource) bool
}

// Cleanable reports whether completed jobs of this type are cleanup candidates.
func (d Definition) Cleanable() bool {
	return d.HasAttachedData != nil
}

// transcriptPayload is the additional payload of both transcript job types.
type transcriptPayload struct {
	ConversationMediaID string `json:"conversationMediaId"`
	OriginalLocation    string `json:"originalLocation,omitempty"`
}

// locationPayload is the SUCCESS payload of both transcript job types.
type locationPayload struct {
	Location string `json:"location"`
}

var definitions = map[JobType]Definition{
	JobTypeRetrieveTranscript: {
		Type:       JobTypeRetrieveTranscript,
		ResourceID: conversationMediaID,
		OnSuccess: func(job *ContactJob, completion json.RawMessage) (SuccessResult, error) {
			loc, err := parseLocation(completion)
			if err != nil {
				return SuccessResult{}, err
			}
			mediaID, err := conversationMediaID(job)
			if err != nil {
				return SuccessResult{}, err
			}
			next, err := json.Marshal(transcriptPayload{ConversationMediaID: mediaID, OriginalLocation: loc})
			if err != nil {
				return SuccessResult{}, fmt.Errorf("encode successor payload: %w", err)
			}
			return SuccessResult{
				Update:    ResourceUpdate{Location: &loc},
				Successor: &Successor{JobType: JobTypeScrubTranscript, AdditionalPayload: next},
			}, nil
		},
	},
	JobTypeScrubTranscript: {
		Type:       JobTypeScrubTranscript,
		ResourceID: conversationMediaID,
		OnSuccess: func(job *ContactJob, completion json.RawMessage) (SuccessResult, error) {
			loc, err := parseLocation(completion)
			if err != nil {
				return SuccessResult{}, err
			}
			return SuccessResult{Update: ResourceUpdate{ScrubbedLocation: &loc}}, nil
		},
		// The raw transcript stays in storage until the sweeper removes it.
		HasAttachedData: func(res *Resource) bool {
			return res.Location != ""
		},
	},
}

// Lookup returns the definition of a job type.
func Lookup(t JobType) (Definition, error) {
	def, ok := definitions[t]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	return def, nil
}

// CleanableTypes lists the job types the sweeper inspects.
func CleanableTypes() []JobType {
	var types []JobType
	for _, t := range []JobType{JobTypeRetrieveTranscript, JobTypeScrubTranscript} {
		if definitions[t].Cleanable() {
			types = append(types, t)
		}
	}
	return types
}

func conversationMediaID(job *ContactJob) (string, error) {
	var p transcriptPayload
	if len(job.AdditionalPayload) > 0 {
		if err := json.Unmarshal(job.AdditionalPayload, &p); err != nil {
			return "", fmt.Errorf("decode additional payload of job %s: %w", job.ID, err)
		}
	}
	if p.ConversationMediaID == "" {
		return "", fmt.Errorf("job %s has no conversationMediaId", job.ID)
	}
	return p.ConversationMediaID, nil
}

func parseLocation(completion json.RawMessage) (string, error) {
	var p locationPayload
	if err := json.Unmarshal(completion, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCompletionPayload, err)
	}
	if strings.TrimSpace(p.Location) == "" {
		return "", fmt.Errorf("%w: location is required", ErrInvalidCompletionPayload)
	}
	return p.Location, nil
}
