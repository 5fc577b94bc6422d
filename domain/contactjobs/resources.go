package contactjobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"
)

// Resource is the external record a job works on: a conversation media item
// holding a transcript.
type Resource struct {
	ID               string `json:"id"`
	AccountSID       string `json:"accountSid"`
	ContactID        string `json:"contactId"`
	Location         string `json:"location,omitempty"`
	ScrubbedLocation string `json:"scrubbedLocation,omitempty"`
}

// ResourceUpdate changes the fields that are non-nil.
type ResourceUpdate struct {
	Location         *string
	ScrubbedLocation *string
}

// IsEmpty reports whether the update changes nothing.
func (u ResourceUpdate) IsEmpty() bool {
	return u.Location == nil && u.ScrubbedLocation == nil
}

// ResourceClient reads and mutates job resources. Every method must be safe to
// call more than once for the same resource.
type ResourceClient interface {
	// GetResource returns nil when the resource does not exist.
	GetResource(ctx context.Context, accountSID, id string) (*Resource, error)
	// UpdateResource runs on db so it commits with the job completion. It
	// returns nil when the resource does not exist.
	UpdateResource(ctx context.Context, db bun.IDB, accountSID, id string, update ResourceUpdate) (*Resource, error)
	// DeleteResource removes the stored data the resource points at. It
	// returns ErrAttachmentGone when that data no longer exists.
	DeleteResource(ctx context.Context, accountSID, id string) error
}

// Snapshot is the copy of contact data a job carries to the worker.
type Snapshot struct {
	Contact           json.RawMessage `json:"contact"`
	ConversationMedia *Resource       `json:"conversationMedia,omitempty"`
}

// NewSnapshot encodes contact and media as a job resource snapshot.
func NewSnapshot(contact any, media *Resource) (json.RawMessage, error) {
	raw, err := json.Marshal(contact)
	if err != nil {
		return nil, fmt.Errorf("encode contact snapshot: %w", err)
	}
	out, err := json.Marshal(Snapshot{Contact: raw, ConversationMedia: media})
	if err != nil {
		return nil, fmt.Errorf("encode job snapshot: %w", err)
	}
	return out, nil
}

// withMedia returns the snapshot with its media replaced. The contact part is
// carried over unchanged.
func withMedia(snapshot json.RawMessage, media *Resource) (json.RawMessage, error) {
	var s Snapshot
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &s); err != nil {
			return nil, fmt.Errorf("decode job snapshot: %w", err)
		}
	}
	s.ConversationMedia = media
	out, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode job snapshot: %w", err)
	}
	return out, nil
}
