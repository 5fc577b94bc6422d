package conversationmedia

import (
	"time"

	"github.com/uptrace/bun"
)

// StoreType says where the media content lives.
type StoreType string

const (
	StoreTypeS3     StoreType = "S3"
	StoreTypeTwilio StoreType = "twilio"
)

// MediaType is the kind of content stored.
type MediaType string

const (
	MediaTypeTranscript MediaType = "transcript"
	MediaTypeRecording  MediaType = "recording"
)

// SpecificData is the store-specific part of a media item.
type SpecificData struct {
	Type MediaType `json:"type"`
	// Location is the raw object, e.g. "s3://bucket/key".
	Location         string `json:"location,omitempty"`
	ScrubbedLocation string `json:"scrubbedLocation,omitempty"`
	// ReservationSID identifies twilio-hosted media.
	ReservationSID string `json:"reservationSid,omitempty"`
}

// ConversationMedia is a piece of conversation content attached to a contact.
type ConversationMedia struct {
	bun.BaseModel `bun:"table:hrm.conversation_media,alias:cm"`

	ID                    string       `bun:"id,pk,type:uuid" json:"id"`
	AccountSID            string       `bun:"account_sid,notnull" json:"accountSid"`
	ContactID             string       `bun:"contact_id,notnull,type:uuid" json:"contactId"`
	StoreType             StoreType    `bun:"store_type,notnull" json:"storeType"`
	StoreTypeSpecificData SpecificData `bun:"store_type_specific_data,type:jsonb,notnull" json:"storeTypeSpecificData"`
	CreatedAt             time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt             time.Time    `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// IsS3Transcript reports whether the item is a transcript kept in S3, the only
// media that transcript jobs work on.
func (m *ConversationMedia) IsS3Transcript() bool {
	return m.StoreType == StoreTypeS3 && m.StoreTypeSpecificData.Type == MediaTypeTranscript
}
