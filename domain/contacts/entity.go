package contacts

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/hrm-platform/hrm-service/domain/conversationmedia"
)

// Contact is a record of one helpline conversation.
type Contact struct {
	bun.BaseModel `bun:"table:hrm.contacts,alias:c"`

	ID         string          `bun:"id,pk,type:uuid" json:"id"`
	AccountSID string          `bun:"account_sid,notnull" json:"accountSid"`
	TaskID     string          `bun:"task_id,nullzero" json:"taskId,omitempty"`
	Channel    string          `bun:"channel,nullzero" json:"channel,omitempty"`
	ServiceSID string          `bun:"service_sid,nullzero" json:"serviceSid,omitempty"`
	ChannelSID string          `bun:"channel_sid,nullzero" json:"channelSid,omitempty"`
	RawJSON    json.RawMessage `bun:"raw_json,type:jsonb,notnull" json:"rawJson"`
	CreatedBy  string          `bun:"created_by,nullzero" json:"createdBy,omitempty"`
	CreatedAt  time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`

	ConversationMedia []*conversationmedia.ConversationMedia `bun:"-" json:"conversationMedia,omitempty"`
}

// MediaInput describes a media item created with a contact.
type MediaInput struct {
	StoreType             conversationmedia.StoreType    `json:"storeType"`
	StoreTypeSpecificData conversationmedia.SpecificData `json:"storeTypeSpecificData"`
}

// CreateContactInput is the body of POST /api/contacts
type CreateContactInput struct {
	AccountSID        string          `json:"-"`
	TaskID            string          `json:"taskId"`
	Channel           string          `json:"channel"`
	ServiceSID        string          `json:"serviceSid"`
	ChannelSID        string          `json:"channelSid"`
	RawJSON           json.RawMessage `json:"rawJson"`
	CreatedBy         string          `json:"createdBy"`
	ConversationMedia []MediaInput    `json:"conversationMedia"`
}
