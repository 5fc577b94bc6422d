package testutil

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TestAccountSID is the account used by fixtures.
const TestAccountSID = "ACtest00000000000000000000000000"

// CreateTestContact inserts a bare contact and returns its id.
func CreateTestContact(ctx context.Context, db bun.IDB, accountSID string) (string, error) {
	id := uuid.NewString()
	_, err := db.NewRaw(`
		INSERT INTO hrm.contacts (id, account_sid, channel, raw_json)
		VALUES (?, ?, 'voice', '{}'::jsonb)
	`, id, accountSID).Exec(ctx)
	return id, err
}

// CreateTestConversationMedia inserts an S3 transcript media item for a
// contact and returns its id. An empty location leaves it unset.
func CreateTestConversationMedia(ctx context.Context, db bun.IDB, accountSID, contactID, location string) (string, error) {
	data := map[string]string{"type": "transcript"}
	if location != "" {
		data["location"] = location
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = db.NewRaw(`
		INSERT INTO hrm.conversation_media (id, account_sid, contact_id, store_type, store_type_specific_data)
		VALUES (?, ?, ?, 'S3', ?::jsonb)
	`, id, accountSID, contactID, string(raw)).Exec(ctx)
	return id, err
}
