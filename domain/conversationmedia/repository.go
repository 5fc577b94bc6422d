package conversationmedia

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/hrm-platform/hrm-service/pkg/apperror"
	"github.com/hrm-platform/hrm-service/pkg/logger"
	"github.com/hrm-platform/hrm-service/pkg/pgutils"
)

// Repository handles database operations for conversation media.
// Methods taking a db run on it; nil uses the repository's connection.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new conversation media repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("conversationmedia.repo")),
	}
}

func (r *Repository) conn(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// Create inserts a media item and fills in its id and timestamps.
func (r *Repository) Create(ctx context.Context, db bun.IDB, media *ConversationMedia) error {
	if media.ID == "" {
		media.ID = uuid.NewString()
	}

	_, err := r.conn(db).NewInsert().
		Model(media).
		Returning("*").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to create conversation media",
			slog.String("contact_id", media.ContactID),
			logger.Error(err),
		)
		if pgutils.IsForeignKeyViolation(err) {
			return apperror.ErrContactNotFound.WithInternal(err)
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// GetByID returns nil when the item does not exist in the account.
func (r *Repository) GetByID(ctx context.Context, db bun.IDB, accountSID, id string) (*ConversationMedia, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	media := new(ConversationMedia)
	err := r.conn(db).NewSelect().
		Model(media).
		Where("cm.account_sid = ?", accountSID).
		Where("cm.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get conversation media", slog.String("id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return media, nil
}

// ListByContact returns a contact's media in creation order.
func (r *Repository) ListByContact(ctx context.Context, db bun.IDB, accountSID, contactID string) ([]*ConversationMedia, error) {
	var items []*ConversationMedia
	err := r.conn(db).NewSelect().
		Model(&items).
		Where("cm.account_sid = ?", accountSID).
		Where("cm.contact_id = ?", contactID).
		OrderExpr("cm.created_at ASC, cm.id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to list conversation media", slog.String("contact_id", contactID), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return items, nil
}

// UpdateSpecificData sets the given keys of store_type_specific_data in one
// statement and returns the updated item, or nil when it does not exist.
func (r *Repository) UpdateSpecificData(ctx context.Context, db bun.IDB, accountSID, id string, patch map[string]any) (*ConversationMedia, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	return r.updateSpecificData(ctx, db, "store_type_specific_data || ?::jsonb", string(raw), accountSID, id)
}

// RemoveSpecificDataKey deletes one key of store_type_specific_data.
func (r *Repository) RemoveSpecificDataKey(ctx context.Context, db bun.IDB, accountSID, id, key string) (*ConversationMedia, error) {
	return r.updateSpecificData(ctx, db, "store_type_specific_data - ?", key, accountSID, id)
}

func (r *Repository) updateSpecificData(ctx context.Context, db bun.IDB, expr string, arg any, accountSID, id string) (*ConversationMedia, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	media := new(ConversationMedia)
	err := r.conn(db).NewRaw(`UPDATE hrm.conversation_media
		SET store_type_specific_data = `+expr+`, updated_at = now()
		WHERE account_sid = ? AND id = ?
		RETURNING *`, arg, accountSID, id).Scan(ctx, media)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to update conversation media", slog.String("id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return media, nil
}
