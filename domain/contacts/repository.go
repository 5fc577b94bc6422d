package contacts

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/hrm-platform/hrm-service/pkg/apperror"
	"github.com/hrm-platform/hrm-service/pkg/logger"
)

// Repository handles database operations for contacts
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new contacts repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("contacts.repo")),
	}
}

func (r *Repository) conn(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// Create inserts a contact and fills in its id and timestamps.
func (r *Repository) Create(ctx context.Context, db bun.IDB, contact *Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if len(contact.RawJSON) == 0 {
		contact.RawJSON = []byte("{}")
	}

	_, err := r.conn(db).NewInsert().
		Model(contact).
		Returning("*").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to create contact", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// GetByID returns nil when the contact does not exist in the account.
func (r *Repository) GetByID(ctx context.Context, db bun.IDB, accountSID, id string) (*Contact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	contact := new(Contact)
	err := r.conn(db).NewSelect().
		Model(contact).
		Where("c.account_sid = ?", accountSID).
		Where("c.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get contact", slog.String("id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return contact, nil
}
