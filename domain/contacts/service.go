package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/hrm-platform/hrm-service/domain/contactjobs"
	"github.com/hrm-platform/hrm-service/domain/conversationmedia"
	"github.com/hrm-platform/hrm-service/internal/database"
	"github.com/hrm-platform/hrm-service/pkg/apperror"
	"github.com/hrm-platform/hrm-service/pkg/logger"
)

// Service handles contact business logic
type Service struct {
	db    bun.IDB
	repo  *Repository
	media *conversationmedia.Repository
	jobs  contactjobs.Store
	log   *slog.Logger
}

// NewService creates a new contacts service
func NewService(db bun.IDB, repo *Repository, media *conversationmedia.Repository, jobs contactjobs.Store, log *slog.Logger) *Service {
	return &Service{
		db:    db,
		repo:  repo,
		media: media,
		jobs:  jobs,
		log:   log.With(logger.Scope("contacts")),
	}
}

// CreateContact stores a contact with its conversation media and queues a
// transcript retrieval job for every S3 transcript. Nothing is stored unless
// all of it is.
func (s *Service) CreateContact(ctx context.Context, in CreateContactInput) (*Contact, error) {
	if in.AccountSID == "" {
		return nil, apperror.NewBadRequest("accountSid is required")
	}
	for i, m := range in.ConversationMedia {
		if m.StoreType == "" || m.StoreTypeSpecificData.Type == "" {
			return nil, apperror.ErrValidation.WithMessage(fmt.Sprintf("conversationMedia[%d] needs storeType and type", i))
		}
	}
	if len(in.RawJSON) > 0 && !json.Valid(in.RawJSON) {
		return nil, apperror.NewBadRequest("rawJson is not valid JSON")
	}

	contact := &Contact{
		AccountSID: in.AccountSID,
		TaskID:     in.TaskID,
		Channel:    in.Channel,
		ServiceSID: in.ServiceSID,
		ChannelSID: in.ChannelSID,
		RawJSON:    in.RawJSON,
		CreatedBy:  in.CreatedBy,
	}

	var jobCount int
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx bun.IDB) error {
		if err := s.repo.Create(ctx, tx, contact); err != nil {
			return err
		}

		for _, m := range in.ConversationMedia {
			media := &conversationmedia.ConversationMedia{
				AccountSID:            contact.AccountSID,
				ContactID:             contact.ID,
				StoreType:             m.StoreType,
				StoreTypeSpecificData: m.StoreTypeSpecificData,
			}
			if err := s.media.Create(ctx, tx, media); err != nil {
				return err
			}
			contact.ConversationMedia = append(contact.ConversationMedia, media)
		}

		for _, media := range contact.ConversationMedia {
			if !media.IsS3Transcript() {
				continue
			}
			if err := s.createRetrieveJob(ctx, tx, contact, media); err != nil {
				return err
			}
			jobCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contact created",
		slog.String("contact_id", contact.ID),
		slog.Int("media", len(contact.ConversationMedia)),
		slog.Int("jobs", jobCount),
	)
	return contact, nil
}

func (s *Service) createRetrieveJob(ctx context.Context, tx bun.IDB, contact *Contact, media *conversationmedia.ConversationMedia) error {
	bare := *contact
	bare.ConversationMedia = nil
	snapshot, err := contactjobs.NewSnapshot(&bare, conversationmedia.ToResource(media))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{"conversationMediaId": media.ID})
	if err != nil {
		return err
	}

	_, err = s.jobs.Create(ctx, tx, contactjobs.CreateParams{
		AccountSID:        contact.AccountSID,
		ContactID:         contact.ID,
		JobType:           contactjobs.JobTypeRetrieveTranscript,
		Resource:          snapshot,
		AdditionalPayload: payload,
	})
	if err != nil {
		return fmt.Errorf("create transcript job: %w", err)
	}
	return nil
}

// GetContact returns a contact with its conversation media.
func (s *Service) GetContact(ctx context.Context, accountSID, id string) (*Contact, error) {
	contact, err := s.repo.GetByID(ctx, nil, accountSID, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, apperror.ErrContactNotFound
	}

	media, err := s.media.ListByContact(ctx, nil, accountSID, id)
	if err != nil {
		return nil, err
	}
	contact.ConversationMedia = media
	return contact, nil
}
