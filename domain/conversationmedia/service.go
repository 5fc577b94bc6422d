package conversationmedia

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/hrm-platform/hrm-service/domain/contactjobs"
	"github.com/hrm-platform/hrm-service/pkg/logger"
)

// ObjectStore checks and removes stored objects by location. Deleting a
// missing object succeeds.
type ObjectStore interface {
	Exists(ctx context.Context, location string) (bool, error)
	DeleteLocation(ctx context.Context, location string) error
}

// ResourceService exposes conversation media to the contact job pipeline.
type ResourceService struct {
	repo    *Repository
	objects ObjectStore
	log     *slog.Logger
}

// NewResourceService creates a new resource service
func NewResourceService(repo *Repository, objects ObjectStore, log *slog.Logger) *ResourceService {
	return &ResourceService{
		repo:    repo,
		objects: objects,
		log:     log.With(logger.Scope("conversationmedia")),
	}
}

var _ contactjobs.ResourceClient = (*ResourceService)(nil)

// ToResource converts a media item to the job pipeline view.
func ToResource(m *ConversationMedia) *contactjobs.Resource {
	if m == nil {
		return nil
	}
	return &contactjobs.Resource{
		ID:               m.ID,
		AccountSID:       m.AccountSID,
		ContactID:        m.ContactID,
		Location:         m.StoreTypeSpecificData.Location,
		ScrubbedLocation: m.StoreTypeSpecificData.ScrubbedLocation,
	}
}

// GetResource returns a media item.
func (s *ResourceService) GetResource(ctx context.Context, accountSID, id string) (*contactjobs.Resource, error) {
	m, err := s.repo.GetByID(ctx, nil, accountSID, id)
	if err != nil {
		return nil, err
	}
	return ToResource(m), nil
}

// UpdateResource applies a job result to a media item. Applying the same
// update twice leaves the item unchanged.
func (s *ResourceService) UpdateResource(ctx context.Context, db bun.IDB, accountSID, id string, update contactjobs.ResourceUpdate) (*contactjobs.Resource, error) {
	patch := map[string]any{}
	if update.Location != nil {
		patch["location"] = *update.Location
	}
	if update.ScrubbedLocation != nil {
		patch["scrubbedLocation"] = *update.ScrubbedLocation
	}
	if len(patch) == 0 {
		m, err := s.repo.GetByID(ctx, db, accountSID, id)
		return ToResource(m), err
	}

	m, err := s.repo.UpdateSpecificData(ctx, db, accountSID, id, patch)
	if err != nil {
		return nil, err
	}
	return ToResource(m), nil
}

// DeleteResource deletes the raw transcript object and clears its location.
// The scrubbed copy is kept. Calling it again after success is a no-op. When
// the object is already missing from storage the location is cleared and
// contactjobs.ErrAttachmentGone is returned.
func (s *ResourceService) DeleteResource(ctx context.Context, accountSID, id string) error {
	m, err := s.repo.GetByID(ctx, nil, accountSID, id)
	if err != nil {
		return err
	}
	if m == nil || m.StoreTypeSpecificData.Location == "" {
		return nil
	}

	location := m.StoreTypeSpecificData.Location
	present, err := s.objects.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("check transcript object: %w", err)
	}
	if present {
		if err := s.objects.DeleteLocation(ctx, location); err != nil {
			return fmt.Errorf("delete transcript object: %w", err)
		}
	}

	if _, err := s.repo.RemoveSpecificDataKey(ctx, nil, accountSID, id, "location"); err != nil {
		return err
	}

	if !present {
		s.log.Warn("raw transcript already missing from storage",
			slog.String("conversation_media_id", id),
			slog.String("location", location),
		)
		return contactjobs.ErrAttachmentGone
	}

	s.log.Info("deleted raw transcript",
		slog.String("conversation_media_id", id),
		slog.String("location", location),
	)
	return nil
}
