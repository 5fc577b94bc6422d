package conversationmedia

import (
	"go.uber.org/fx"

	"github.com/hrm-platform/hrm-service/domain/contactjobs"
	"github.com/hrm-platform/hrm-service/internal/storage"
)

// Module provides the conversation media repository and exposes it to the
// contact job pipeline as its ResourceClient.
var Module = fx.Module("conversationmedia",
	fx.Provide(
		NewRepository,
		NewResourceService,
		func(s *storage.Service) ObjectStore { return s },
		func(s *ResourceService) contactjobs.ResourceClient { return s },
	),
)
