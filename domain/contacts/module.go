package contacts

import "go.uber.org/fx"

// Module provides contact creation, which feeds the contact job pipeline.
var Module = fx.Module("contacts",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
