package issuance

import "go.uber.org/fx"

var Module = fx.Module("issuance",
	fx.Provide(NewService),
)
