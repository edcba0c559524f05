package settlement

import (
	"github.com/soundhaven/soundhaven/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(
		service.NewService,
	),
)
