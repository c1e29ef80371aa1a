package delta

import (
	"github.com/vettedhq/vetted/internal/delta/engine"
	"go.uber.org/fx"
)

var Module = fx.Module("delta.engine",
	fx.Provide(engine.New),
)
