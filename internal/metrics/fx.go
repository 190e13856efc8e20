package metrics

import (
	"github.com/smallbiznis/qbr/internal/metrics/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("metrics.store",
	fx.Provide(repository.New),
)
