package collector

import (
	cwcollector "github.com/smallbiznis/qbr/internal/collector/connectwise"
	invcollector "github.com/smallbiznis/qbr/internal/collector/inventory"
	"go.uber.org/fx"
)

// Module registers every vendor collector into the "collectors" group the
// orchestrator consumes.
var Module = fx.Module("collectors",
	fx.Provide(
		cwcollector.New,
		invcollector.New,
	),
)
