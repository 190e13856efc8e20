package inventory

import (
	"github.com/smallbiznis/qbr/internal/inventory/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.snapshots",
	fx.Provide(repository.New),
)
