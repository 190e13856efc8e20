package migration

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		// Embedded migrations target postgres; sqlite test databases are
		// migrated by the tests themselves.
		if !strings.EqualFold(conn.Dialector.Name(), "postgres") {
			log.Warn("skipping migrations for non-postgres dialect",
				zap.String("dialect", conn.Dialector.Name()),
			)
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
