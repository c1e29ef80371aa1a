package migration

import (
	"github.com/vettedhq/vetted/internal/config"
	snapshotdomain "github.com/vettedhq/vetted/internal/snapshot/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite and mysql cover local development; gorm derives the
			// schema there instead of the versioned postgres migrations.
			return conn.AutoMigrate(&snapshotdomain.ReportSnapshot{})
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
