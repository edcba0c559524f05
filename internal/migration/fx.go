package migration

import (
	"github.com/soundhaven/soundhaven/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			// The embedded migrations use the postgres driver. Other dialects
			// (sqlite in tests, mysql) manage schema outside this path.
			log.Named("migrations").Info("skipping migrations", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
