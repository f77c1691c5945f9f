package migration

import (
	"github.com/smallbiznis/recurring/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		log.Info("db.migrate", zap.String("dialect", cfg.DBType))
		return Migrate(conn, cfg.DBType)
	}),
)
