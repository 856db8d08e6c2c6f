package migration

import (
	"github.com/smallbiznis/eventreg/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Provide(NewRunner),
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, runner *Runner, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		if dialect := conn.Dialector.Name(); dialect != "postgres" {
			log.Warn("skipping embedded migrations for non-postgres database", zap.String("dialect", dialect))
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		_, err = runner.Up(sqlDB)
		return err
	}),
)
