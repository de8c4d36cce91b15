package migration

import (
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	authdomain "github.com/dodamlabs/dodam/internal/auth/domain"
	"github.com/dodamlabs/dodam/internal/config"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite and mysql development setups derive the schema from the
		// models instead of the versioned Postgres migrations.
		return conn.AutoMigrate(&authdomain.User{}, &authdomain.Session{})
	}),
)
