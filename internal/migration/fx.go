package migration

import (
	authdomain "github.com/coverview/creditd/internal/auth/domain"
	"github.com/coverview/creditd/internal/config"
	ledgerdomain "github.com/coverview/creditd/internal/ledger/domain"
	usagedomain "github.com/coverview/creditd/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite/mysql dev databases use the model definitions directly.
			return conn.AutoMigrate(
				&ledgerdomain.Account{},
				&ledgerdomain.Transaction{},
				&usagedomain.UsageCounter{},
				&authdomain.APIToken{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
