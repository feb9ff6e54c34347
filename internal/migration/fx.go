package migration

import (
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/remotestore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Conn   *gorm.DB `optional:"true"`
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if p.Conn == nil || !p.Config.DBMigrate {
			return nil
		}
		if err := Run(p.Conn, remotestore.Models()...); err != nil {
			return err
		}
		p.Log.Info("remote schema migrated", zap.String("dialect", p.Conn.Dialector.Name()))
		return nil
	}),
)
