package remotestore

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	obslogger "github.com/smallbiznis/invoicedesk/internal/observability/logger"
	"github.com/smallbiznis/invoicedesk/internal/sequence"
	"github.com/smallbiznis/invoicedesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("remotestore",
	fx.Provide(
		NewIDGenerator,
		NewDB,
		NewStore,
		NewRemoteCounter,
		NewRemoteIncrementer,
		NewLedgerMirror,
	),
)

func NewIDGenerator() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// NewDB opens the remote database when REMOTE_STORE=database. An
// unreachable database is logged and the process continues on the local
// files only.
func NewDB(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, queryLog *obslogger.GormLogger) *gorm.DB {
	if cfg.RemoteStore != config.RemoteDatabase {
		return nil
	}

	dbCfg := db.FromConfig(cfg)
	if queryLog != nil {
		dbCfg.QueryLogger = queryLog
	}
	conn, err := db.Open(dbCfg)
	if err != nil {
		log.Warn("remote database unavailable, continuing with local sequence log",
			zap.String("type", cfg.DBType),
			zap.String("host", cfg.DBHost),
			zap.Error(err),
		)
		return nil
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return conn
}

type StoreParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	GenID  *snowflake.Node
	Conn   *gorm.DB `optional:"true"`
}

// NewStore returns nil when no remote store is configured or reachable.
func NewStore(p StoreParams) (Store, error) {
	switch p.Config.RemoteStore {
	case config.RemoteDatabase:
		if p.Conn == nil {
			return nil, nil
		}
		p.Log.Info("remote sequence store enabled", zap.String("store", "database"), zap.String("dialect", p.Conn.Dialector.Name()))
		return NewGormStore(p.Conn, p.GenID, p.Clock), nil
	case config.RemoteSupabase:
		store, err := NewSupabaseStore(p.Config.SupabaseURL, p.Config.SupabaseKey)
		if err != nil {
			return nil, err
		}
		p.Log.Info("remote sequence store enabled", zap.String("store", "supabase"))
		return store, nil
	default:
		return nil, nil
	}
}

func NewRemoteCounter(s Store) sequence.RemoteCounter {
	if s == nil {
		return nil
	}
	return s
}

// NewRemoteIncrementer is non-nil only for stores with a transactional counter.
func NewRemoteIncrementer(s Store) sequence.RemoteIncrementer {
	if inc, ok := s.(sequence.RemoteIncrementer); ok {
		return inc
	}
	return nil
}

func NewLedgerMirror(s Store) ledger.Mirror {
	if s == nil {
		return nil
	}
	return s
}
