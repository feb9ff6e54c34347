package sequence

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"github.com/smallbiznis/invoicedesk/pkg/filelock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sequence",
	fx.Provide(
		NewLocalLogFromConfig,
		NewDistributedLocker,
		New,
	),
)

type LocalLogParams struct {
	fx.In

	Config  config.Config
	Metrics *metrics.SequenceMetrics `optional:"true"`
}

func NewLocalLogFromConfig(p LocalLogParams) *LocalLog {
	return NewLocalLog(p.Config.SequenceLogPath, p.Metrics,
		filelock.WithStaleAfter(filelock.DefaultStaleAfter),
		filelock.WithMaxWait(p.Config.LockTTL),
	)
}

// NewDistributedLocker returns nil when the redis lock is disabled.
func NewDistributedLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) DistributedLocker {
	if !cfg.RedisLockEnabled || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis allocation lock unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return NewRedisLocker(client)
}
