package ledger

import (
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"github.com/smallbiznis/invoicedesk/pkg/filelock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Mirror    Mirror                   `optional:"true"`
	Metrics   *metrics.SequenceMetrics `optional:"true"`
	Telemetry *metrics.Metrics         `optional:"true"`
}

func New(p Params) *Ledger {
	return NewLedger(p.Config.LedgerPath, p.Log,
		WithMirror(p.Mirror),
		WithMirrorTimeout(p.Config.RemoteTimeout),
		WithMetrics(p.Metrics, p.Telemetry),
		WithLockOptions(filelock.WithMaxWait(p.Config.LockTTL)),
	)
}

var Module = fx.Module("ledger",
	fx.Provide(New),
)
