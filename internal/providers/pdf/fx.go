package pdf

import (
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Profiles *config.DealerProfileHolder
	Metrics  *metrics.SequenceMetrics `optional:"true"`
}

// NewRenderer renders locally, or through the render service with a local
// fallback when RENDER_SERVICE_URL is set.
func NewRenderer(p Params) Renderer {
	local := NewMarotoRenderer(p.Profiles, p.Clock, p.Log, p.Metrics)
	if p.Config.RenderServiceURL == "" {
		return local
	}
	p.Log.Info("remote render service enabled", zap.String("url", p.Config.RenderServiceURL))
	remote := NewRemoteRenderer(p.Config.RenderServiceURL, p.Config.RenderServiceTimeout, p.Log)
	return NewFallbackRenderer(remote, local, p.Log)
}

var Module = fx.Module("pdf",
	fx.Provide(NewRenderer),
)
