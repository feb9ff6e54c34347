package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/issuance"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	"github.com/smallbiznis/invoicedesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/invoicedesk/internal/observability/logger"
	obstracing "github.com/smallbiznis/invoicedesk/internal/observability/tracing"
	"github.com/smallbiznis/invoicedesk/internal/sequence"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Issuance  *issuance.Service
	Ledger    *ledger.Ledger
	Allocator *sequence.Allocator
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	clock     clock.Clock
	issuance  *issuance.Service
	ledger    *ledger.Ledger
	allocator *sequence.Allocator
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       log.Named("http"),
		clock:     clk,
		issuance:  p.Issuance,
		ledger:    p.Ledger,
		allocator: p.Allocator,
	}

	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")

	invoices := api.Group("/invoices")
	invoices.GET("", s.ListInvoices)
	invoices.GET("/export", s.ExportInvoices)
	invoices.POST("/:kind", s.IssueInvoice)

	api.GET("/sequences/:bucket/:year", s.GetSequence)
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}
