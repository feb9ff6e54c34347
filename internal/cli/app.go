package cli

import (
	"context"
	"time"

	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/issuance"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	"github.com/smallbiznis/invoicedesk/internal/logger"
	"github.com/smallbiznis/invoicedesk/internal/migration"
	"github.com/smallbiznis/invoicedesk/internal/observability"
	"github.com/smallbiznis/invoicedesk/internal/providers/pdf"
	"github.com/smallbiznis/invoicedesk/internal/remotestore"
	"github.com/smallbiznis/invoicedesk/internal/sequence"
	"github.com/smallbiznis/invoicedesk/internal/server"
	"go.uber.org/fx"
)

const stopTimeout = 10 * time.Second

// Runtime is the core wired for one CLI invocation.
type Runtime struct {
	Config    config.Config
	Clock     clock.Clock
	Issuance  *issuance.Service
	Ledger    *ledger.Ledger
	Allocator *sequence.Allocator
}

// Loader starts a Runtime and returns the function that shuts it down.
type Loader func(ctx context.Context) (*Runtime, func(), error)

// CoreModules wires everything a channel needs to issue documents.
func CoreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		clock.Module,
		remotestore.Module,
		migration.Module,
		sequence.Module,
		ledger.Module,
		pdf.Module,
		issuance.Module,
	)
}

// NewServeApp is the long-running HTTP application.
func NewServeApp() *fx.App {
	return fx.New(
		CoreModules(),
		server.Module,
	)
}

// LoadRuntime starts the core without the HTTP channel.
func LoadRuntime(ctx context.Context) (*Runtime, func(), error) {
	var rt Runtime
	app := fx.New(
		CoreModules(),
		logger.Module,
		fx.NopLogger,
		fx.Populate(&rt.Config, &rt.Clock, &rt.Issuance, &rt.Ledger, &rt.Allocator),
	)
	if err := app.Err(); err != nil {
		return nil, nil, err
	}

	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, nil, err
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}
	return &rt, stop, nil
}
