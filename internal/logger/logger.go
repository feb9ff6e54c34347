// Package logger swaps the service logger for a terminal one in one-shot
// CLI commands, so stdout carries only command output.
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/smallbiznis/invoicedesk/internal/observability"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console logger writing to stderr at the given level
// (debug, info, warn, error). An empty level means warn.
func New(level string) (*zap.Logger, error) {
	core, err := newCore(level)
	if err != nil {
		return nil, err
	}
	return zap.New(core), nil
}

func newCore(level string) (zapcore.Core, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "warn"
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl), nil
}

// cliLevel keeps info chatter out of interactive runs unless LOG_LEVEL asks
// for debug output.
func cliLevel(cfg observability.Config) string {
	if strings.EqualFold(strings.TrimSpace(cfg.LogLevel), "debug") {
		return "debug"
	}
	return "warn"
}

func decorate(cfg observability.Config, base *zap.Logger) (*zap.Logger, error) {
	core, err := newCore(cliLevel(cfg))
	if err != nil {
		return nil, err
	}
	log := base.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))
	zap.ReplaceGlobals(log)
	return log, nil
}

func registerHooks(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			_ = log.Sync()
			return nil
		},
	})
}

// Module replaces the application logger. It is an fx.Options rather than
// an fx.Module so the decoration applies to every module in the app.
var Module = fx.Options(
	fx.Decorate(decorate),
	fx.Invoke(registerHooks),
)
