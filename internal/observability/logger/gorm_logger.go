package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger writes remote-store queries to zap. Entries carry the store
// operation set with obscontext.WithStoreOp so a slow count can be told
// apart from a slow counter upsert. Bound values are never logged.
type GormLogger struct {
	base  *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

// NewGormLogger logs failed and slow queries, and every query when
// logQueries is set. A nil base resolves to the global logger at log time.
func NewGormLogger(base *zap.Logger, slow time.Duration, logQueries bool) *GormLogger {
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	level := gormlogger.Warn
	if logQueries {
		level = gormlogger.Info
	}
	return &GormLogger{base: base, level: level, slow: slow}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger(ctx).Info(msg, zap.Any("data", data))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger(ctx).Warn(msg, zap.Any("data", data))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger(ctx).Error(msg, zap.Any("data", data))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !expectedStoreErr(err)
	slow := elapsed > l.slow
	if !failed && !slow && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("store_op", storeOp(ctx, sql)),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("rows", rows),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	log := l.logger(ctx)
	switch {
	case failed && l.level >= gormlogger.Error:
		log.Error("remote store query failed", fields...)
	case slow && l.level >= gormlogger.Warn:
		log.Warn("slow remote store query", fields...)
	case l.level >= gormlogger.Info:
		log.Debug("remote store query", fields...)
	}
}

// ParamsFilter keeps customer data from the invoices insert out of the log.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	base := l.base
	if base == nil {
		base = zap.L()
	}
	return WithContext(ctx, base).With(zap.String("component", "remotestore"))
}

// expectedStoreErr reports errors the store absorbs: a duplicate insert is
// a retried mirror write that already landed.
func expectedStoreErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrRecordNotFound)
}

// storeOp prefers the operation named by the caller and falls back to the
// statement verb for queries outside the store (migrations, pings).
func storeOp(ctx context.Context, sql string) string {
	if op := obscontext.StoreOpFromContext(ctx); op != "" {
		return op
	}
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

var _ gormlogger.Interface = (*GormLogger)(nil)
