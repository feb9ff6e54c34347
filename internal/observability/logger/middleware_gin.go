package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const headerRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware tags the request context with a request id and the http
// channel, then logs one line per request. Issue requests also log the
// consumed invoice number, so a render failure after allocation still
// names the gap it left.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithChannel(ctx, "http")
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		fields = append(fields, invoiceFields(c)...)

		var errType string
		if lastErr := c.Errors.Last(); lastErr != nil {
			var errCode string
			if cfg.ErrorClassifier != nil {
				errType, errCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errType),
				zap.String("error_code", errCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Error(lastErr.Err))
			}
		}

		level := requestLevel(route, status, c.Writer.Header().Get("X-Invoice-Warning") != "")
		if ce := FromContext(c.Request.Context()).Check(level, "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func invoiceFields(c *gin.Context) []zap.Field {
	var fields []zap.Field
	if kind := c.Param("kind"); kind != "" {
		fields = append(fields, zap.String("kind", strings.ToUpper(kind)))
	}
	header := c.Writer.Header()
	if no := header.Get("X-Invoice-No"); no != "" {
		fields = append(fields, zap.String("invoice_no", no))
	}
	if source := header.Get("X-Invoice-Source"); source != "" {
		fields = append(fields, zap.String("number_source", source))
	}
	if warning := header.Get("X-Invoice-Warning"); warning != "" {
		fields = append(fields, zap.String("warning", warning))
	}
	return fields
}

// requestLevel logs server failures as errors, rejected input and degraded
// issues as warnings, and health or metrics scrapes at debug.
func requestLevel(route string, status int, degraded bool) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zap.DebugLevel
	case status >= http.StatusInternalServerError:
		return zap.ErrorLevel
	case status >= http.StatusBadRequest || degraded:
		return zap.WarnLevel
	default:
		return zap.InfoLevel
	}
}
