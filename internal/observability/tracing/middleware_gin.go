package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Response headers set by the invoice handlers.
const (
	headerInvoiceNo     = "X-Invoice-No"
	headerInvoiceSource = "X-Invoice-Source"
)

// MiddlewareConfig mirrors the request logger so spans and log lines carry
// the same error classification.
type MiddlewareConfig struct {
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware opens a server span per request. Issue requests are tagged
// with the document kind, the consumed invoice number and where the number
// came from, including failed requests that still consumed one.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tracer := otel.Tracer("invoicedesk/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(requestAttributes(c, route, status)...)

		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			errType, errCode := cfg.ErrorClassifier(lastErr.Err)
			span.SetAttributes(
				attribute.String("error.type", errType),
				attribute.String("error.code", errCode),
			)
		}
		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func requestAttributes(c *gin.Context, route string, status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}
	if requestID := strings.TrimSpace(c.Writer.Header().Get("X-Request-Id")); requestID != "" {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}
	if channel := obscontext.ChannelFromContext(c.Request.Context()); channel != "" {
		attrs = append(attrs, attribute.String("channel", channel))
	}
	if kind := strings.TrimSpace(c.Param("kind")); kind != "" {
		attrs = append(attrs, attribute.String("invoice.kind", strings.ToUpper(kind)))
	}
	if bucket := strings.TrimSpace(c.Param("bucket")); bucket != "" {
		attrs = append(attrs, attribute.String("invoice.bucket", strings.ToUpper(bucket)))
	}
	if no := strings.TrimSpace(c.Writer.Header().Get(headerInvoiceNo)); no != "" {
		attrs = append(attrs, attribute.String("invoice_no", no))
	}
	if source := strings.TrimSpace(c.Writer.Header().Get(headerInvoiceSource)); source != "" {
		attrs = append(attrs, attribute.String("invoice.source", source))
	}
	return SafeAttributes(attrs...)
}
