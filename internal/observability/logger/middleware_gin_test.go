package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func captureGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(undo)
	return logs
}

func TestGinMiddleware_LogsConsumedNumberOnFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := captureGlobal(t)

	var channel string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "render_error", "render_failed" },
	}))
	r.POST("/api/invoices/:kind", func(c *gin.Context) {
		channel = obscontext.ChannelFromContext(c.Request.Context())
		c.Header("X-Invoice-No", "0042")
		_ = c.Error(errors.New("render failed"))
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/proforma", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http", channel)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "0042", fields["invoice_no"])
	assert.Equal(t, "PROFORMA", fields["kind"])
	assert.Equal(t, "render_error", fields["error_type"])
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "http", fields["channel"])
}

func TestGinMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		name     string
		route    string
		status   int
		degraded bool
		want     zapcore.Level
	}{
		{name: "issued", route: "/api/invoices/:kind", status: 200, want: zap.InfoLevel},
		{name: "issued with ledger warning", route: "/api/invoices/:kind", status: 200, degraded: true, want: zap.WarnLevel},
		{name: "bad input", route: "/api/invoices/:kind", status: 400, want: zap.WarnLevel},
		{name: "allocation unavailable", route: "/api/invoices/:kind", status: 503, want: zap.ErrorLevel},
		{name: "health probe", route: "/health", status: 200, want: zap.DebugLevel},
		{name: "metrics scrape", route: "/metrics", status: 200, want: zap.DebugLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, requestLevel(tc.route, tc.status, tc.degraded))
		})
	}
}
