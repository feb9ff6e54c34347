package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/spf13/viper"
)

// Config holds logging, tracing and query-log settings. Values come from
// the environment and fall back to the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// SlowQuery is the remote-store query duration that is logged as a warning.
	SlowQuery time.Duration
	// LogQueries logs every remote-store statement at debug level.
	LogQueries bool
}

func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	v.SetDefault("DB_SLOW_QUERY_MS", 200)
	v.SetDefault("DB_LOG_QUERIES", false)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "invoicedesk"
	}

	protocol := lower(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"))
	if traces := lower(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             lower(v.GetString("LOG_LEVEL")),
		LogFormat:            lower(v.GetString("LOG_FORMAT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
		SlowQuery:            time.Duration(v.GetInt64("DB_SLOW_QUERY_MS")) * time.Millisecond,
		LogQueries:           v.GetBool("DB_LOG_QUERIES"),
	}
}

// Debug is true for LOG_LEVEL=debug and for local environments.
func (c Config) Debug() bool {
	if lower(c.LogLevel) == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
