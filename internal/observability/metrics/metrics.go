package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments exported over OTLP.
type Metrics struct {
	documentsIssued metric.Int64Counter
	issueFailures   metric.Int64Counter
	degradedSteps   metric.Int64Counter
	ledgerMirrors   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "invoicedesk"
	}
	meter := provider.Meter(name)

	documentsIssued, err := meter.Int64Counter("invoicedesk_documents_issued_total")
	if err != nil {
		return nil, err
	}
	issueFailures, err := meter.Int64Counter("invoicedesk_issue_failures_total")
	if err != nil {
		return nil, err
	}
	degradedSteps, err := meter.Int64Counter("invoicedesk_degraded_steps_total")
	if err != nil {
		return nil, err
	}
	ledgerMirrors, err := meter.Int64Counter("invoicedesk_ledger_mirror_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		documentsIssued: documentsIssued,
		issueFailures:   issueFailures,
		degradedSteps:   degradedSteps,
		ledgerMirrors:   ledgerMirrors,
	}, nil
}

// RecordDocumentIssued counts a document handed back to a channel.
func (m *Metrics) RecordDocumentIssued(ctx context.Context, kind, channel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("channel", strings.TrimSpace(channel)),
	)
	m.documentsIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordIssueFailure counts a request that failed with the given error class.
func (m *Metrics) RecordIssueFailure(ctx context.Context, kind, errorType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("error_type", strings.TrimSpace(errorType)),
	)
	m.issueFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDegraded counts a step that continued with reduced function.
func (m *Metrics) RecordDegraded(ctx context.Context, step, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("step", strings.TrimSpace(step)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.degradedSteps.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerMirror counts remote mirror attempts by outcome.
func (m *Metrics) RecordLedgerMirror(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.ledgerMirrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":        {},
	"bucket":      {},
	"channel":     {},
	"step":        {},
	"outcome":     {},
	"error_type":  {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
