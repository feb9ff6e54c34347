package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("kind", "SALES-CASH"),
		attribute.String("customer_name", "Nimal"),
		attribute.String("channel", "http"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "kind" && attrs[1].Key != "kind" {
		t.Fatalf("expected kind to be retained")
	}
	if attrs[0].Key != "channel" && attrs[1].Key != "channel" {
		t.Fatalf("expected channel to be retained")
	}
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "invoicedesk"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordDocumentIssued(context.Background(), "PROFORMA", "cli")
	m.RecordDegraded(context.Background(), "render", "asset_missing")

	var nilMetrics *Metrics
	nilMetrics.RecordLedgerMirror(context.Background(), "failed")
}
