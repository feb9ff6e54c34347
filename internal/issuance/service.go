// Package issuance runs one document request through validation, numbering,
// rendering and the ledger. Every channel drives the core through it.
package issuance

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	obsctx "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"github.com/smallbiznis/invoicedesk/internal/providers/pdf"
	"github.com/smallbiznis/invoicedesk/internal/sequence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Request is the raw form input of any channel.
type Request struct {
	Kind            domain.InvoiceKind `json:"kind"`
	CustomerName    string             `json:"customer_name"`
	CustomerNIC     string             `json:"customer_nic"`
	CustomerAddress string             `json:"customer_address"`
	DeliveryAddress string             `json:"delivery_address"`
	VehicleModel    string             `json:"vehicle_model"`
	EngineNo        string             `json:"engine_no"`
	ChassisNo       string             `json:"chassis_no"`
	Color           string             `json:"color"`
	Price           decimal.Decimal    `json:"price"`
	DownPayment     decimal.Decimal    `json:"down_payment"`
	FinanceCompany  string             `json:"finance_company"`
	FinanceAddress  string             `json:"finance_address"`
	DealerName      string             `json:"dealer_name"`
	PaymentMethod   string             `json:"payment_method"`
}

// Result is an issued document. Warnings carry degraded steps that did not
// stop delivery.
type Result struct {
	Record      domain.InvoiceRecord
	Document    pdf.Document
	Filename    string
	ContentType string
	Source      sequence.Source
	Warnings    []string
}

type Allocator interface {
	Next(ctx context.Context, bucket domain.Bucket, year int) (sequence.Allocation, error)
}

type Ledger interface {
	Append(ctx context.Context, rec domain.InvoiceRecord) (domain.Status, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Allocator *sequence.Allocator
	Renderer  pdf.Renderer
	Ledger    *ledger.Ledger
	Profiles  *config.DealerProfileHolder
	Telemetry *metrics.Metrics `optional:"true"`
}

type Service struct {
	allocator Allocator
	renderer  pdf.Renderer
	ledger    Ledger
	profiles  *config.DealerProfileHolder
	clock     clock.Clock
	log       *zap.Logger
	telemetry *metrics.Metrics
	tracer    trace.Tracer
}

func NewService(p Params) *Service {
	return New(p.Allocator, p.Renderer, p.Ledger, p.Profiles, p.Clock, p.Log, p.Telemetry)
}

func New(allocator Allocator, renderer pdf.Renderer, l Ledger, profiles *config.DealerProfileHolder, clk clock.Clock, log *zap.Logger, telemetry *metrics.Metrics) *Service {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		allocator: allocator,
		renderer:  renderer,
		ledger:    l,
		profiles:  profiles,
		clock:     clk,
		log:       log.Named("issuance"),
		telemetry: telemetry,
		tracer:    otel.Tracer("invoicedesk/issuance"),
	}
}

// Issue validates and numbers the request, renders it and appends it to the
// ledger. Invalid input never consumes a number. Once a number is allocated
// it stays consumed, even when rendering fails afterwards.
func (s *Service) Issue(ctx context.Context, req Request) (Result, error) {
	channel := obsctx.ChannelFromContext(ctx)
	ctx, span := s.tracer.Start(ctx, "issuance.Issue", trace.WithAttributes(
		attribute.String("kind", string(req.Kind)),
		attribute.String("channel", channel),
	))
	defer span.End()

	res, err := s.issue(ctx, req)
	if err != nil {
		errorType := classify(err)
		s.telemetry.RecordIssueFailure(ctx, string(req.Kind), errorType)
		span.RecordError(err)
		span.SetStatus(codes.Error, errorType)

		log := s.log.With(zap.String("kind", string(req.Kind)), zap.String("channel", channel), zap.String("error_type", errorType))
		if res.Record.InvoiceNo != "" {
			log = log.With(zap.String("invoice_no", res.Record.InvoiceNo))
		}
		if domain.IsValidation(err) {
			log.Info("issue request rejected", zap.Error(err))
		} else {
			log.Error("issue request failed", zap.Error(err))
		}
		return res, err
	}

	s.telemetry.RecordDocumentIssued(ctx, string(res.Record.Kind), channel)
	span.SetAttributes(attribute.String("invoice_no", res.Record.InvoiceNo))
	s.log.Info("document issued",
		zap.String("kind", string(res.Record.Kind)),
		zap.String("invoice_no", res.Record.InvoiceNo),
		zap.String("source", string(res.Source)),
		zap.String("channel", channel),
		zap.Strings("warnings", res.Warnings),
	)
	return res, nil
}

func (s *Service) issue(ctx context.Context, req Request) (Result, error) {
	kind, err := domain.ParseKind(string(req.Kind))
	if err != nil {
		return Result{}, err
	}

	draft := s.draft(kind, req)
	rec, err := domain.Derive(draft)
	if err != nil {
		return Result{}, err
	}

	key := rec.Key()
	alloc, err := s.allocator.Next(ctx, key.Bucket, key.Year)
	if err != nil {
		if !domain.IsAllocation(err) && !domain.IsValidation(err) {
			err = domain.AllocationError(err, "allocate invoice number")
		}
		return Result{}, err
	}
	rec = rec.WithNumber(alloc.InvoiceNo)
	res := Result{Record: rec, Source: alloc.Source}

	doc, err := s.renderer.Render(ctx, kind, rec)
	if err != nil {
		if !domain.IsRender(err) {
			err = domain.RenderError(err, "render "+string(kind))
		}
		return res, err
	}
	res.Document = doc
	res.ContentType = doc.ContentType
	res.Filename = domain.DocumentFilename(rec)
	if doc.Status.IsDegraded() {
		s.telemetry.RecordDegraded(ctx, "render", doc.Status.Reason)
		res.Warnings = append(res.Warnings, "render: "+doc.Status.Reason)
	}

	status, err := s.ledger.Append(ctx, rec)
	switch {
	case err != nil:
		s.telemetry.RecordDegraded(ctx, "ledger", "persistence_error")
		s.log.Warn("ledger append failed, document still delivered",
			zap.String("invoice_no", rec.InvoiceNo),
			zap.Error(err),
		)
		res.Warnings = append(res.Warnings, "ledger: record not saved: "+err.Error())
	case status.IsDegraded():
		s.telemetry.RecordDegraded(ctx, "ledger_mirror", status.Reason)
		res.Warnings = append(res.Warnings, "ledger: "+status.Reason)
	}

	return res, nil
}

// draft fills dealer and finance defaults from the dealer profile.
func (s *Service) draft(kind domain.InvoiceKind, req Request) domain.Draft {
	profile := s.profiles.Get()

	d := domain.Draft{
		Kind:            kind,
		IssuedAt:        s.clock.Now(),
		CustomerName:    req.CustomerName,
		CustomerNIC:     req.CustomerNIC,
		CustomerAddress: req.CustomerAddress,
		DeliveryAddress: req.DeliveryAddress,
		VehicleModel:    req.VehicleModel,
		EngineNo:        req.EngineNo,
		ChassisNo:       req.ChassisNo,
		Color:           req.Color,
		Price:           req.Price,
		DownPayment:     req.DownPayment,
		FinanceCompany:  req.FinanceCompany,
		FinanceAddress:  req.FinanceAddress,
		DealerName:      req.DealerName,
		PaymentMethod:   req.PaymentMethod,
	}
	if strings.TrimSpace(d.DealerName) == "" {
		d.DealerName = profile.Name
	}
	if domain.ShowsFinance(kind) {
		if strings.TrimSpace(d.FinanceCompany) == "" {
			d.FinanceCompany = profile.FinanceCompany
		}
		if strings.TrimSpace(d.FinanceAddress) == "" {
			d.FinanceAddress = profile.FinanceAddress
		}
	}
	return d
}

func classify(err error) string {
	switch {
	case domain.IsValidation(err):
		return "validation_error"
	case domain.IsAllocation(err):
		return "allocation_error"
	case domain.IsRender(err):
		return "render_error"
	case domain.IsPersistence(err):
		return "persistence_error"
	default:
		return "unknown"
	}
}
