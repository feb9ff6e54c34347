package issuance

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	"github.com/smallbiznis/invoicedesk/internal/providers/pdf"
	"github.com/smallbiznis/invoicedesk/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type countingAllocator struct {
	calls atomic.Int32
	err   error
}

func (a *countingAllocator) Next(ctx context.Context, bucket domain.Bucket, year int) (sequence.Allocation, error) {
	n := a.calls.Add(1)
	if a.err != nil {
		return sequence.Allocation{}, a.err
	}
	no := decimal.NewFromInt(int64(n)).String()
	return sequence.Allocation{Key: domain.SequenceKey{Bucket: bucket, Year: year}, Number: int64(n), InvoiceNo: "000" + no, Source: sequence.SourceLocal}, nil
}

type scriptedRenderer struct {
	calls atomic.Int32
	fail  map[int32]error
	doc   pdf.Document
}

func (r *scriptedRenderer) Render(ctx context.Context, kind domain.InvoiceKind, rec domain.InvoiceRecord) (pdf.Document, error) {
	n := r.calls.Add(1)
	if err, ok := r.fail[n]; ok {
		return pdf.Document{}, err
	}
	return r.doc, nil
}

type stubLedger struct {
	appended []domain.InvoiceRecord
	status   domain.Status
	err      error
}

func (l *stubLedger) Append(ctx context.Context, rec domain.InvoiceRecord) (domain.Status, error) {
	if l.err != nil {
		return domain.Failed("write"), l.err
	}
	l.appended = append(l.appended, rec)
	if l.status.Outcome == "" {
		return domain.Succeeded(), nil
	}
	return l.status, nil
}

func okDocument() pdf.Document {
	return pdf.Document{Bytes: []byte("%PDF-1.4"), ContentType: pdf.ContentTypePDF, Status: domain.Succeeded()}
}

func newService(alloc Allocator, r pdf.Renderer, l Ledger) *Service {
	profiles := config.NewStaticDealerProfileHolder(config.DefaultDealerProfile())
	return New(alloc, r, l, profiles, clock.NewFakeClock(now), nil, nil)
}

func cashRequest(customer string) Request {
	return Request{
		Kind:            domain.KindSalesCash,
		CustomerName:    customer,
		CustomerNIC:     "851234567V",
		CustomerAddress: "12 Beach Road, Tangalle",
		DeliveryAddress: "ignored for cash",
		VehicleModel:    "APE AUTO DX",
		Price:           decimal.NewFromInt(150000),
	}
}

func TestIssue_InvalidInputNeverAllocates(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{name: "blank customer", req: cashRequest("  ")},
		{name: "zero price", req: func() Request { r := cashRequest("Nimal"); r.Price = decimal.Zero; return r }()},
		{name: "unknown kind", req: func() Request { r := cashRequest("Nimal"); r.Kind = "LEASE"; return r }()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alloc := &countingAllocator{}
			l := &stubLedger{}
			svc := newService(alloc, &scriptedRenderer{doc: okDocument()}, l)

			_, err := svc.Issue(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
			assert.Equal(t, int32(0), alloc.calls.Load())
			assert.Empty(t, l.appended)
		})
	}
}

func TestIssue_SalesCash(t *testing.T) {
	l := &stubLedger{}
	svc := newService(&countingAllocator{}, &scriptedRenderer{doc: okDocument()}, l)

	res, err := svc.Issue(context.Background(), cashRequest("K. Silva & Sons"))
	require.NoError(t, err)

	assert.Equal(t, "0001", res.Record.InvoiceNo)
	assert.Equal(t, "Sales_0001_K._Silva_Sons.pdf", res.Filename)
	assert.Equal(t, pdf.ContentTypePDF, res.ContentType)
	assert.True(t, res.Record.DownPayment.Equal(decimal.NewFromInt(150000)))
	assert.True(t, res.Record.Balance.IsZero())
	assert.Empty(t, res.Record.DeliveryAddress)
	assert.Equal(t, config.DefaultDealerProfile().Name, res.Record.DealerName)
	assert.Equal(t, now, res.Record.IssuedAt)
	assert.Empty(t, res.Warnings)
	require.Len(t, l.appended, 1)
}

func TestIssue_ProformaFillsFinanceDefaults(t *testing.T) {
	svc := newService(&countingAllocator{}, &scriptedRenderer{doc: okDocument()}, &stubLedger{})

	res, err := svc.Issue(context.Background(), Request{
		Kind:         domain.KindProforma,
		CustomerName: "Nimal",
		Price:        decimal.NewFromInt(900000),
		DownPayment:  decimal.NewFromInt(300000),
	})
	require.NoError(t, err)
	assert.Equal(t, "Vallibel Finance PLC", res.Record.FinanceCompany)
	assert.Equal(t, "Proforma_0001_Nimal.pdf", res.Filename)
}

func TestIssue_AllocationFailure(t *testing.T) {
	l := &stubLedger{}
	svc := newService(&countingAllocator{err: errors.New("disk full")}, &scriptedRenderer{doc: okDocument()}, l)

	_, err := svc.Issue(context.Background(), cashRequest("Nimal"))
	require.Error(t, err)
	assert.True(t, domain.IsAllocation(err))
	assert.Empty(t, l.appended)
}

func TestIssue_RenderFailureLeavesGapNotDuplicate(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{SequencePolicy: config.PolicyCompat}
	alloc := sequence.New(sequence.Params{
		Config: cfg,
		Local:  sequence.NewLocalLog(filepath.Join(dir, "invoice_log.csv"), nil),
	})
	l := ledger.NewLedger(filepath.Join(dir, "invoices.csv"), nil)
	renderer := &scriptedRenderer{
		doc:  okDocument(),
		fail: map[int32]error{1: errors.New("template fault")},
	}
	svc := newService(alloc, renderer, l)
	ctx := context.Background()

	failed, err := svc.Issue(ctx, cashRequest("First"))
	require.Error(t, err)
	assert.True(t, domain.IsRender(err))
	assert.Equal(t, "0001", failed.Record.InvoiceNo, "the consumed number is reported")

	ok, err := svc.Issue(ctx, cashRequest("Second"))
	require.NoError(t, err)
	assert.Equal(t, "0002", ok.Record.InvoiceNo)

	entries, err := l.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0002", entries[0].Get("invoice_no"))

	last, err := alloc.Peek(ctx, domain.BucketSales, 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}

func TestIssue_LedgerFailureIsWarning(t *testing.T) {
	l := &stubLedger{err: domain.PersistenceError(errors.New("read-only file system"), "append ledger row")}
	svc := newService(&countingAllocator{}, &scriptedRenderer{doc: okDocument()}, l)

	res, err := svc.Issue(context.Background(), cashRequest("Nimal"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Document.Bytes)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ledger")
}

func TestIssue_DegradedStepsBecomeWarnings(t *testing.T) {
	doc := okDocument()
	doc.Status = domain.Degraded("missing assets: logo.png")
	l := &stubLedger{status: domain.Degraded("remote mirror unavailable: unreachable")}
	svc := newService(&countingAllocator{}, &scriptedRenderer{doc: doc}, l)

	res, err := svc.Issue(context.Background(), cashRequest("Nimal"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"render: missing assets: logo.png",
		"ledger: remote mirror unavailable: unreachable",
	}, res.Warnings)
}
