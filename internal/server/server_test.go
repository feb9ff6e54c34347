package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/issuance"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	"github.com/smallbiznis/invoicedesk/internal/observability"
	"github.com/smallbiznis/invoicedesk/internal/providers/pdf"
	"github.com/smallbiznis/invoicedesk/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type failingRenderer struct{}

func (failingRenderer) Render(ctx context.Context, kind domain.InvoiceKind, rec domain.InvoiceRecord) (pdf.Document, error) {
	return pdf.Document{}, errors.New("template fault")
}

type testServer struct {
	srv       *Server
	allocator *sequence.Allocator
	ledger    *ledger.Ledger
}

func newTestServer(t *testing.T, renderer pdf.Renderer) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	clk := clock.NewFakeClock(testNow)
	profile := config.DefaultDealerProfile()
	profile.LogoPath = ""
	profile.BrandLogoPath = ""
	profiles := config.NewStaticDealerProfileHolder(profile)

	allocator := sequence.New(sequence.Params{
		Config: config.Config{SequencePolicy: config.PolicyCompat},
		Local:  sequence.NewLocalLog(filepath.Join(dir, "invoice_log.csv"), nil),
	})
	l := ledger.NewLedger(filepath.Join(dir, "invoices.csv"), nil)
	if renderer == nil {
		renderer = pdf.NewMarotoRenderer(profiles, clk, nil, nil)
	}
	svc := issuance.New(allocator, renderer, l, profiles, clk, nil, nil)

	engine := NewEngine(observability.Config{LogLevel: "info", Environment: "test"})
	srv := NewServer(ServerParams{
		Gin:       engine,
		Cfg:       config.Config{Environment: "test"},
		Clock:     clk,
		Issuance:  svc,
		Ledger:    l,
		Allocator: allocator,
	})
	return &testServer{srv: srv, allocator: allocator, ledger: l}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

const cashBody = `{
	"customer_name": "Nimal Perera",
	"customer_nic": "851234567V",
	"customer_address": "12 Beach Road, Tangalle",
	"vehicle_model": "APE AUTO DX",
	"engine_no": "AD1234",
	"chassis_no": "MD2A123",
	"color": "Blue",
	"price": 150000
}`

func TestIssueInvoice_StreamsPDFAndRecordsLedgerRow(t *testing.T) {
	ts := newTestServer(t, nil)

	first := ts.do(t, http.MethodPost, "/api/invoices/sales-cash", cashBody)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, pdf.ContentTypePDF, first.Header().Get("Content-Type"))
	assert.Equal(t, "0001", first.Header().Get(headerInvoiceNo))
	assert.Equal(t, `attachment; filename="Sales_0001_Nimal_Perera.pdf"`, first.Header().Get("Content-Disposition"))
	assert.Empty(t, first.Header().Get(headerInvoiceWarning))
	assert.True(t, bytes.HasPrefix(first.Body.Bytes(), []byte("%PDF")))

	second := ts.do(t, http.MethodPost, "/api/invoices/SALES-CASH", cashBody)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, "0002", second.Header().Get(headerInvoiceNo))

	entries, err := ts.ledger.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SALES", entries[0].Get("invoice_type"))
	assert.Equal(t, "150000.00", entries[1].Get("down"))
}

func TestIssueInvoice_RejectsBadInputWithoutConsumingNumber(t *testing.T) {
	cases := []struct {
		name      string
		path      string
		body      string
		wantType  string
		wantField string
	}{
		{
			name:      "blank customer",
			path:      "/api/invoices/sales-cash",
			body:      `{"customer_name": "  ", "price": 1000}`,
			wantType:  "validation_error",
			wantField: "customer_name",
		},
		{
			name:      "zero price",
			path:      "/api/invoices/advance",
			body:      `{"customer_name": "Kamal", "price": 0}`,
			wantType:  "validation_error",
			wantField: "price",
		},
		{
			name:      "unknown kind",
			path:      "/api/invoices/lease",
			body:      cashBody,
			wantType:  "validation_error",
			wantField: "kind",
		},
		{
			name:      "malformed json",
			path:      "/api/invoices/sales-cash",
			body:      `{"customer_name": `,
			wantType:  "validation_error",
			wantField: "request",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, tc.wantType, payload.Type)
			require.NotEmpty(t, payload.Errors)
			assert.Equal(t, tc.wantField, payload.Errors[0].Field)
			assert.Empty(t, rec.Header().Get(headerInvoiceNo))

			for _, bucket := range domain.Buckets {
				last, err := ts.allocator.Peek(context.Background(), bucket, 2026)
				require.NoError(t, err)
				assert.Zero(t, last)
			}
		})
	}
}

func TestIssueInvoice_RenderFailureReportsConsumedNumber(t *testing.T) {
	ts := newTestServer(t, failingRenderer{})

	rec := ts.do(t, http.MethodPost, "/api/invoices/sales-cash", cashBody)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "render_error", payload.Type)
	assert.Equal(t, "0001", payload.InvoiceNo)

	entries, err := ts.ledger.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	last, err := ts.allocator.Peek(context.Background(), domain.BucketSales, 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
}

func TestExportInvoices(t *testing.T) {
	ts := newTestServer(t, nil)

	empty := ts.do(t, http.MethodGet, "/api/invoices/export", "")
	require.Equal(t, http.StatusOK, empty.Code)
	assert.Equal(t, `attachment; filename="invoices_20260314.csv"`, empty.Header().Get("Content-Disposition"))
	assert.Equal(t, strings.Join(ledger.Header, ",")+"\n", empty.Body.String())

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/invoices/sales-cash", cashBody).Code)

	full := ts.do(t, http.MethodGet, "/api/invoices/export", "")
	require.Equal(t, http.StatusOK, full.Code)
	lines := strings.Split(strings.TrimSpace(full.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "SALES,0001,"))
}

func TestListInvoices_FiltersByBucket(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/invoices/sales-cash", cashBody).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/invoices/advance", cashBody).Code)

	rec := ts.do(t, http.MethodGet, "/api/invoices?bucket=advance", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "ADVANCE", resp.Data[0]["invoice_type"])
	assert.Equal(t, "0001", resp.Data[0]["invoice_no"])

	bad := ts.do(t, http.MethodGet, "/api/invoices?bucket=leasing", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestGetSequence(t *testing.T) {
	ts := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/invoices/proforma", cashBody).Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/sequences/proforma/2026", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Bucket string `json:"bucket"`
			Year   int    `json:"year"`
			LastNo int64  `json:"last_no"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PROFORMA", resp.Data.Bucket)
	assert.Equal(t, 2026, resp.Data.Year)
	assert.Equal(t, int64(3), resp.Data.LastNo)

	cases := []struct {
		name string
		path string
	}{
		{name: "unknown bucket", path: "/api/sequences/leasing/2026"},
		{name: "bad year", path: "/api/sequences/sales/26x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tc.path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decodeError(t, rec).Type)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{name: "allocation", err: domain.AllocationError(errors.New("disk full"), "write log"), wantStatus: http.StatusServiceUnavailable, wantType: "allocation_error"},
		{name: "render", err: domain.RenderError(errors.New("boom"), "draw"), wantStatus: http.StatusInternalServerError, wantType: "render_error"},
		{name: "persistence", err: domain.PersistenceError(errors.New("eacces"), "read"), wantStatus: http.StatusInternalServerError, wantType: "persistence_error"},
		{name: "not found", err: ErrNotFound, wantStatus: http.StatusNotFound, wantType: "not_found"},
		{name: "unknown", err: errors.New("???"), wantStatus: http.StatusInternalServerError, wantType: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

func TestListInvoices_Pages(t *testing.T) {
	ts := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/invoices/sales-cash", cashBody).Code)
	}

	type listResponse struct {
		Data     []map[string]string `json:"data"`
		PageInfo struct {
			NextPageToken string `json:"next_page_token"`
			HasMore       bool   `json:"has_more"`
		} `json:"page_info"`
	}

	var first listResponse
	rec := ts.do(t, http.MethodGet, "/api/invoices?page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.Data, 2)
	assert.True(t, first.PageInfo.HasMore)

	var second listResponse
	rec = ts.do(t, http.MethodGet, "/api/invoices?page_size=2&page_token="+first.PageInfo.NextPageToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second.Data, 1)
	assert.Equal(t, "0003", second.Data[0]["invoice_no"])
	assert.False(t, second.PageInfo.HasMore)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/invoices?page_size=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/invoices?page_token=%25%25", "").Code)
}
