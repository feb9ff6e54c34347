package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	calls atomic.Int32
	errs  []error
}

func (m *fakeMirror) Name() string { return "fake" }

func (m *fakeMirror) Insert(ctx context.Context, rec domain.InvoiceRecord) error {
	n := int(m.calls.Add(1)) - 1
	if n < len(m.errs) {
		return m.errs[n]
	}
	return nil
}

type downMirror struct{ calls atomic.Int32 }

func (m *downMirror) Name() string { return "down" }

func (m *downMirror) Insert(ctx context.Context, rec domain.InvoiceRecord) error {
	m.calls.Add(1)
	return errors.New("connection refused")
}

func record(no string, kind domain.InvoiceKind, customer string) domain.InvoiceRecord {
	return domain.InvoiceRecord{
		InvoiceNo:       no,
		Kind:            kind,
		IssuedAt:        time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		CustomerName:    customer,
		CustomerNIC:     "851234567V",
		CustomerAddress: "12 Beach Road, Tangalle",
		VehicleModel:    "APE AUTO DX",
		Price:           decimal.NewFromInt(150000),
		DownPayment:     decimal.NewFromInt(150000),
		Balance:         decimal.Zero,
		DealerName:      "Gunawardhana Enterprises",
	}
}

func TestAppend_WritesHeaderOnceAndKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "invoices.csv")
	l := NewLedger(path, nil)
	ctx := context.Background()

	for i, no := range []string{"0001", "0002", "0003"} {
		status, err := l.Append(ctx, record(no, domain.KindSalesCash, "Customer "+no))
		require.NoError(t, err, "append %d", i)
		assert.Equal(t, domain.OutcomeSucceeded, status.Outcome)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Equal(t, "SALES,0001,2026-03-14,Customer 0001,851234567V,\"12 Beach Road, Tangalle\",,APE AUTO DX,,,,150000.00,150000.00,0.00,,,Gunawardhana Enterprises,", lines[1])

	entries, err := l.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, no := range []string{"0001", "0002", "0003"} {
		assert.Equal(t, no, entries[i].Get("invoice_no"))
		assert.Equal(t, "SALES", entries[i].Get("invoice_type"))
	}
}

func TestAppend_BucketColumnForProforma(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "invoices.csv"), nil)
	ctx := context.Background()

	rec := record("0004", domain.KindProforma, "Kamal")
	rec.DownPayment = decimal.NewFromInt(50000)
	rec.Balance = decimal.NewFromInt(100000)
	_, err := l.Append(ctx, rec)
	require.NoError(t, err)

	entries, err := l.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "PROFORMA", entries[0].Get("invoice_type"))
	assert.Equal(t, "100000.00", entries[0].Get("balance"))
	assert.Equal(t, "", entries[0].Get("no_such_column"))
}

func TestAppend_ConcurrentWritersProduceWholeRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.csv")
	l := NewLedger(path, nil)
	ctx := context.Background()

	var wg conc.WaitGroup
	for i := 0; i < 25; i++ {
		no := decimal.NewFromInt(int64(i + 1)).String()
		wg.Go(func() {
			_, err := l.Append(ctx, record(no, domain.KindAdvance, "Concurrent, Customer"))
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	entries, err := l.Rows(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 25)
	for _, e := range entries {
		assert.Len(t, e, len(Header))
		assert.Equal(t, "Concurrent, Customer", e.Get("customer"))
	}
}

func TestAppend_RejectsUnnumberedRecord(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "invoices.csv"), nil)
	_, err := l.Append(context.Background(), record("", domain.KindSalesCash, "Nimal"))
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))
}

func TestAppend_UnwritableLocationIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	l := NewLedger(filepath.Join(blocker, "invoices.csv"), nil)
	status, err := l.Append(context.Background(), record("0001", domain.KindSalesCash, "Nimal"))
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))
	assert.Equal(t, domain.OutcomeFailed, status.Outcome)
}

func TestAppend_MirrorRetriesThenSucceeds(t *testing.T) {
	mirror := &fakeMirror{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	l := NewLedger(filepath.Join(t.TempDir(), "invoices.csv"), nil,
		WithMirror(mirror),
		WithMirrorTimeout(5*time.Second),
	)

	status, err := l.Append(context.Background(), record("0001", domain.KindSalesCash, "Nimal"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, status.Outcome)
	assert.Equal(t, int32(3), mirror.calls.Load())
}

func TestAppend_MirrorFailureIsDegradedNotError(t *testing.T) {
	mirror := &downMirror{}
	path := filepath.Join(t.TempDir(), "invoices.csv")
	l := NewLedger(path, nil,
		WithMirror(mirror),
		WithMirrorTimeout(300*time.Millisecond),
	)

	status, err := l.Append(context.Background(), record("0001", domain.KindSalesCash, "Nimal"))
	require.NoError(t, err)
	assert.True(t, status.IsDegraded())
	assert.NotEmpty(t, status.Reason)
	assert.GreaterOrEqual(t, mirror.calls.Load(), int32(1))

	entries, err := l.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "local row is kept when the mirror is down")
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(filepath.Join(t.TempDir(), "invoices.csv"), nil)

	empty, err := l.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Header, ",")+"\n", string(empty))

	for _, no := range []string{"0001", "0002"} {
		_, err := l.Append(ctx, record(no, domain.KindSalesCash, "Nimal"))
		require.NoError(t, err)
	}

	data, err := l.Export(ctx)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], "SALES,0002,"))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "invoices_20260314.csv", ExportFilename(time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)))
}
