// Package ledger keeps the append-only CSV record of every issued document
// and mirrors each row to the remote store when one is configured.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"github.com/smallbiznis/invoicedesk/pkg/filelock"
	"go.uber.org/zap"
)

// Header is the fixed column order of the ledger file.
var Header = []string{
	"invoice_type", "invoice_no", "date", "customer", "nic", "cust_addr",
	"delivery", "model", "engine", "chassis", "color", "price", "down",
	"balance", "finance_company", "finance_address", "dealer", "payment_method",
}

const defaultMirrorTimeout = 3 * time.Second

// Mirror receives a copy of every appended record.
type Mirror interface {
	Insert(ctx context.Context, rec domain.InvoiceRecord) error
	Name() string
}

type Ledger struct {
	path          string
	lock          *filelock.Lock
	mirror        Mirror
	mirrorTimeout time.Duration
	log           *zap.Logger
	metrics       *metrics.SequenceMetrics
	telemetry     *metrics.Metrics
}

type Option func(*Ledger)

func WithMirror(m Mirror) Option {
	return func(l *Ledger) { l.mirror = m }
}

func WithMirrorTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.mirrorTimeout = d
		}
	}
}

func WithMetrics(m *metrics.SequenceMetrics, telemetry *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
		l.telemetry = telemetry
	}
}

func WithLockOptions(opts ...filelock.Option) Option {
	return func(l *Ledger) { l.lock = filelock.New(l.path, opts...) }
}

func NewLedger(path string, log *zap.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		path:          path,
		lock:          filelock.New(path),
		mirrorTimeout: defaultMirrorTimeout,
		log:           log.Named("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Path() string { return l.path }

// Append writes rec as one row. The local write is authoritative and its
// failure is returned as a persistence error. The remote mirror is best
// effort and only affects the returned status.
func (l *Ledger) Append(ctx context.Context, rec domain.InvoiceRecord) (domain.Status, error) {
	if rec.InvoiceNo == "" {
		return domain.Failed("missing invoice number"), domain.PersistenceError(errors.New("record has no invoice number"), "append ledger row")
	}

	row, err := encodeRows(recordRow(rec))
	if err != nil {
		return domain.Failed("encode"), domain.PersistenceError(err, "encode ledger row")
	}

	err = l.lock.WithLock(ctx, func() error {
		return l.appendLocked(row)
	})
	if err != nil {
		return domain.Failed("write"), domain.PersistenceError(err, "append ledger row")
	}

	status := l.mirrorRecord(ctx, rec)
	l.metrics.IncLedgerAppend(string(rec.Kind.Bucket()), string(status.Outcome))
	return status, nil
}

func (l *Ledger) appendLocked(row []byte) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	payload := row
	if info.Size() == 0 {
		header, err := encodeRows(Header)
		if err != nil {
			f.Close()
			return err
		}
		payload = append(header, row...)
	}

	// one write per row so readers never observe half a record
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *Ledger) mirrorRecord(ctx context.Context, rec domain.InvoiceRecord) domain.Status {
	if l.mirror == nil {
		return domain.Succeeded()
	}

	mirrorCtx, cancel := context.WithTimeout(ctx, l.mirrorTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = l.mirrorTimeout

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return l.mirror.Insert(mirrorCtx, rec)
	}, backoff.WithContext(policy, mirrorCtx))

	if err != nil {
		reason := metrics.ClassifyReason(err)
		l.telemetry.RecordLedgerMirror(ctx, string(domain.OutcomeDegraded))
		l.log.Warn("ledger mirror failed, local row kept",
			zap.String("mirror", l.mirror.Name()),
			zap.String("invoice_no", rec.InvoiceNo),
			zap.String("bucket", string(rec.Kind.Bucket())),
			zap.Int("attempts", attempts),
			zap.String("reason", reason),
			zap.Error(domain.RemoteUnavailable(err, "mirror insert")),
		)
		return domain.Degraded("remote mirror unavailable: " + reason)
	}

	l.telemetry.RecordLedgerMirror(ctx, string(domain.OutcomeSucceeded))
	return domain.Succeeded()
}

// Export returns the ledger file. An empty or missing ledger exports the
// header row only.
func (l *Ledger) Export(ctx context.Context) ([]byte, error) {
	var data []byte
	err := l.lock.WithLock(ctx, func() error {
		raw, err := os.ReadFile(l.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		data = raw
		return nil
	})
	if err != nil {
		return nil, domain.PersistenceError(err, "read ledger")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return encodeRows(Header)
	}
	return data, nil
}

// Rows parses the ledger into entries in file order, header excluded.
func (l *Ledger) Rows(ctx context.Context) ([]Entry, error) {
	data, err := l.Export(ctx)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var entries []Entry
	first := true
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.PersistenceError(err, "parse ledger")
		}
		if first {
			first = false
			continue
		}
		entries = append(entries, Entry(record))
	}
	return entries, nil
}

// ExportFilename is the download name for an export taken at t.
func ExportFilename(t time.Time) string {
	return "invoices_" + t.Format("20060102") + ".csv"
}

// Entry is one parsed ledger row.
type Entry []string

// Get returns the value of column, empty when the column is unknown or the
// row is short.
func (e Entry) Get(column string) string {
	for i, name := range Header {
		if name == column {
			if i < len(e) {
				return e[i]
			}
			return ""
		}
	}
	return ""
}

func recordRow(rec domain.InvoiceRecord) []string {
	return []string{
		string(rec.Kind.Bucket()),
		rec.InvoiceNo,
		rec.DateString(),
		rec.CustomerName,
		rec.CustomerNIC,
		rec.CustomerAddress,
		rec.DeliveryAddress,
		rec.VehicleModel,
		rec.EngineNo,
		rec.ChassisNo,
		rec.Color,
		rec.Price.StringFixed(2),
		rec.DownPayment.StringFixed(2),
		rec.Balance.StringFixed(2),
		rec.FinanceCompany,
		rec.FinanceAddress,
		rec.DealerName,
		rec.PaymentMethod,
	}
}

func encodeRows(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
