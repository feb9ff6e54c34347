package sequence

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"github.com/smallbiznis/invoicedesk/pkg/filelock"
)

var localLogHeader = []string{"invoice_type", "year", "last_no"}

// LocalLog is the file-resident table of (bucket, year) -> last number.
// Every update rewrites the whole table through a temp file and a rename,
// so a crash leaves either the old or the new table on disk.
type LocalLog struct {
	path    string
	lock    *filelock.Lock
	metrics *metrics.SequenceMetrics
}

type localRow struct {
	bucket string
	year   int
	last   int64
}

func NewLocalLog(path string, m *metrics.SequenceMetrics, opts ...filelock.Option) *LocalLog {
	return &LocalLog{
		path:    path,
		lock:    filelock.New(path, opts...),
		metrics: m,
	}
}

func (l *LocalLog) Path() string { return l.path }

// Last returns the stored last number for key, 0 when the key was never used.
func (l *LocalLog) Last(ctx context.Context, key domain.SequenceKey) (int64, error) {
	var last int64
	err := l.withLock(ctx, func() error {
		rows, err := l.read()
		if err != nil {
			return err
		}
		last = findRow(rows, key)
		return nil
	})
	return last, err
}

// CompareAndSwap stores next for key only if the stored value still equals
// expected. On mismatch it reports the current value and swapped=false.
func (l *LocalLog) CompareAndSwap(ctx context.Context, key domain.SequenceKey, expected, next int64) (int64, bool, error) {
	if next < 0 {
		return 0, false, domain.AllocationError(fmt.Errorf("negative last number %d", next), "update local sequence log")
	}

	var current int64
	var swapped bool
	err := l.withLock(ctx, func() error {
		rows, err := l.read()
		if err != nil {
			return err
		}
		current = findRow(rows, key)
		if current != expected {
			return nil
		}
		rows = upsertRow(rows, key, next)
		if err := l.write(rows); err != nil {
			return err
		}
		current, swapped = next, true
		return nil
	})
	return current, swapped, err
}

// Snapshot returns every counter in file order.
func (l *LocalLog) Snapshot(ctx context.Context) (map[domain.SequenceKey]int64, error) {
	out := map[domain.SequenceKey]int64{}
	err := l.withLock(ctx, func() error {
		rows, err := l.read()
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[domain.SequenceKey{Bucket: domain.Bucket(r.bucket), Year: r.year}] = r.last
		}
		return nil
	})
	return out, err
}

func (l *LocalLog) withLock(ctx context.Context, fn func() error) error {
	start := time.Now()
	release, err := l.lock.Acquire(ctx)
	l.metrics.ObserveLockWait(metrics.LockFile, time.Since(start))
	if err != nil {
		return domain.AllocationError(err, "lock local sequence log")
	}
	defer func() { _ = release() }()
	return fn()
}

func (l *LocalLog) read() ([]localRow, error) {
	raw, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.AllocationError(err, "read local sequence log")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1

	var rows []localRow
	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.AllocationError(err, "parse local sequence log")
		}
		line++
		if line == 1 && isHeader(rec) {
			continue
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, domain.AllocationError(err, fmt.Sprintf("corrupt local sequence log at record %d", line))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (l *LocalLog) write(rows []localRow) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(localLogHeader)
	for _, r := range rows {
		_ = w.Write([]string{r.bucket, strconv.Itoa(r.year), strconv.FormatInt(r.last, 10)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.AllocationError(err, "encode local sequence log")
	}

	if err := writeFileAtomic(l.path, buf.Bytes()); err != nil {
		return domain.AllocationError(err, "write local sequence log")
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), localLogHeader[0])
}

func parseRow(rec []string) (localRow, error) {
	if len(rec) != len(localLogHeader) {
		return localRow{}, fmt.Errorf("expected %d columns, got %d", len(localLogHeader), len(rec))
	}
	bucket := strings.TrimSpace(rec[0])
	if _, err := domain.ParseBucket(bucket); err != nil {
		return localRow{}, err
	}
	year, err := strconv.Atoi(strings.TrimSpace(rec[1]))
	if err != nil {
		return localRow{}, fmt.Errorf("invalid year %q", rec[1])
	}
	last, err := strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64)
	if err != nil || last < 0 {
		return localRow{}, fmt.Errorf("invalid last_no %q", rec[2])
	}
	return localRow{bucket: strings.ToUpper(bucket), year: year, last: last}, nil
}

func findRow(rows []localRow, key domain.SequenceKey) int64 {
	for _, r := range rows {
		if r.bucket == string(key.Bucket) && r.year == key.Year {
			return r.last
		}
	}
	return 0
}

func upsertRow(rows []localRow, key domain.SequenceKey, last int64) []localRow {
	for i := range rows {
		if rows[i].bucket == string(key.Bucket) && rows[i].year == key.Year {
			rows[i].last = last
			return rows
		}
	}
	return append(rows, localRow{bucket: string(key.Bucket), year: key.Year, last: last})
}
