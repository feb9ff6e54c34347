package metrics

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: ReasonCanceled},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "other_pg", err: &pgconn.PgError{Code: "42P01"}, want: ReasonDB},
		{name: "unreachable", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: ReasonUnreachable},
		{name: "io", err: &fs.PathError{Op: "open", Path: "invoice_log.csv", Err: fs.ErrPermission}, want: ReasonIO},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSequenceMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSequenceMetrics(registry, Config{ServiceName: "invoicedesk", Environment: "test"})

	m.IncAllocation("SALES", SourceRemote)
	m.IncAllocation("SALES", SourceRemote)
	m.IncAllocationError("ADVANCE", context.DeadlineExceeded)
	m.IncRemoteDegraded("count", ReasonUnreachable)
	m.ObserveAllocationDuration("SALES", 3*time.Millisecond)

	if got := testutil.ToFloat64(m.allocations.WithLabelValues("SALES", SourceRemote)); got != 2 {
		t.Fatalf("expected 2 allocations, got %v", got)
	}
	if got := testutil.ToFloat64(m.allocationErrors.WithLabelValues("ADVANCE", ReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 allocation error, got %v", got)
	}
	if got := testutil.ToFloat64(m.remoteDegraded.WithLabelValues("count", ReasonUnreachable)); got != 1 {
		t.Fatalf("expected 1 degradation, got %v", got)
	}
	if got := testutil.CollectAndCount(m.allocationDuration); got != 1 {
		t.Fatalf("expected 1 histogram series, got %d", got)
	}
}

func TestNilSequenceMetricsIsSafe(t *testing.T) {
	var m *SequenceMetrics
	m.IncAllocation("SALES", SourceLocal)
	m.IncAllocationError("SALES", errors.New("x"))
	m.ObserveLockWait(LockFile, time.Second)
}
