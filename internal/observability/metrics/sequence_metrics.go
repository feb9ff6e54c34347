package metrics

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonCanceled             = "canceled"
	ReasonUnreachable          = "unreachable"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonDB                   = "db"
	ReasonIO                   = "io"
	ReasonCooldown             = "cooldown"
	ReasonUnknown              = "unknown"
)

const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

const (
	LockProcess = "process"
	LockFile    = "file"
	LockRedis   = "redis"
)

// SequenceMetrics captures allocator and ledger health. Allocation latency
// and remote degradations are the signals operators page on.
type SequenceMetrics struct {
	allocations        *prometheus.CounterVec
	allocationErrors   *prometheus.CounterVec
	allocationDuration *prometheus.HistogramVec
	casConflicts       *prometheus.CounterVec
	remoteDegraded     *prometheus.CounterVec
	lockWait           *prometheus.HistogramVec
	ledgerAppends      *prometheus.CounterVec
	renders            *prometheus.CounterVec
}

var (
	sequenceMetricsOnce sync.Once
	sequenceMetrics     *SequenceMetrics
)

// Sequence returns the process-wide metrics registered on the default registry.
func Sequence() *SequenceMetrics {
	return SequenceWithConfig(Config{})
}

// SequenceWithConfig initializes the singleton with service labels on first use.
func SequenceWithConfig(cfg Config) *SequenceMetrics {
	sequenceMetricsOnce.Do(func() {
		sequenceMetrics = newSequenceMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sequenceMetrics
}

// NewSequenceMetricsForTest builds metrics on a private registry.
func NewSequenceMetricsForTest(registerer prometheus.Registerer) *SequenceMetrics {
	return newSequenceMetrics(registerer, Config{ServiceName: "invoicedesk", Environment: "test"})
}

func newSequenceMetrics(registerer prometheus.Registerer, cfg Config) *SequenceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "invoicedesk"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicedesk_sequence_allocations_total",
		Help:        "Invoice numbers allocated by bucket and the source that decided the value.",
		ConstLabels: constLabels,
	}, []string{"bucket", "source"})
	allocationErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicedesk_sequence_allocation_errors_total",
		Help:        "Failed allocations by bucket and reason.",
		ConstLabels: constLabels,
	}, []string{"bucket", "reason"})
	allocationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "invoicedesk_sequence_allocation_duration_seconds",
		Help:        "Time spent allocating one invoice number, locks included.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"bucket"})
	casConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicedesk_sequence_cas_conflicts_total",
		Help:        "Local log writes retried because the stored value moved.",
		ConstLabels: constLabels,
	}, []string{"bucket"})
	remoteDegraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicedesk_remote_degraded_total",
		Help:        "Remote store calls that fell back to the local path.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "invoicedesk_lock_wait_seconds",
		Help:        "Time waiting to acquire allocation and ledger locks.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		ConstLabels: constLabels,
	}, []string{"lock"})
	ledgerAppends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicedesk_ledger_appends_total",
		Help:        "Ledger appends by bucket and remote mirror outcome.",
		ConstLabels: constLabels,
	}, []string{"bucket", "mirror"})
	renders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoicedesk_documents_rendered_total",
		Help:        "Documents rendered by kind and outcome.",
		ConstLabels: constLabels,
	}, []string{"kind", "outcome"})

	registerer.MustRegister(
		allocations,
		allocationErrors,
		allocationDuration,
		casConflicts,
		remoteDegraded,
		lockWait,
		ledgerAppends,
		renders,
	)

	return &SequenceMetrics{
		allocations:        allocations,
		allocationErrors:   allocationErrors,
		allocationDuration: allocationDuration,
		casConflicts:       casConflicts,
		remoteDegraded:     remoteDegraded,
		lockWait:           lockWait,
		ledgerAppends:      ledgerAppends,
		renders:            renders,
	}
}

func (m *SequenceMetrics) IncAllocation(bucket, source string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(bucket, source).Inc()
}

// IncAllocationError increments allocation failures with classification.
func (m *SequenceMetrics) IncAllocationError(bucket string, err error) {
	if m == nil || err == nil {
		return
	}
	m.allocationErrors.WithLabelValues(bucket, ClassifyReason(err)).Inc()
}

func (m *SequenceMetrics) ObserveAllocationDuration(bucket string, d time.Duration) {
	if m == nil {
		return
	}
	m.allocationDuration.WithLabelValues(bucket).Observe(d.Seconds())
}

func (m *SequenceMetrics) IncCASConflict(bucket string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(bucket).Inc()
}

// IncRemoteDegraded counts a remote call that was skipped or failed.
func (m *SequenceMetrics) IncRemoteDegraded(operation, reason string) {
	if m == nil {
		return
	}
	m.remoteDegraded.WithLabelValues(operation, reason).Inc()
}

func (m *SequenceMetrics) ObserveLockWait(lock string, d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.lockWait.WithLabelValues(lock).Observe(d.Seconds())
}

func (m *SequenceMetrics) IncLedgerAppend(bucket, mirror string) {
	if m == nil {
		return
	}
	m.ledgerAppends.WithLabelValues(bucket, mirror).Inc()
}

func (m *SequenceMetrics) IncRender(kind, outcome string) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(kind, outcome).Inc()
}

// ClassifyReason maps storage and remote errors to low-cardinality reasons.
func ClassifyReason(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	if hasPGCode(err, "55P03") {
		return ReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ReasonUniqueViolation
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonDeadlineExceeded
		}
		return ReasonUnreachable
	}
	if isDBError(err) {
		return ReasonDB
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ReasonIO
	}
	return ReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrNotImplemented) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
