package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/invoice/format"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Policy selects how the remote store and the local log are reconciled.
type Policy string

const (
	// PolicyCompat trusts the remote record count once it exceeds one and
	// otherwise falls back to the local log.
	PolicyCompat Policy = config.PolicyCompat
	// PolicyStrictRemote takes the number from the remote transactional
	// counter and keeps the local log as a write-ahead mirror.
	PolicyStrictRemote Policy = config.PolicyStrictRemote
)

// Source names the store that decided an allocated number.
type Source string

const (
	SourceRemote Source = metrics.SourceRemote
	SourceLocal  Source = metrics.SourceLocal
)

// Allocation is one consumed invoice number.
type Allocation struct {
	Key       domain.SequenceKey
	Number    int64
	InvoiceNo string
	Source    Source
}

var errCASExhausted = errors.New("local sequence log kept changing during allocation")

const (
	defaultRemoteTimeout  = 3 * time.Second
	defaultRemoteCooldown = 30 * time.Second
	defaultLockTTL        = 10 * time.Second
	defaultMaxCASRetries  = 8

	remoteCooldownKey = "remote"
	lockKeyPrefix     = "invoicedesk:sequence:"
)

type Params struct {
	fx.In

	Config      config.Config
	Log         *zap.Logger
	Local       *LocalLog
	Counter     RemoteCounter            `optional:"true"`
	Incrementer RemoteIncrementer        `optional:"true"`
	Locker      DistributedLocker        `optional:"true"`
	Metrics     *metrics.SequenceMetrics `optional:"true"`
}

// Allocator hands out invoice numbers per (bucket, year). Calls for one key
// are serialized; calls for different keys run in parallel.
type Allocator struct {
	log         *zap.Logger
	local       *LocalLog
	counter     RemoteCounter
	incrementer RemoteIncrementer
	locker      DistributedLocker
	metrics     *metrics.SequenceMetrics
	tracer      trace.Tracer

	policy         Policy
	remoteTimeout  time.Duration
	remoteCooldown time.Duration
	lockTTL        time.Duration
	maxCASRetries  int

	keys     *keyedMutex
	cooldown *gocache.Cache
}

func New(p Params) *Allocator {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	a := &Allocator{
		log:            log.Named("sequence.allocator"),
		local:          p.Local,
		counter:        p.Counter,
		incrementer:    p.Incrementer,
		locker:         p.Locker,
		metrics:        p.Metrics,
		tracer:         otel.Tracer("invoicedesk/sequence"),
		policy:         Policy(p.Config.SequencePolicy),
		remoteTimeout:  p.Config.RemoteTimeout,
		remoteCooldown: p.Config.RemoteCooldown,
		lockTTL:        p.Config.LockTTL,
		maxCASRetries:  defaultMaxCASRetries,
		keys:           newKeyedMutex(),
	}
	if a.policy != PolicyStrictRemote {
		a.policy = PolicyCompat
	}
	if a.remoteTimeout <= 0 {
		a.remoteTimeout = defaultRemoteTimeout
	}
	if a.remoteCooldown < 0 {
		a.remoteCooldown = defaultRemoteCooldown
	}
	if a.lockTTL <= 0 {
		a.lockTTL = defaultLockTTL
	}
	a.cooldown = gocache.New(a.remoteCooldown, time.Minute)

	if a.policy == PolicyStrictRemote && a.incrementer == nil {
		a.log.Warn("strict_remote policy without a transactional remote store, using the local log")
	}
	return a
}

func (a *Allocator) Policy() Policy { return a.policy }

// Next consumes and returns the next number for (bucket, year). The number
// is persisted to the local log before it is returned, so it is never
// handed out twice even if the caller fails afterwards.
func (a *Allocator) Next(ctx context.Context, bucket domain.Bucket, year int) (Allocation, error) {
	bucket, err := domain.ParseBucket(string(bucket))
	if err != nil {
		return Allocation{}, err
	}
	if err := validateYear(year); err != nil {
		return Allocation{}, err
	}
	key := domain.SequenceKey{Bucket: bucket, Year: year}

	ctx, span := a.tracer.Start(ctx, "sequence.Next", trace.WithAttributes(
		attribute.String("bucket", string(bucket)),
		attribute.Int("year", year),
		attribute.String("policy", string(a.policy)),
	))
	defer span.End()

	start := time.Now()
	alloc, err := a.next(ctx, key)
	a.metrics.ObserveAllocationDuration(string(bucket), time.Since(start))
	if err != nil {
		a.metrics.IncAllocationError(string(bucket), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation failed")
		a.log.Error("allocation failed", zap.String("key", key.String()), zap.Error(err))
		return Allocation{}, err
	}

	a.metrics.IncAllocation(string(bucket), string(alloc.Source))
	span.SetAttributes(
		attribute.String("invoice_no", alloc.InvoiceNo),
		attribute.String("source", string(alloc.Source)),
	)
	a.log.Info("invoice number allocated",
		zap.String("key", key.String()),
		zap.String("invoice_no", alloc.InvoiceNo),
		zap.String("source", string(alloc.Source)),
	)
	return alloc, nil
}

// Peek returns the last number stored in the local log without consuming one.
func (a *Allocator) Peek(ctx context.Context, bucket domain.Bucket, year int) (int64, error) {
	bucket, err := domain.ParseBucket(string(bucket))
	if err != nil {
		return 0, err
	}
	if err := validateYear(year); err != nil {
		return 0, err
	}
	return a.local.Last(ctx, domain.SequenceKey{Bucket: bucket, Year: year})
}

func validateYear(year int) error {
	if year <= 0 {
		return domain.NewValidationError("year", "invalid_year", fmt.Sprintf("invalid year %d", year))
	}
	return nil
}

func (a *Allocator) next(ctx context.Context, key domain.SequenceKey) (Allocation, error) {
	waitStart := time.Now()
	unlock := a.keys.Lock(key.String())
	defer unlock()
	a.metrics.ObserveLockWait(metrics.LockProcess, time.Since(waitStart))

	if release := a.lockAcrossHosts(ctx, key); release != nil {
		defer release()
	}

	for attempt := 0; attempt <= a.maxCASRetries; attempt++ {
		localLast, err := a.local.Last(ctx, key)
		if err != nil {
			return Allocation{}, err
		}

		chosen, source := a.resolve(ctx, key, localLast)

		current, swapped, err := a.local.CompareAndSwap(ctx, key, localLast, chosen)
		if err != nil {
			return Allocation{}, err
		}
		if swapped {
			invoiceNo, err := format.SequenceNumber(chosen)
			if err != nil {
				return Allocation{}, domain.AllocationError(err, "format invoice number")
			}
			return Allocation{Key: key, Number: chosen, InvoiceNo: invoiceNo, Source: source}, nil
		}

		a.metrics.IncCASConflict(string(key.Bucket))
		a.log.Warn("local sequence log changed during allocation, retrying",
			zap.String("key", key.String()),
			zap.Int64("expected", localLast),
			zap.Int64("current", current),
			zap.Int("attempt", attempt+1),
		)
	}
	return Allocation{}, domain.AllocationError(errCASExhausted, key.String())
}

// resolve picks the next number from the remote answer and the local last
// number. The result is never at or below localLast.
func (a *Allocator) resolve(ctx context.Context, key domain.SequenceKey, localLast int64) (int64, Source) {
	localCandidate := localLast + 1

	if a.policy == PolicyStrictRemote && a.incrementer != nil {
		value, ok := a.remoteNextValue(ctx, key, localLast)
		if !ok {
			return localCandidate, SourceLocal
		}
		if value <= localLast {
			a.log.Warn("remote counter behind local log, using local",
				zap.String("key", key.String()),
				zap.Int64("remote", value),
				zap.Int64("local_last", localLast),
			)
			return localCandidate, SourceLocal
		}
		return value, SourceRemote
	}

	count, ok := a.remoteCount(ctx, key)
	if !ok {
		return localCandidate, SourceLocal
	}
	remoteCandidate := count + 1
	if remoteCandidate <= 1 {
		return localCandidate, SourceLocal
	}
	if remoteCandidate < localCandidate {
		// numbers issued offline are not in the remote table yet
		a.log.Warn("remote count behind local log, using local",
			zap.String("key", key.String()),
			zap.Int64("remote_candidate", remoteCandidate),
			zap.Int64("local_candidate", localCandidate),
		)
		return localCandidate, SourceLocal
	}
	return remoteCandidate, SourceRemote
}

func (a *Allocator) remoteCount(ctx context.Context, key domain.SequenceKey) (int64, bool) {
	if a.counter == nil {
		return 0, false
	}
	var count int64
	ok := a.callRemote(ctx, "count", key, func(ctx context.Context) error {
		var err error
		count, err = a.counter.Count(ctx, key)
		return err
	})
	if ok && count < 0 {
		return 0, false
	}
	return count, ok
}

func (a *Allocator) remoteNextValue(ctx context.Context, key domain.SequenceKey, floor int64) (int64, bool) {
	var value int64
	ok := a.callRemote(ctx, "next_value", key, func(ctx context.Context) error {
		var err error
		value, err = a.incrementer.NextValue(ctx, key, floor)
		return err
	})
	return value, ok
}

// callRemote runs fn under the remote timeout. A failure opens the cooldown
// window during which the remote is not consulted at all.
func (a *Allocator) callRemote(ctx context.Context, operation string, key domain.SequenceKey, fn func(context.Context) error) bool {
	if _, cooling := a.cooldown.Get(remoteCooldownKey); cooling {
		a.metrics.IncRemoteDegraded(operation, metrics.ReasonCooldown)
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, a.remoteTimeout)
	defer cancel()

	if err := fn(callCtx); err != nil {
		reason := metrics.ClassifyReason(err)
		a.metrics.IncRemoteDegraded(operation, reason)
		if a.remoteCooldown > 0 {
			a.cooldown.Set(remoteCooldownKey, reason, a.remoteCooldown)
		}
		a.log.Warn("remote sequence store unavailable, using local log",
			zap.String("operation", operation),
			zap.String("key", key.String()),
			zap.String("reason", reason),
			zap.Error(domain.RemoteUnavailable(err, operation)),
		)
		return false
	}
	return true
}

// lockAcrossHosts takes the redis lock for key when one is configured.
// Failure to reach redis degrades to host-local serialization.
func (a *Allocator) lockAcrossHosts(ctx context.Context, key domain.SequenceKey) func() {
	if a.locker == nil {
		return nil
	}

	lockKey := lockKeyPrefix + key.String()
	start := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = a.lockTTL

	var token string
	err := backoff.Retry(func() error {
		t, ok, err := a.locker.TryLock(ctx, lockKey, a.lockTTL)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errors.New("lock held")
		}
		token = t
		return nil
	}, backoff.WithContext(policy, ctx))
	a.metrics.ObserveLockWait(metrics.LockRedis, time.Since(start))

	if err != nil {
		a.metrics.IncRemoteDegraded("lock", metrics.ClassifyReason(err))
		a.log.Warn("distributed allocation lock unavailable, continuing with host lock",
			zap.String("key", key.String()),
			zap.Error(err),
		)
		return nil
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.remoteTimeout)
		defer cancel()
		if err := a.locker.Release(releaseCtx, lockKey, token); err != nil {
			a.log.Warn("release distributed allocation lock", zap.String("key", key.String()), zap.Error(err))
		}
	}
}
