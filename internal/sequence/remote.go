package sequence

import (
	"context"
	"time"

	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

// RemoteCounter answers how many invoices the remote record table holds
// for a key. It backs the compat policy.
type RemoteCounter interface {
	Count(ctx context.Context, key domain.SequenceKey) (int64, error)
}

// RemoteIncrementer owns a transactional counter per key. NextValue
// atomically sets the counter to max(counter, floor) + 1 and returns it.
// It backs the strict-remote policy.
type RemoteIncrementer interface {
	NextValue(ctx context.Context, key domain.SequenceKey, floor int64) (int64, error)
}

// DistributedLocker serializes allocation of one key across hosts.
type DistributedLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}
