package remotestore

import (
	"context"

	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

// Store is a remote invoice table. Count backs the compat allocation
// policy and Insert backs the ledger mirror.
type Store interface {
	Count(ctx context.Context, key domain.SequenceKey) (int64, error)
	Insert(ctx context.Context, rec domain.InvoiceRecord) error
	Name() string
}
