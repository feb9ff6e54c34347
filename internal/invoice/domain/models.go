// Package domain contains the shared invoice model used by the allocator,
// the ledger, the renderer and every channel.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceKind selects the financial derivation rule and the document template.
type InvoiceKind string

const (
	KindSalesCash    InvoiceKind = "SALES-CASH"
	KindSalesLeasing InvoiceKind = "SALES-LEASING"
	KindProforma     InvoiceKind = "PROFORMA"
	KindAdvance      InvoiceKind = "ADVANCE"
)

// Kinds lists every issuable kind in display order.
var Kinds = []InvoiceKind{KindSalesCash, KindSalesLeasing, KindProforma, KindAdvance}

// Bucket is the numbering category. Cash and leasing sales share one bucket.
type Bucket string

const (
	BucketSales    Bucket = "SALES"
	BucketProforma Bucket = "PROFORMA"
	BucketAdvance  Bucket = "ADVANCE"
)

var Buckets = []Bucket{BucketSales, BucketProforma, BucketAdvance}

// ParseKind accepts the wire name of a kind in any letter case.
func ParseKind(raw string) (InvoiceKind, error) {
	kind := InvoiceKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case KindSalesCash, KindSalesLeasing, KindProforma, KindAdvance:
		return kind, nil
	default:
		return "", NewValidationError("kind", "invalid_kind", fmt.Sprintf("unknown invoice kind %q", raw))
	}
}

// Bucket returns the numbering bucket of the kind.
func (k InvoiceKind) Bucket() Bucket {
	switch k {
	case KindProforma:
		return BucketProforma
	case KindAdvance:
		return BucketAdvance
	default:
		return BucketSales
	}
}

func (k InvoiceKind) String() string { return string(k) }

// ParseBucket accepts the wire name of a bucket in any letter case.
func ParseBucket(raw string) (Bucket, error) {
	bucket := Bucket(strings.ToUpper(strings.TrimSpace(raw)))
	switch bucket {
	case BucketSales, BucketProforma, BucketAdvance:
		return bucket, nil
	default:
		return "", NewValidationError("bucket", "invalid_bucket", fmt.Sprintf("unknown bucket %q", raw))
	}
}

// DisplayName is the title-cased bucket used in file names.
func (b Bucket) DisplayName() string {
	switch b {
	case BucketProforma:
		return "Proforma"
	case BucketAdvance:
		return "Advance"
	default:
		return "Sales"
	}
}

func (b Bucket) String() string { return string(b) }

// SequenceKey identifies one counter.
type SequenceKey struct {
	Bucket Bucket
	Year   int
}

func (k SequenceKey) String() string {
	return string(k.Bucket) + ":" + strconv.Itoa(k.Year)
}

// InvoiceRecord is the complete data of one issued document. It is created
// once by the issuance pipeline and never mutated afterwards.
type InvoiceRecord struct {
	InvoiceNo       string          `json:"invoice_no"`
	Kind            InvoiceKind     `json:"kind"`
	IssuedAt        time.Time       `json:"issued_at"`
	CustomerName    string          `json:"customer_name"`
	CustomerNIC     string          `json:"customer_nic"`
	CustomerAddress string          `json:"customer_address"`
	DeliveryAddress string          `json:"delivery_address"`
	VehicleModel    string          `json:"vehicle_model"`
	EngineNo        string          `json:"engine_no"`
	ChassisNo       string          `json:"chassis_no"`
	Color           string          `json:"color"`
	Price           decimal.Decimal `json:"price"`
	DownPayment     decimal.Decimal `json:"down_payment"`
	Balance         decimal.Decimal `json:"balance"`
	FinanceCompany  string          `json:"finance_company"`
	FinanceAddress  string          `json:"finance_address"`
	DealerName      string          `json:"dealer_name"`
	PaymentMethod   string          `json:"payment_method"`
}

// Key returns the sequence key the record was numbered under.
func (r InvoiceRecord) Key() SequenceKey {
	return SequenceKey{Bucket: r.Kind.Bucket(), Year: r.IssuedAt.Year()}
}

// DateString is the issue date in the ledger format.
func (r InvoiceRecord) DateString() string {
	return r.IssuedAt.Format(DateLayout)
}

// DateLayout is the date format used on documents and in the ledger.
const DateLayout = "2006-01-02"

// Outcome distinguishes full success from a degraded-but-continued step.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeFailed    Outcome = "failed"
)

// Status reports the outcome of a best-effort step together with its reason.
type Status struct {
	Outcome Outcome
	Reason  string
}

// Succeeded is the zero-reason success status.
func Succeeded() Status { return Status{Outcome: OutcomeSucceeded} }

// Degraded reports a step that continued with reduced function.
func Degraded(reason string) Status { return Status{Outcome: OutcomeDegraded, Reason: reason} }

// Failed reports a step that did not complete.
func Failed(reason string) Status { return Status{Outcome: OutcomeFailed, Reason: reason} }

func (s Status) IsDegraded() bool { return s.Outcome == OutcomeDegraded }
