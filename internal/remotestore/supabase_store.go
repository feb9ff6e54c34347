package remotestore

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	supabase "github.com/nedpals/supabase-go"
	postgrest "github.com/nedpals/supabase-go/postgrest/pkg"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

const supabaseInvoiceTable = "invoices"

// SupabaseStore reaches the invoices table through PostgREST. It has no
// atomic counter, so it only serves the compat policy.
type SupabaseStore struct {
	client *supabase.Client
}

func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	if url == "" || key == "" {
		return nil, errors.New("supabase url and key are required")
	}
	return &SupabaseStore{client: supabase.CreateClient(url, key)}, nil
}

func (s *SupabaseStore) Name() string { return "supabase" }

// Count asks PostgREST for an exact count (HEAD, Prefer: count=exact) and
// reads the total from Content-Range, so it is not capped by max-rows.
func (s *SupabaseStore) Count(ctx context.Context, key domain.SequenceKey) (int64, error) {
	var total int64
	err := s.client.DB.From(supabaseInvoiceTable).
		Select("invoice_no").
		Count().
		Eq("invoice_type", string(key.Bucket)).
		Eq("year", strconv.Itoa(key.Year)).
		ExecuteWithContext(ctx, &total)
	if err != nil {
		return 0, errors.Wrap(err, "supabase count invoices")
	}
	return total, nil
}

// Insert adds the row. A conflict on (invoice_type, year, invoice_no) means an
// earlier attempt already landed, so a retried insert is a success.
func (s *SupabaseStore) Insert(ctx context.Context, rec domain.InvoiceRecord) error {
	row := toSupabaseRow(rec)
	var out []map[string]any
	err := s.client.DB.From(supabaseInvoiceTable).Insert(row).ExecuteWithContext(ctx, &out)
	if err != nil {
		if isSupabaseDuplicate(err) {
			return nil
		}
		return errors.Wrap(err, "supabase insert invoice")
	}
	return nil
}

func isSupabaseDuplicate(err error) bool {
	var reqErr *postgrest.RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.Code == "23505" || reqErr.HTTPStatusCode == http.StatusConflict
}

// supabaseRow omits the snowflake id; the hosted table owns its key.
type supabaseRow struct {
	InvoiceType    string `json:"invoice_type"`
	Year           int    `json:"year"`
	InvoiceNo      string `json:"invoice_no"`
	Kind           string `json:"kind"`
	Date           string `json:"date"`
	Customer       string `json:"customer"`
	NIC            string `json:"nic"`
	CustAddr       string `json:"cust_addr"`
	Delivery       string `json:"delivery"`
	Model          string `json:"model"`
	Engine         string `json:"engine"`
	Chassis        string `json:"chassis"`
	Color          string `json:"color"`
	Price          string `json:"price"`
	Down           string `json:"down"`
	Balance        string `json:"balance"`
	FinanceCompany string `json:"finance_company"`
	FinanceAddress string `json:"finance_address"`
	Dealer         string `json:"dealer"`
	PaymentMethod  string `json:"payment_method"`
}

func toSupabaseRow(rec domain.InvoiceRecord) supabaseRow {
	key := rec.Key()
	return supabaseRow{
		InvoiceType:    string(key.Bucket),
		Year:           key.Year,
		InvoiceNo:      rec.InvoiceNo,
		Kind:           string(rec.Kind),
		Date:           rec.DateString(),
		Customer:       rec.CustomerName,
		NIC:            rec.CustomerNIC,
		CustAddr:       rec.CustomerAddress,
		Delivery:       rec.DeliveryAddress,
		Model:          rec.VehicleModel,
		Engine:         rec.EngineNo,
		Chassis:        rec.ChassisNo,
		Color:          rec.Color,
		Price:          rec.Price.StringFixed(2),
		Down:           rec.DownPayment.StringFixed(2),
		Balance:        rec.Balance.StringFixed(2),
		FinanceCompany: rec.FinanceCompany,
		FinanceAddress: rec.FinanceAddress,
		Dealer:         rec.DealerName,
		PaymentMethod:  rec.PaymentMethod,
	}
}
