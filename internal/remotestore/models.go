package remotestore

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

// InvoiceRow mirrors one ledger row in the remote invoices table.
type InvoiceRow struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceType    string          `gorm:"column:invoice_type;not null;uniqueIndex:ux_invoices_type_year_no,priority:1" json:"invoice_type"`
	Year           int             `gorm:"not null;uniqueIndex:ux_invoices_type_year_no,priority:2" json:"year"`
	InvoiceNo      string          `gorm:"column:invoice_no;not null;uniqueIndex:ux_invoices_type_year_no,priority:3" json:"invoice_no"`
	Kind           string          `gorm:"not null" json:"kind"`
	Date           string          `gorm:"not null" json:"date"`
	Customer       string          `gorm:"not null" json:"customer"`
	NIC            string          `gorm:"column:nic" json:"nic"`
	CustAddr       string          `gorm:"column:cust_addr" json:"cust_addr"`
	Delivery       string          `json:"delivery"`
	Model          string          `json:"model"`
	Engine         string          `json:"engine"`
	Chassis        string          `json:"chassis"`
	Color          string          `json:"color"`
	Price          decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"price"`
	Down           decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"down"`
	Balance        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"balance"`
	FinanceCompany string          `gorm:"column:finance_company" json:"finance_company"`
	FinanceAddress string          `gorm:"column:finance_address" json:"finance_address"`
	Dealer         string          `json:"dealer"`
	PaymentMethod  string          `gorm:"column:payment_method" json:"payment_method"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

func (InvoiceRow) TableName() string { return "invoices" }

// SequenceRow is the transactional counter behind the strict-remote policy.
type SequenceRow struct {
	InvoiceType string    `gorm:"column:invoice_type;primaryKey"`
	Year        int       `gorm:"primaryKey;autoIncrement:false"`
	CurrentVal  int64     `gorm:"column:current_val;not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (SequenceRow) TableName() string { return "invoice_sequences" }

// Models lists the tables owned by the remote store.
func Models() []any {
	return []any{&InvoiceRow{}, &SequenceRow{}}
}

func toRow(id snowflake.ID, rec domain.InvoiceRecord, now time.Time) InvoiceRow {
	key := rec.Key()
	return InvoiceRow{
		ID:             id,
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
		Price:          rec.Price,
		Down:           rec.DownPayment,
		Balance:        rec.Balance,
		FinanceCompany: rec.FinanceCompany,
		FinanceAddress: rec.FinanceAddress,
		Dealer:         rec.DealerName,
		PaymentMethod:  rec.PaymentMethod,
		CreatedAt:      now,
	}
}
