package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Draft is the raw input collected by a channel before numbering.
type Draft struct {
	Kind            InvoiceKind
	IssuedAt        time.Time
	CustomerName    string
	CustomerNIC     string
	CustomerAddress string
	DeliveryAddress string
	VehicleModel    string
	EngineNo        string
	ChassisNo       string
	Color           string
	Price           decimal.Decimal
	DownPayment     decimal.Decimal
	FinanceCompany  string
	FinanceAddress  string
	DealerName      string
	PaymentMethod   string
}

// Validate rejects drafts that must never consume a number.
func (d Draft) Validate() error {
	if _, err := ParseKind(string(d.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(d.CustomerName) == "" {
		return NewValidationError("customer_name", "required", "customer name is required")
	}
	if !d.Price.IsPositive() {
		return NewValidationError("price", "must_be_positive", "price must be greater than zero")
	}
	if d.DownPayment.IsNegative() {
		return NewValidationError("down_payment", "must_not_be_negative", "down payment must not be negative")
	}
	return nil
}

// Derive applies the per-kind financial rules and returns an unnumbered record.
func Derive(d Draft) (InvoiceRecord, error) {
	if err := d.Validate(); err != nil {
		return InvoiceRecord{}, err
	}

	rec := InvoiceRecord{
		Kind:            d.Kind,
		IssuedAt:        d.IssuedAt,
		CustomerName:    strings.TrimSpace(d.CustomerName),
		CustomerNIC:     strings.TrimSpace(d.CustomerNIC),
		CustomerAddress: strings.TrimSpace(d.CustomerAddress),
		VehicleModel:    strings.TrimSpace(d.VehicleModel),
		EngineNo:        strings.TrimSpace(d.EngineNo),
		ChassisNo:       strings.TrimSpace(d.ChassisNo),
		Color:           strings.TrimSpace(d.Color),
		Price:           d.Price,
		DownPayment:     d.DownPayment,
		FinanceCompany:  strings.TrimSpace(d.FinanceCompany),
		FinanceAddress:  strings.TrimSpace(d.FinanceAddress),
		DealerName:      strings.TrimSpace(d.DealerName),
	}

	switch d.Kind {
	case KindSalesCash:
		rec.DownPayment = d.Price
		rec.Balance = decimal.Zero
	default:
		rec.Balance = floorZero(d.Price.Sub(d.DownPayment))
	}
	if ShowsDelivery(d.Kind) {
		rec.DeliveryAddress = strings.TrimSpace(d.DeliveryAddress)
	}
	if d.Kind == KindAdvance {
		rec.PaymentMethod = strings.TrimSpace(d.PaymentMethod)
	}
	return rec, nil
}

// WithNumber returns a copy of the record carrying the allocated number.
func (r InvoiceRecord) WithNumber(invoiceNo string) InvoiceRecord {
	r.InvoiceNo = invoiceNo
	return r
}

// CheckDerivation re-validates a finished record against the derivation table.
func CheckDerivation(r InvoiceRecord) error {
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(r.InvoiceNo) == "" {
		return errors.New("record has no invoice number")
	}
	if !r.Price.IsPositive() {
		return errors.Newf("price %s is not positive", r.Price)
	}

	wantDown := r.DownPayment
	wantBalance := floorZero(r.Price.Sub(r.DownPayment))
	if r.Kind == KindSalesCash {
		wantDown = r.Price
		wantBalance = decimal.Zero
	}
	if !r.DownPayment.Equal(wantDown) {
		return errors.Newf("down payment %s does not match %s rule", r.DownPayment, r.Kind)
	}
	if !r.Balance.Equal(wantBalance) {
		return errors.Newf("balance %s does not match %s rule, want %s", r.Balance, r.Kind, wantBalance)
	}
	if !ShowsDelivery(r.Kind) && r.DeliveryAddress != "" {
		return errors.Newf("%s must not carry a delivery address", r.Kind)
	}
	return nil
}

// ShowsDelivery reports whether the kind carries a delivery address.
func ShowsDelivery(k InvoiceKind) bool {
	return k == KindSalesLeasing || k == KindProforma
}

// ShowsFinance reports whether the kind prints the finance company block.
func ShowsFinance(k InvoiceKind) bool {
	return k == KindProforma
}

// BalanceLine returns the caption of the balance line and whether it is printed.
func BalanceLine(k InvoiceKind, balance decimal.Decimal) (string, bool) {
	if k == KindProforma {
		return "", false
	}
	caption := "Balance"
	if k == KindSalesLeasing {
		caption = "Leasing Amount"
	}
	return caption, balance.IsPositive()
}

// FormatAmount renders money the way the documents print it, e.g. "Rs. 150,000.00".
func FormatAmount(v decimal.Decimal) string {
	return "Rs. " + GroupThousands(v)
}

// GroupThousands formats v with two decimals and comma grouping.
func GroupThousands(v decimal.Decimal) string {
	s := v.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s%s.%s", sign, b.String(), frac)
}

func floorZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
