package pdf

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

// Line is one label/value pair of a section.
type Line struct {
	Label    string
	Value    string
	Emphasis bool
}

type Section struct {
	Title string
	Lines []Line
}

// Layout is the renderer-independent content of a document. It is built
// without I/O so every label rule can be checked directly.
type Layout struct {
	Kind           domain.InvoiceKind
	Title          string
	DealerName     string
	DealerAddress  string
	AuthorizedLine string
	LogoPath       string
	BrandLogoPath  string

	NumberLabel string
	InvoiceNo   string
	Date        string

	Manufacturer []string
	Recipient    []string

	Sections   []Section
	Notes      []string
	Signatures []string
	Closing    string
	Footer     []string

	GeneratedAt string
}

// BuildLayout checks rec against the derivation rules of kind and lays
// out its content.
func BuildLayout(kind domain.InvoiceKind, rec domain.InvoiceRecord, profile config.DealerProfile, generatedAt time.Time) (Layout, error) {
	if rec.Kind != kind {
		return Layout{}, domain.RenderError(errors.Newf("record kind %s does not match %s", rec.Kind, kind), "build layout")
	}
	if err := domain.CheckDerivation(rec); err != nil {
		return Layout{}, domain.RenderError(err, "build layout")
	}

	dealer := rec.DealerName
	if dealer == "" {
		dealer = profile.Name
	}
	name, address := splitDealer(dealer)
	if address == "" {
		address = profile.Address
	}

	l := Layout{
		Kind:           kind,
		DealerName:     name,
		DealerAddress:  address,
		AuthorizedLine: profile.AuthorizedLine,
		LogoPath:       profile.LogoPath,
		InvoiceNo:      rec.InvoiceNo,
		Date:           rec.DateString(),
		GeneratedAt:    "Generated: " + generatedAt.Format("2006-01-02 15:04"),
	}

	switch kind {
	case domain.KindSalesCash, domain.KindSalesLeasing:
		salesLayout(&l, rec, profile)
	case domain.KindProforma:
		proformaLayout(&l, rec, profile)
	case domain.KindAdvance:
		receiptLayout(&l, rec, profile)
	default:
		return Layout{}, domain.RenderError(errors.Newf("unsupported kind %s", kind), "build layout")
	}
	return l, nil
}

// Section returns the section with title, if present.
func (l Layout) Section(title string) (Section, bool) {
	for _, s := range l.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return Section{}, false
}

// Value returns the value printed next to label in the section.
func (s Section) Value(label string) (string, bool) {
	for _, line := range s.Lines {
		if line.Label == label {
			return line.Value, true
		}
	}
	return "", false
}

func customerSection(rec domain.InvoiceRecord) Section {
	return Section{
		Title: "Customer",
		Lines: []Line{
			{Label: "Customer Name", Value: rec.CustomerName, Emphasis: true},
			{Label: "Address", Value: rec.CustomerAddress},
			{Label: "NIC", Value: rec.CustomerNIC},
		},
	}
}

func vehicleLines(rec domain.InvoiceRecord) []Line {
	return []Line{
		{Label: "Model", Value: rec.VehicleModel},
		{Label: "Engine No", Value: rec.EngineNo},
		{Label: "Chassis No", Value: rec.ChassisNo},
		{Label: "Color", Value: rec.Color},
	}
}

func balanceLine(rec domain.InvoiceRecord) (Line, bool) {
	caption, shown := domain.BalanceLine(rec.Kind, rec.Balance)
	if !shown {
		return Line{}, false
	}
	return Line{Label: caption, Value: domain.FormatAmount(rec.Balance), Emphasis: true}, true
}

func splitDealer(dealer string) (string, string) {
	name, rest, _ := strings.Cut(dealer, ",")
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Dealer"
	}
	return name, strings.TrimSpace(rest)
}
