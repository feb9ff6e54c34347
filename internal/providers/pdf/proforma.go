package pdf

import (
	"strconv"

	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

func proformaLayout(l *Layout, rec domain.InvoiceRecord, profile config.DealerProfile) {
	l.Title = "PROFORMA INVOICE"
	l.NumberLabel = "Proforma Invoice No."
	l.BrandLogoPath = profile.BrandLogoPath
	l.Manufacturer = profile.Vehicle.Manufacturer

	if domain.ShowsFinance(rec.Kind) {
		l.Recipient = []string{
			"TO : " + profile.Proforma.Recipient,
			rec.FinanceCompany,
			rec.FinanceAddress,
		}
	}
	l.Recipient = append(l.Recipient,
		"Customer: "+rec.CustomerName,
		"Address: "+rec.CustomerAddress,
		"NIC: "+rec.CustomerNIC,
	)

	description := []Line{
		{Label: "SELLING PRICE", Value: domain.GroupThousands(rec.Price), Emphasis: true},
		{Label: "LEASE AMOUNT", Value: domain.GroupThousands(rec.DownPayment), Emphasis: true},
		{Label: "MAKE", Value: profile.Vehicle.Make},
		{Label: "MODEL", Value: rec.VehicleModel},
		{Label: "COLOUR", Value: rec.Color},
		{Label: "ENGINE NO", Value: rec.EngineNo},
		{Label: "CHASSIS NO", Value: rec.ChassisNo},
	}
	l.Sections = []Section{{Title: "Description", Lines: description}}
	if rec.DeliveryAddress != "" {
		l.Sections = append(l.Sections, Section{
			Title: "Delivery Address",
			Lines: []Line{{Value: rec.DeliveryAddress}},
		})
	}

	notes := append([]string{}, profile.Proforma.Specification...)
	if profile.Proforma.Remarks != "" {
		notes = append(notes, "REMARKS: "+profile.Proforma.Remarks)
	}
	notes = append(notes, profile.Proforma.Validity, profile.Proforma.PaymentTerms, profile.Proforma.Delivery)
	for i, term := range profile.Proforma.Terms {
		notes = append(notes, strconv.Itoa(i+1)+". "+term)
	}
	l.Notes = notes

	l.Signatures = []string{"Authorized Signatory"}
	l.Footer = []string{l.DealerName, l.DealerAddress, profile.FooterContact}
}
