package pdf

import (
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

func salesLayout(l *Layout, rec domain.InvoiceRecord, profile config.DealerProfile) {
	l.Title = "SALES INVOICE"
	l.NumberLabel = "Invoice No"

	vehicle := vehicleLines(rec)
	vehicle = append(vehicle,
		Line{Label: "Engine Capacity", Value: profile.Vehicle.EngineCapacity},
		Line{Label: "Manufactured Year", Value: profile.Vehicle.ManufacturedYear},
		Line{Label: "Country of Origin", Value: profile.Vehicle.Country},
	)

	priceLabel, paidLabel := "Vehicle Price", "Total Payment"
	if rec.Kind == domain.KindSalesLeasing {
		priceLabel, paidLabel = "Total Price", "Down Payment"
	}
	payment := []Line{
		{Label: priceLabel, Value: domain.FormatAmount(rec.Price), Emphasis: true},
		{Label: paidLabel, Value: domain.FormatAmount(rec.DownPayment), Emphasis: true},
	}
	if line, ok := balanceLine(rec); ok {
		payment = append(payment, line)
	}

	l.Sections = []Section{
		customerSection(rec),
		{Title: "Vehicle Details", Lines: vehicle},
		{Title: "Payment Summary", Lines: payment},
	}
	if rec.DeliveryAddress != "" {
		l.Sections = append(l.Sections, Section{
			Title: "Delivery Address",
			Lines: []Line{{Value: rec.DeliveryAddress}},
		})
	}

	l.Signatures = []string{"Customer Signature", "Authorized Signature & Stamp"}
	l.Closing = "Thank you for your business! Come again!"
	l.Footer = []string{profile.FooterContact}
}
