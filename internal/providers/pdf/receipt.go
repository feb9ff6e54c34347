package pdf

import (
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

const advanceRemarks = "This is an advance payment receipt for the reservation of the above vehicle. " +
	"The balance payment should be made as per the agreement."

func receiptLayout(l *Layout, rec domain.InvoiceRecord, profile config.DealerProfile) {
	l.Title = "ADVANCE PAYMENT RECEIPT"
	l.NumberLabel = "Receipt No"

	method := rec.PaymentMethod
	if method == "" {
		method = "N/A"
	}
	payment := []Line{
		{Label: "Total Vehicle Price", Value: domain.FormatAmount(rec.Price), Emphasis: true},
		{Label: "Advance Payment Received", Value: domain.FormatAmount(rec.DownPayment), Emphasis: true},
		{Label: "Payment Method", Value: method},
	}
	if line, ok := balanceLine(rec); ok {
		payment = append(payment, line)
	}

	l.Sections = []Section{
		customerSection(rec),
		{Title: "Vehicle Details", Lines: vehicleLines(rec)},
		{Title: "Payment Details", Lines: payment},
	}
	l.Notes = []string{"Remarks: " + advanceRemarks}
	l.Signatures = []string{"Customer Signature", "Authorized Signature & Stamp"}
	l.Footer = []string{profile.FooterContact}
}
