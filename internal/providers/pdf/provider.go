package pdf

import (
	"context"

	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

const ContentTypePDF = "application/pdf"

// Renderer turns a numbered record into a document.
type Renderer interface {
	Render(ctx context.Context, kind domain.InvoiceKind, rec domain.InvoiceRecord) (Document, error)
}

// Document is a rendered byte stream. Status is degraded when optional
// content such as logos could not be included or a fallback path was used.
type Document struct {
	Bytes       []byte
	ContentType string
	Status      domain.Status
}
