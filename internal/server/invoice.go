package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/issuance"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	"github.com/smallbiznis/invoicedesk/pkg/db/pagination"
)

const (
	headerInvoiceNo      = "X-Invoice-No"
	headerInvoiceWarning = "X-Invoice-Warning"
	headerInvoiceSource  = "X-Invoice-Source"
)

// IssueInvoice numbers, renders and records one document and streams the PDF back.
func (s *Server) IssueInvoice(c *gin.Context) {
	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req issuance.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Kind = kind

	res, err := s.issuance.Issue(c.Request.Context(), req)
	if res.Record.InvoiceNo != "" {
		c.Header(headerInvoiceNo, res.Record.InvoiceNo)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if len(res.Warnings) > 0 {
		c.Header(headerInvoiceWarning, strings.Join(res.Warnings, "; "))
	}
	c.Header(headerInvoiceSource, string(res.Source))
	c.Header("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	c.Data(http.StatusOK, res.ContentType, res.Document.Bytes)
}

// ExportInvoices downloads the ledger as CSV.
func (s *Server) ExportInvoices(c *gin.Context) {
	data, err := s.ledger.Export(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := ledger.ExportFilename(s.clock.Now())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// ListInvoices returns ledger rows as JSON objects keyed by column, in
// ledger order. ?bucket= narrows the list to one number series.
func (s *Server) ListInvoices(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var bucket domain.Bucket
	if raw := strings.TrimSpace(c.Query("bucket")); raw != "" {
		parsed, err := domain.ParseBucket(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		bucket = parsed
	}

	entries, err := s.ledger.Rows(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		if bucket != "" && entry.Get("invoice_type") != string(bucket) {
			continue
		}
		item := make(map[string]string, len(ledger.Header))
		for _, column := range ledger.Header {
			item[column] = entry.Get(column)
		}
		data = append(data, item)
	}

	items, pageInfo, err := pagination.Page(data, page)
	if err != nil {
		AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": pageInfo})
}

// GetSequence reports the last number consumed for a bucket and year.
func (s *Server) GetSequence(c *gin.Context) {
	bucket, err := domain.ParseBucket(c.Param("bucket"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	year, err := parseYear(c.Param("year"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	last, err := s.allocator.Peek(c.Request.Context(), bucket, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"bucket":  string(bucket),
		"year":    year,
		"last_no": last,
	}})
}
