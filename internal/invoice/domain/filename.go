package domain

import (
	"regexp"
	"strings"
)

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxFilenamePart = 60

// SafeFilename trims s, replaces each run of characters outside
// [A-Za-z0-9._-] with "_" and truncates the result to 60 characters.
func SafeFilename(s string) string {
	out := unsafeFilenameRe.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(out) > maxFilenamePart {
		out = out[:maxFilenamePart]
	}
	return out
}

// DocumentFilename builds "{Bucket}_{invoice_no}_{customer}.pdf".
func DocumentFilename(r InvoiceRecord) string {
	return r.Kind.Bucket().DisplayName() + "_" + r.InvoiceNo + "_" + SafeFilename(r.CustomerName) + ".pdf"
}
