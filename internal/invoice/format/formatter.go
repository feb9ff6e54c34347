package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

// DefaultInvoiceNumberTemplate prints the bare per-year sequence, "0001".."9999",
// widening to "10000" and beyond instead of wrapping.
const DefaultInvoiceNumberTemplate = "{SEQ4}"

// FormatInvoiceNumber formats a human-readable invoice number
// based on a template, invoice issue time, and monotonic sequence.
//
// Padded tokens set a minimum width only. A sequence longer than the
// width is printed in full so numbers never collide.
func FormatInvoiceNumber(
	template string,
	issuedAt time.Time,
	seq int64,
) (string, error) {

	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}

	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template

	// Date tokens
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))

	// Simple sequence
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	// Padded sequence
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}

		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}

		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}

	return out, nil
}

// SequenceNumber formats seq with the default template.
func SequenceNumber(seq int64) (string, error) {
	return FormatInvoiceNumber(DefaultInvoiceNumberTemplate, time.Time{}, seq)
}

// ParseSequenceNumber reads back a number produced by SequenceNumber.
func ParseSequenceNumber(invoiceNo string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(invoiceNo), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid invoice number %q: %w", invoiceNo, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid invoice number %q", invoiceNo)
	}
	return n, nil
}
