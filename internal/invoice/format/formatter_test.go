package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issuedAt := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		template string
		seq      int64
		want     string
	}{
		{name: "default", template: DefaultInvoiceNumberTemplate, seq: 7, want: "0007"},
		{name: "max four digits", template: DefaultInvoiceNumberTemplate, seq: 9999, want: "9999"},
		{name: "widens", template: DefaultInvoiceNumberTemplate, seq: 10000, want: "10000"},
		{name: "date tokens", template: "INV-{YYYY}{MM}{DD}-{SEQ6}", seq: 42, want: "INV-20260209-000042"},
		{name: "short year", template: "{YY}/{SEQ}", seq: 3, want: "26/3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatInvoiceNumber(tc.template, issuedAt, tc.seq)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatInvoiceNumber_Rejects(t *testing.T) {
	_, err := FormatInvoiceNumber("", time.Now(), 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, time.Now(), 0)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("{SEQ4}-{BRANCH}", time.Now(), 1)
	assert.Error(t, err)
}

func TestSequenceNumberRoundTrip(t *testing.T) {
	no, err := SequenceNumber(12)
	require.NoError(t, err)
	assert.Equal(t, "0012", no)

	n, err := ParseSequenceNumber(no)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	_, err = ParseSequenceNumber("abc")
	assert.Error(t, err)
}
