package beancount

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTransaction(t *testing.T) {
	txn := &Transaction{
		Date:      date("2024-01-05"),
		Flag:      "*",
		Payee:     "Supermarket",
		Narration: "Groceries",
		Tags:      []string{"food"},
		Meta:      map[string]string{"source": "import"},
		Postings: []Posting{
			{Account: "Expenses:Food", Units: NewAmount("1500", "JPY")},
			{Account: "Assets:Bank:Checking", Units: NewAmount("-1500", "JPY")},
		},
	}

	got := FormatTransaction(txn)
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `2024-01-05 * "Supermarket" "Groceries" #food`, lines[0])
	assert.Equal(t, `  source: "import"`, lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "  Expenses:Food "))
	assert.True(t, strings.HasSuffix(lines[2], " 1500 JPY"))
	// Amounts are right-aligned on the same column.
	assert.Equal(t, strings.Index(lines[2], " JPY"), strings.Index(lines[3], " JPY"))
}

func TestFormatEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    Directive
		expected string
	}{
		{
			name:     "open with currencies",
			entry:    &Open{Date: date("2024-01-01"), Account: "Assets:Cash", Currencies: []string{"JPY", "USD"}},
			expected: "2024-01-01 open Assets:Cash JPY,USD\n",
		},
		{
			name:     "close",
			entry:    &Close{Date: date("2024-12-31"), Account: "Assets:Cash"},
			expected: "2024-12-31 close Assets:Cash\n",
		},
		{
			name:     "note",
			entry:    &Note{Date: date("2024-03-01"), Account: "Assets:Cash", Comment: "Counted"},
			expected: "2024-03-01 note Assets:Cash \"Counted\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatEntry(tt.entry))
		})
	}
}

func TestPrintEntriesRoundTrip(t *testing.T) {
	entries := []Directive{
		&Open{Date: date("2024-01-01"), Account: "Assets:Broker", Currencies: []string{"ACME"}},
		&Transaction{
			Date:      date("2024-02-01"),
			Flag:      "!",
			Narration: "Buy",
			Links:     []string{"order-7"},
			Postings: []Posting{
				{
					Account: "Assets:Broker",
					Units:   NewAmount("10", "ACME"),
					Cost:    &Cost{Number: NewAmount("150", "USD").Number, Currency: "USD", Date: date("2024-02-01"), Label: "lot"},
					Meta:    map[string]string{"lot": "a"},
				},
				{Flag: "!", Account: "Assets:Cash", Units: NewAmount("-1500", "USD")},
			},
		},
		&Transaction{
			Date:      date("2024-02-02"),
			Flag:      "*",
			Narration: "FX",
			Postings: []Posting{
				{Account: "Assets:USD", Units: NewAmount("100", "USD"), Price: &Amount{Number: NewAmount("150", "JPY").Number, Currency: "JPY"}},
				{Account: "Assets:JPY", Units: NewAmount("-15000", "JPY")},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintEntries(&buf, entries))

	parsed, err := Parse(&buf, "roundtrip.beancount")
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	assert.Equal(t, FormatEntry(entries[0]), FormatEntry(parsed[0]))
	assert.Equal(t, FormatEntry(entries[1]), FormatEntry(parsed[1]))
	assert.Equal(t, FormatEntry(entries[2]), FormatEntry(parsed[2]))
}
