package beancount

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParse(t *testing.T) {
	input := `; Beancount file for 2024-01
option "title" "Household"

2024-01-01 open Assets:Bank:Checking JPY,USD
2024-01-01 open Expenses:Food

2024-01-05 * "Supermarket" "Groceries" #food ^receipt-1
  source: "import"
  Expenses:Food                1500 JPY
    category: "daily"
  Assets:Bank:Checking        -1500 JPY

2024-01-06 ! "Pending transfer"
  Assets:Bank:Checking
  Income:Salary              -300000 JPY

2024-01-07 balance Assets:Bank:Checking 298500 JPY
2024-01-08 note Assets:Bank:Checking "Called the bank"
2024-12-31 close Expenses:Food
`
	entries, err := Parse(strings.NewReader(input), "ledger.beancount")
	require.NoError(t, err)
	require.Len(t, entries, 6)

	open, ok := entries[0].(*Open)
	require.True(t, ok)
	assert.Equal(t, "Assets:Bank:Checking", open.Account)
	assert.Equal(t, []string{"JPY", "USD"}, open.Currencies)

	txn, ok := entries[2].(*Transaction)
	require.True(t, ok)
	assert.Equal(t, date("2024-01-05"), txn.Date)
	assert.Equal(t, "*", txn.Flag)
	assert.Equal(t, "Supermarket", txn.Payee)
	assert.Equal(t, "Groceries", txn.Narration)
	assert.Equal(t, []string{"food"}, txn.Tags)
	assert.Equal(t, []string{"receipt-1"}, txn.Links)
	assert.Equal(t, map[string]string{"source": "import"}, txn.Meta)
	require.Len(t, txn.Postings, 2)
	assert.Equal(t, "Expenses:Food", txn.Postings[0].Account)
	assert.True(t, txn.Postings[0].Units.Number.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, map[string]string{"category": "daily"}, txn.Postings[0].Meta)

	pending, ok := entries[3].(*Transaction)
	require.True(t, ok)
	assert.Equal(t, "!", pending.Flag)
	assert.Empty(t, pending.Payee)
	assert.Equal(t, "Pending transfer", pending.Narration)
	require.Len(t, pending.Postings, 2)
	assert.True(t, pending.Postings[0].Units.Number.Equal(decimal.NewFromInt(300000)),
		"inferred amount: %s", pending.Postings[0].Units)
	assert.Equal(t, "JPY", pending.Postings[0].Units.Currency)

	note, ok := entries[4].(*Note)
	require.True(t, ok)
	assert.Equal(t, "Called the bank", note.Comment)

	closeEntry, ok := entries[5].(*Close)
	require.True(t, ok)
	assert.Equal(t, "Expenses:Food", closeEntry.Account)
}

func TestParseCostAndPrice(t *testing.T) {
	input := `2024-02-01 * "Buy shares"
  Assets:Broker:ACME      10 ACME {150.00 USD, 2024-02-01, "lot-1"}
  Assets:Broker:Cash

2024-02-02 * "Exchange"
  Assets:Bank:USD         100 USD @@ 15000 JPY
  Assets:Bank:JPY      -15000 JPY
`
	entries, err := Parse(strings.NewReader(input), "broker.beancount")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	buy := entries[0].(*Transaction)
	require.Len(t, buy.Postings, 2)
	cost := buy.Postings[0].Cost
	require.NotNil(t, cost)
	assert.True(t, cost.Number.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, "USD", cost.Currency)
	assert.Equal(t, date("2024-02-01"), cost.Date)
	assert.Equal(t, "lot-1", cost.Label)
	assert.True(t, buy.Postings[1].Units.Number.Equal(decimal.NewFromInt(-1500)))
	assert.Equal(t, "USD", buy.Postings[1].Units.Currency)

	exchange := entries[1].(*Transaction)
	price := exchange.Postings[0].Price
	require.NotNil(t, price)
	assert.True(t, price.Number.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "JPY", price.Currency)
	assert.True(t, exchange.Postings[0].Weight().Number.Equal(decimal.NewFromInt(15000)))
}

func TestParseInferMultipleCurrencies(t *testing.T) {
	input := `2024-03-01 * "Mixed"
  Expenses:Travel     100 USD
  Expenses:Food      2000 JPY
  Assets:Cash
`
	entries, err := Parse(strings.NewReader(input), "mixed.beancount")
	require.NoError(t, err)
	txn := entries[0].(*Transaction)
	require.Len(t, txn.Postings, 4)
	assert.Equal(t, "Assets:Cash", txn.Postings[2].Account)
	assert.Equal(t, "JPY", txn.Postings[2].Units.Currency)
	assert.True(t, txn.Postings[2].Units.Number.Equal(decimal.NewFromInt(-2000)))
	assert.Equal(t, "USD", txn.Postings[3].Units.Currency)
	assert.True(t, txn.Postings[3].Units.Number.Equal(decimal.NewFromInt(-100)))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{
			name:  "two missing amounts",
			input: "2024-01-01 * \"x\"\n  Assets:A\n  Assets:B\n",
			line:  1,
		},
		{
			name:  "balanced with missing amount",
			input: "2024-01-01 * \"x\"\n  Assets:A  1 JPY\n  Assets:B  -1 JPY\n  Assets:C\n",
			line:  1,
		},
		{
			name:  "invalid number",
			input: "2024-01-01 * \"x\"\n  Assets:A  abc JPY\n",
			line:  2,
		},
		{
			name:  "invalid account",
			input: "2024-01-01 open assets\n",
			line:  1,
		},
		{
			name:  "unterminated string",
			input: "2024-01-01 * \"x\n",
			line:  1,
		},
		{
			name:  "indented line without directive",
			input: "  Assets:A  1 JPY\n",
			line:  1,
		},
		{
			name:  "unterminated cost",
			input: "2024-01-01 * \"x\"\n  Assets:A  1 ACME {10 USD\n",
			line:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), "bad.beancount")
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "got %T: %v", err, err)
			assert.Equal(t, "bad.beancount", parseErr.File)
			assert.Equal(t, tt.line, parseErr.Line)
		})
	}
}

func TestSortEntries(t *testing.T) {
	entries := []Directive{
		&Close{Date: date("2024-01-02"), Account: "Assets:A"},
		&Transaction{Date: date("2024-01-02"), Narration: "second"},
		&Note{Date: date("2024-01-01"), Account: "Assets:A"},
		&Transaction{Date: date("2024-01-02"), Narration: "third"},
		&Open{Date: date("2024-01-02"), Account: "Assets:B"},
	}
	SortEntries(entries)

	assert.Equal(t, KindNote, entries[0].Kind())
	assert.Equal(t, KindOpen, entries[1].Kind())
	assert.Equal(t, "second", entries[2].(*Transaction).Narration)
	assert.Equal(t, "third", entries[3].(*Transaction).Narration)
	assert.Equal(t, KindClose, entries[4].Kind())
}

func TestInventory(t *testing.T) {
	inv := Inventory{}
	inv.Add(NewAmount("10", "USD"))
	inv.Add(NewAmount("500", "JPY"))
	inv.Add(NewAmount("-10", "USD"))

	assert.Equal(t, []string{"JPY"}, inv.Currencies())
	assert.Equal(t, "500 JPY", inv.String())
	assert.False(t, inv.IsEmpty())

	inv.Add(NewAmount("-500", "JPY"))
	assert.True(t, inv.IsEmpty())
}
