package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Connection {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "store", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func date(s string) time.Time {
	d, err := time.Parse(beancount.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleEntries() []beancount.Directive {
	return []beancount.Directive{
		&beancount.Open{Date: date("2024-01-01"), Account: "Assets:Broker", Currencies: []string{"ACME", "USD"}},
		&beancount.Open{Date: date("2024-01-01"), Account: "Expenses:Food", Meta: map[string]string{"category": "daily"}},
		&beancount.Transaction{
			Date:      date("2024-01-05"),
			Flag:      "*",
			Payee:     "Cafe",
			Narration: "Lunch",
			Tags:      []string{"work"},
			Links:     []string{"receipt-1"},
			Meta:      map[string]string{"source": "import"},
			Postings: []beancount.Posting{
				{Account: "Expenses:Food", Units: beancount.NewAmount("12.50", "USD"), Meta: map[string]string{"item": "soup"}},
				{Flag: "!", Account: "Assets:Broker", Units: beancount.NewAmount("-12.50", "USD")},
			},
		},
		&beancount.Transaction{
			Date:      date("2024-02-01"),
			Flag:      "*",
			Narration: "Buy",
			Postings: []beancount.Posting{
				{
					Account: "Assets:Broker",
					Units:   beancount.NewAmount("10", "ACME"),
					Cost: &beancount.Cost{
						Number:   beancount.NewAmount("150", "USD").Number,
						Currency: "USD",
						Date:     date("2024-02-01"),
						Label:    "lot-1",
					},
					Price: &beancount.Amount{Number: beancount.NewAmount("151.25", "USD").Number, Currency: "USD"},
				},
				{Account: "Assets:Broker", Units: beancount.NewAmount("-1500", "USD")},
			},
		},
		&beancount.Note{Date: date("2024-03-01"), Account: "Assets:Broker", Comment: "Statement checked"},
		&beancount.Close{Date: date("2024-12-31"), Account: "Expenses:Food"},
	}
}

func formatAll(entries []beancount.Directive) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = beancount.FormatEntry(e)
	}
	return out
}

func TestLedgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))
	entries := sampleEntries()

	require.NoError(t, store.ReplaceEntries(ctx, entries))

	loaded, err := store.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, len(entries))
	assert.Equal(t, formatAll(entries), formatAll(loaded))

	open := loaded[0].(*beancount.Open)
	assert.Equal(t, []string{"ACME", "USD"}, open.Currencies)
	assert.Nil(t, loaded[1].(*beancount.Open).Currencies)

	lunch := loaded[2].(*beancount.Transaction)
	assert.Equal(t, "Cafe", lunch.Payee)
	assert.Equal(t, []string{"work"}, lunch.Tags)
	assert.Equal(t, []string{"receipt-1"}, lunch.Links)
	assert.Equal(t, map[string]string{"source": "import"}, lunch.Meta)
	require.Len(t, lunch.Postings, 2)
	assert.Equal(t, "12.5", lunch.Postings[0].Units.Number.String())
	assert.Equal(t, map[string]string{"item": "soup"}, lunch.Postings[0].Meta)
	assert.Equal(t, "!", lunch.Postings[1].Flag)

	buy := loaded[3].(*beancount.Transaction)
	require.Len(t, buy.Postings, 2)
	cost := buy.Postings[0].Cost
	require.NotNil(t, cost)
	assert.Equal(t, "150", cost.Number.String())
	assert.Equal(t, "USD", cost.Currency)
	assert.Equal(t, "2024-02-01", cost.Date.Format(beancount.DateLayout))
	assert.Equal(t, "lot-1", cost.Label)
	require.NotNil(t, buy.Postings[0].Price)
	assert.Equal(t, "151.25", buy.Postings[0].Price.Number.String())
	assert.Nil(t, buy.Postings[1].Cost)
	assert.Nil(t, buy.Postings[1].Price)

	note := loaded[4].(*beancount.Note)
	assert.Equal(t, "Statement checked", note.Comment)
}

func TestLedgerStoreReplace(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	require.NoError(t, store.ReplaceEntries(ctx, sampleEntries()))
	require.NoError(t, store.ReplaceEntries(ctx, sampleEntries()))

	entries, postings, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, entries)
	assert.Equal(t, 4, postings)

	require.NoError(t, store.ReplaceEntries(ctx, sampleEntries()[:2]))
	entries, postings, err = store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, entries)
	assert.Equal(t, 0, postings)
}

func TestLedgerStoreEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	loaded, err := store.LoadEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	entries, postings, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, entries)
	assert.Zero(t, postings)
}

func TestLedgerStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewLedgerStore(openTestDB(t))
	assert.Error(t, store.ReplaceEntries(ctx, sampleEntries()))
}
