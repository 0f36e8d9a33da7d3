package expr

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runAggregate feeds one context per value through a fresh aggregate.
func runAggregate(t *testing.T, agg query.Aggregate, contexts []*query.Context) any {
	t.Helper()
	a := query.NewAllocator()
	agg.Allocate(a)
	store := a.CreateStore()
	agg.Initialize(store)
	for _, ctx := range contexts {
		require.NoError(t, agg.Update(store, ctx))
	}
	value, err := agg.Finalize(store)
	require.NoError(t, err)
	return value
}

func postingContexts(amounts ...beancount.Amount) []*query.Context {
	txn := &beancount.Transaction{Narration: "test"}
	for i, amount := range amounts {
		txn.Postings = append(txn.Postings, beancount.Posting{
			Account: "Assets:Account" + string(rune('A'+i)),
			Units:   amount,
		})
	}
	contexts := make([]*query.Context, len(txn.Postings))
	for i := range txn.Postings {
		contexts[i] = &query.Context{Entry: txn, Posting: &txn.Postings[i]}
	}
	return contexts
}

func TestAggregates(t *testing.T) {
	contexts := postingContexts(
		beancount.NewAmount("10", "USD"),
		beancount.NewAmount("5", "EUR"),
		beancount.NewAmount("-2.5", "USD"),
	)
	number, err := NewColumn("number")
	require.NoError(t, err)
	account, err := NewColumn("account")
	require.NoError(t, err)
	position, err := NewColumn("position")
	require.NoError(t, err)

	tests := []struct {
		name     string
		fn       string
		args     []query.Expression
		typ      query.DataType
		expected string
	}{
		{"count", "count", nil, query.TypeInt, "3"},
		{"count non-nil", "count", []query.Expression{NewMeta("missing")}, query.TypeInt, "0"},
		{"sum numbers", "sum", []query.Expression{number}, query.TypeDecimal, "12.5"},
		{"sum positions", "sum", []query.Expression{position}, query.TypeInventory, "5 EUR, 7.5 USD"},
		{"first", "first", []query.Expression{account}, query.TypeString, "Assets:AccountA"},
		{"last", "last", []query.Expression{account}, query.TypeString, "Assets:AccountC"},
		{"min", "min", []query.Expression{number}, query.TypeDecimal, "-2.5"},
		{"max", "max", []query.Expression{number}, query.TypeDecimal, "10"},
		{"avg", "avg", []query.Expression{number}, query.TypeDecimal, "4.1666666666666667"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, err := NewAggregate(tt.fn, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, agg.Type())

			value := runAggregate(t, agg, contexts)
			var got string
			switch v := value.(type) {
			case decimal.Decimal:
				got = v.String()
			case beancount.Inventory:
				got = v.String()
			case int:
				got = decimal.NewFromInt(int64(v)).String()
			case string:
				got = v
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAggregateEmptyGroup(t *testing.T) {
	number, err := NewColumn("number")
	require.NoError(t, err)

	avg, err := NewAggregate("avg", number)
	require.NoError(t, err)
	assert.Nil(t, runAggregate(t, avg, nil))

	first, err := NewAggregate("first", number)
	require.NoError(t, err)
	assert.Nil(t, runAggregate(t, first, nil))

	sum, err := NewAggregate("sum", number)
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(runAggregate(t, sum, nil).(decimal.Decimal)))
}

func TestAggregateSlotsAreIndependent(t *testing.T) {
	number, err := NewColumn("number")
	require.NoError(t, err)
	sum, err := NewAggregate("sum", number)
	require.NoError(t, err)
	count, err := NewAggregate("count")
	require.NoError(t, err)

	a := query.NewAllocator()
	sum.Allocate(a)
	count.Allocate(a)
	require.Equal(t, 2, a.Size())

	s1, s2 := a.CreateStore(), a.CreateStore()
	for _, store := range []query.Store{s1, s2} {
		sum.Initialize(store)
		count.Initialize(store)
	}
	for _, ctx := range postingContexts(beancount.NewAmount("4", "USD"), beancount.NewAmount("6", "USD")) {
		require.NoError(t, sum.Update(s1, ctx))
		require.NoError(t, count.Update(s1, ctx))
	}

	v1, err := sum.Finalize(s1)
	require.NoError(t, err)
	v2, err := sum.Finalize(s2)
	require.NoError(t, err)
	c1, err := count.Finalize(s1)
	require.NoError(t, err)

	assert.Equal(t, "10", v1.(decimal.Decimal).String())
	assert.Equal(t, "0", v2.(decimal.Decimal).String())
	assert.Equal(t, 2, c1)
}

func TestNewAggregateErrors(t *testing.T) {
	number, err := NewColumn("number")
	require.NoError(t, err)
	inner, err := NewAggregate("sum", number)
	require.NoError(t, err)

	_, err = NewAggregate("median", number)
	assert.Error(t, err)

	_, err = NewAggregate("sum")
	assert.Error(t, err)

	_, err = NewAggregate("count", number, number)
	assert.Error(t, err)

	_, err = NewAggregate("max", inner)
	assert.Error(t, err)

	_, err = inner.Evaluate(nil)
	assert.Error(t, err)

	assert.True(t, IsAggregateFunction("sum"))
	assert.False(t, IsAggregateFunction("abs"))
	assert.Equal(t, []string{"avg", "count", "first", "last", "max", "min", "sum"}, AggregateNames())
}
