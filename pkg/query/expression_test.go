package query

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constExpr is a leaf expression returning a fixed value.
type constExpr struct{ value any }

func (c constExpr) Type() DataType                 { return TypeObject }
func (c constExpr) Evaluate(*Context) (any, error) { return c.value, nil }
func (c constExpr) Children() []Expression         { return nil }

// countExpr counts updates in one slot.
type countExpr struct{ handle int }

func (c *countExpr) Type() DataType                 { return TypeInt }
func (c *countExpr) Evaluate(*Context) (any, error) { return nil, errors.New("not a scalar") }
func (c *countExpr) Children() []Expression         { return nil }
func (c *countExpr) Allocate(a *Allocator)          { c.handle = a.Allocate() }
func (c *countExpr) Initialize(store Store)         { store[c.handle] = 0 }
func (c *countExpr) Update(store Store, _ *Context) error {
	store[c.handle] = store[c.handle].(int) + 1
	return nil
}
func (c *countExpr) Finalize(store Store) (any, error) { return store[c.handle], nil }

// addExpr adds the integer values of its children.
type addExpr struct{ args []Expression }

func (a addExpr) Type() DataType         { return TypeInt }
func (a addExpr) Children() []Expression { return a.args }
func (a addExpr) Evaluate(ctx *Context) (any, error) {
	values := make([]any, len(a.args))
	for i, arg := range a.args {
		v, err := arg.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return a.Combine(values)
}
func (a addExpr) Combine(args []any) (any, error) {
	sum := 0
	for _, v := range args {
		sum += v.(int)
	}
	return sum, nil
}

// opaqueExpr has children but cannot recombine them.
type opaqueExpr struct{ args []Expression }

func (o opaqueExpr) Type() DataType                 { return TypeObject }
func (o opaqueExpr) Evaluate(*Context) (any, error) { return nil, nil }
func (o opaqueExpr) Children() []Expression         { return o.args }

func TestFindAggregates(t *testing.T) {
	c1, c2 := &countExpr{}, &countExpr{}
	expr := addExpr{args: []Expression{c1, addExpr{args: []Expression{constExpr{1}, c2}}}}

	found := FindAggregates(expr)
	require.Len(t, found, 2)
	assert.Same(t, c1, found[0])
	assert.Same(t, c2, found[1])

	assert.True(t, IsAggregate(expr))
	assert.False(t, IsAggregate(addExpr{args: []Expression{constExpr{1}}}))
	assert.True(t, IsAggregate(c1))
}

func TestFinalize(t *testing.T) {
	agg := &countExpr{}
	expr := addExpr{args: []Expression{agg, constExpr{10}}}

	a := NewAllocator()
	agg.Allocate(a)
	store := a.CreateStore()
	agg.Initialize(store)
	for i := 0; i < 3; i++ {
		require.NoError(t, agg.Update(store, nil))
	}

	value, err := Finalize(expr, store)
	require.NoError(t, err)
	assert.Equal(t, 13, value)

	_, err = Finalize(opaqueExpr{args: []Expression{agg}}, store)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{"nil", nil, false},
		{"true", true, true},
		{"false", false, false},
		{"zero int", 0, false},
		{"int", 3, true},
		{"zero decimal", decimal.Zero, false},
		{"decimal", decimal.RequireFromString("0.01"), true},
		{"empty string", "", false},
		{"string", "x", true},
		{"zero date", time.Time{}, false},
		{"date", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"empty set", []string{}, false},
		{"set", []string{"a"}, true},
		{"empty inventory", beancount.Inventory{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truthy(tt.value))
		})
	}
}
