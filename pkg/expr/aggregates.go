package expr

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
)

type aggregateFactory func(args []query.Expression) (query.Aggregate, error)

var aggregates = map[string]aggregateFactory{
	"count": func(args []query.Expression) (query.Aggregate, error) {
		if len(args) > 1 {
			return nil, fmt.Errorf("count takes at most one argument")
		}
		var arg query.Expression
		if len(args) == 1 {
			arg = args[0]
		}
		return &Count{slot: slot{name: "count", arg: arg}}, nil
	},
	"sum":   unary("sum", func(s slot) query.Aggregate { return &Sum{slot: s} }),
	"first": unary("first", func(s slot) query.Aggregate { return &First{slot: s} }),
	"last":  unary("last", func(s slot) query.Aggregate { return &Last{slot: s} }),
	"min":   unary("min", func(s slot) query.Aggregate { return &Extremum{slot: s, want: -1} }),
	"max":   unary("max", func(s slot) query.Aggregate { return &Extremum{slot: s, want: 1} }),
	"avg":   unary("avg", func(s slot) query.Aggregate { return &Avg{slot: s} }),
}

func unary(name string, build func(slot) query.Aggregate) aggregateFactory {
	return func(args []query.Expression) (query.Aggregate, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes exactly one argument", name)
		}
		return build(slot{name: name, arg: args[0]}), nil
	}
}

// IsAggregateFunction reports whether name is an aggregate function.
func IsAggregateFunction(name string) bool {
	_, ok := aggregates[name]
	return ok
}

// AggregateNames returns the names of the aggregate functions, sorted.
func AggregateNames() []string {
	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewAggregate builds a call to an aggregate function. Aggregates may not be
// nested inside the arguments of another aggregate.
func NewAggregate(name string, args ...query.Expression) (query.Aggregate, error) {
	factory, ok := aggregates[name]
	if !ok {
		return nil, fmt.Errorf("unknown aggregate function %q", name)
	}
	for _, arg := range args {
		if query.IsAggregate(arg) {
			return nil, fmt.Errorf("aggregate %q has a nested aggregate argument", name)
		}
	}
	return factory(args)
}

// slot is the state shared by all aggregates: the handle of their store slot
// and their argument.
type slot struct {
	name   string
	arg    query.Expression
	handle int
}

func (s *slot) Allocate(a *query.Allocator) {
	s.handle = a.Allocate()
}

func (s *slot) Children() []query.Expression {
	if s.arg == nil {
		return nil
	}
	return []query.Expression{s.arg}
}

func (s *slot) Evaluate(*query.Context) (any, error) {
	return nil, fmt.Errorf("aggregate %s evaluated outside of a group", s.name)
}

func (s *slot) argument(ctx *query.Context) (any, error) {
	return s.arg.Evaluate(ctx)
}

// Count counts postings, or postings where its argument is not nil.
type Count struct {
	slot
}

func (c *Count) Type() query.DataType { return query.TypeInt }

func (c *Count) Initialize(store query.Store) {
	store[c.handle] = 0
}

func (c *Count) Update(store query.Store, ctx *query.Context) error {
	if c.arg != nil {
		value, err := c.argument(ctx)
		if err != nil {
			return err
		}
		if value == nil {
			return nil
		}
	}
	store[c.handle] = store[c.handle].(int) + 1
	return nil
}

func (c *Count) Finalize(store query.Store) (any, error) {
	return store[c.handle], nil
}

// Sum adds numbers into a decimal, or amounts and inventories into an
// inventory. Nil values are skipped.
type Sum struct {
	slot
}

func (s *Sum) Type() query.DataType {
	switch s.arg.Type() {
	case query.TypeAmount, query.TypePosition, query.TypeInventory:
		return query.TypeInventory
	}
	return query.TypeDecimal
}

func (s *Sum) Initialize(store query.Store) {
	if s.Type() == query.TypeInventory {
		store[s.handle] = beancount.Inventory{}
	} else {
		store[s.handle] = decimal.Zero
	}
}

func (s *Sum) Update(store query.Store, ctx *query.Context) error {
	value, err := s.argument(ctx)
	if err != nil || value == nil {
		return err
	}

	switch acc := store[s.handle].(type) {
	case beancount.Inventory:
		switch v := value.(type) {
		case beancount.Amount:
			acc.Add(v)
		case beancount.Inventory:
			for _, a := range v.Amounts() {
				acc.Add(a)
			}
		default:
			return fmt.Errorf("sum: cannot add %T to an inventory", value)
		}
	case decimal.Decimal:
		d, err := requireDecimal(value)
		if err != nil {
			return fmt.Errorf("sum: %w", err)
		}
		store[s.handle] = acc.Add(d)
	}
	return nil
}

func (s *Sum) Finalize(store query.Store) (any, error) {
	return store[s.handle], nil
}

// valueState remembers one value and whether it has been set.
type valueState struct {
	set   bool
	value any
}

// First keeps the value of the first posting of the group.
type First struct {
	slot
}

func (f *First) Type() query.DataType { return f.arg.Type() }

func (f *First) Initialize(store query.Store) {
	store[f.handle] = &valueState{}
}

func (f *First) Update(store query.Store, ctx *query.Context) error {
	state := store[f.handle].(*valueState)
	if state.set {
		return nil
	}
	value, err := f.argument(ctx)
	if err != nil {
		return err
	}
	state.set, state.value = true, value
	return nil
}

func (f *First) Finalize(store query.Store) (any, error) {
	return store[f.handle].(*valueState).value, nil
}

// Last keeps the value of the last posting of the group.
type Last struct {
	slot
}

func (l *Last) Type() query.DataType { return l.arg.Type() }

func (l *Last) Initialize(store query.Store) {
	store[l.handle] = &valueState{}
}

func (l *Last) Update(store query.Store, ctx *query.Context) error {
	value, err := l.argument(ctx)
	if err != nil {
		return err
	}
	state := store[l.handle].(*valueState)
	state.set, state.value = true, value
	return nil
}

func (l *Last) Finalize(store query.Store) (any, error) {
	return store[l.handle].(*valueState).value, nil
}

// Extremum keeps the smallest (min) or largest (max) non-nil value.
type Extremum struct {
	slot
	want int // -1 for min, 1 for max
}

func (e *Extremum) Type() query.DataType { return e.arg.Type() }

func (e *Extremum) Initialize(store query.Store) {
	store[e.handle] = &valueState{}
}

func (e *Extremum) Update(store query.Store, ctx *query.Context) error {
	value, err := e.argument(ctx)
	if err != nil || value == nil {
		return err
	}
	state := store[e.handle].(*valueState)
	if !state.set {
		state.set, state.value = true, value
		return nil
	}
	c, err := query.CompareValues(value, state.value)
	if err != nil {
		return fmt.Errorf("%s: cannot compare %T and %T", e.name, value, state.value)
	}
	if c == e.want {
		state.value = value
	}
	return nil
}

func (e *Extremum) Finalize(store query.Store) (any, error) {
	return store[e.handle].(*valueState).value, nil
}

// avgState accumulates a running sum and count.
type avgState struct {
	sum   decimal.Decimal
	count int64
}

// Avg averages non-nil numbers. A group without numbers averages to nil.
type Avg struct {
	slot
}

func (a *Avg) Type() query.DataType { return query.TypeDecimal }

func (a *Avg) Initialize(store query.Store) {
	store[a.handle] = &avgState{}
}

func (a *Avg) Update(store query.Store, ctx *query.Context) error {
	value, err := a.argument(ctx)
	if err != nil || value == nil {
		return err
	}
	d, err := requireDecimal(value)
	if err != nil {
		return fmt.Errorf("avg: %w", err)
	}
	state := store[a.handle].(*avgState)
	state.sum = state.sum.Add(d)
	state.count++
	return nil
}

func (a *Avg) Finalize(store query.Store) (any, error) {
	state := store[a.handle].(*avgState)
	if state.count == 0 {
		return nil, nil
	}
	return state.sum.Div(decimal.NewFromInt(state.count)), nil
}
