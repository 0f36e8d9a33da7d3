package query

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
)

// DataType is the declared result type of an expression.
type DataType string

const (
	TypeBool      DataType = "bool"
	TypeInt       DataType = "int"
	TypeDecimal   DataType = "decimal"
	TypeString    DataType = "string"
	TypeDate      DataType = "date"
	TypeAmount    DataType = "amount"
	TypePosition  DataType = "position"
	TypeInventory DataType = "inventory"
	TypeSet       DataType = "set"
	TypeObject    DataType = "object"
)

// Context is the posting an expression is evaluated against, together with
// the transaction it belongs to.
type Context struct {
	Entry   *beancount.Transaction
	Posting *beancount.Posting
}

// Expression is a compiled, side-effect free expression evaluated per posting.
type Expression interface {
	// Type returns the declared result type.
	Type() DataType
	// Evaluate computes the value of the expression for a posting. Leaf
	// expressions that do not depend on a posting accept a nil context.
	Evaluate(ctx *Context) (any, error)
	// Children returns the direct sub-expressions.
	Children() []Expression
}

// Aggregate is an expression accumulating state across postings. Each
// aggregate reserves its slots with Allocate before any store is created,
// then receives Initialize once per group, Update once per posting of the
// group, and Finalize once the scan is complete.
type Aggregate interface {
	Expression
	Allocate(a *Allocator)
	Initialize(store Store)
	Update(store Store, ctx *Context) error
	Finalize(store Store) (any, error)
}

// Combiner is a non-aggregate node whose value is a function of the values of
// its children. Implementing it lets aggregates nested below the node, as in
// sum(x) + 1, be finalized through it.
type Combiner interface {
	Expression
	Combine(args []any) (any, error)
}

// EntryExpression is evaluated against a whole directive, as in the filter of
// a FROM clause.
type EntryExpression interface {
	EvaluateEntry(entry beancount.Directive) (any, error)
}

// FindAggregates returns every aggregate reachable from expr, in depth-first
// order. The arguments of an aggregate are not searched.
func FindAggregates(expr Expression) []Aggregate {
	var aggregates []Aggregate
	var walk func(Expression)
	walk = func(e Expression) {
		if agg, ok := e.(Aggregate); ok {
			aggregates = append(aggregates, agg)
			return
		}
		for _, child := range e.Children() {
			walk(child)
		}
	}
	walk(expr)
	return aggregates
}

// IsAggregate reports whether expr contains an aggregate.
func IsAggregate(expr Expression) bool {
	return len(FindAggregates(expr)) > 0
}

// Finalize computes the value of a target expression for a finished group:
// aggregates are finalized against store, combiners recombine the finalized
// values of their children, and leaves are evaluated without a posting.
func Finalize(expr Expression, store Store) (any, error) {
	switch e := expr.(type) {
	case Aggregate:
		return e.Finalize(store)
	case Combiner:
		children := e.Children()
		args := make([]any, len(children))
		for i, child := range children {
			value, err := Finalize(child, store)
			if err != nil {
				return nil, err
			}
			args[i] = value
		}
		return e.Combine(args)
	}
	if len(expr.Children()) == 0 {
		return expr.Evaluate(nil)
	}
	return nil, fmt.Errorf("%w: %T cannot be finalized", ErrInvalidPlan, expr)
}

// Truthy reports whether a value counts as true in a predicate. Nil, false,
// zero numbers, zero dates and empty strings or collections are false.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case decimal.Decimal:
		return !v.IsZero()
	case string:
		return v != ""
	case time.Time:
		return !v.IsZero()
	case []string:
		return len(v) > 0
	case beancount.Inventory:
		return !v.IsEmpty()
	}
	return true
}
