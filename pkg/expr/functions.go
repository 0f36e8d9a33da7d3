package expr

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
)

// ErrDivisionByZero is returned by "/" when the divisor is zero.
var ErrDivisionByZero = errors.New("division by zero")

// function describes a scalar operator or function.
type function struct {
	minArgs, maxArgs int
	typ              func(args []query.Expression) query.DataType
	eval             func(args []any) (any, error)
}

func fixed(t query.DataType) func([]query.Expression) query.DataType {
	return func([]query.Expression) query.DataType { return t }
}

var functions = map[string]function{
	"=":  {2, 2, fixed(query.TypeBool), func(a []any) (any, error) { return query.EqualValues(a[0], a[1]), nil }},
	"!=": {2, 2, fixed(query.TypeBool), func(a []any) (any, error) { return !query.EqualValues(a[0], a[1]), nil }},
	"<":  {2, 2, fixed(query.TypeBool), compareWith(func(c int) bool { return c < 0 })},
	"<=": {2, 2, fixed(query.TypeBool), compareWith(func(c int) bool { return c <= 0 })},
	">":  {2, 2, fixed(query.TypeBool), compareWith(func(c int) bool { return c > 0 })},
	">=": {2, 2, fixed(query.TypeBool), compareWith(func(c int) bool { return c >= 0 })},
	"~":  {2, 2, fixed(query.TypeBool), evalMatch},

	"and": {2, -1, fixed(query.TypeBool), func(a []any) (any, error) {
		for _, v := range a {
			if !query.Truthy(v) {
				return false, nil
			}
		}
		return true, nil
	}},
	"or": {2, -1, fixed(query.TypeBool), func(a []any) (any, error) {
		for _, v := range a {
			if query.Truthy(v) {
				return true, nil
			}
		}
		return false, nil
	}},
	"not": {1, 1, fixed(query.TypeBool), func(a []any) (any, error) { return !query.Truthy(a[0]), nil }},

	"+": {2, 2, fixed(query.TypeDecimal), arithmetic(func(x, y decimal.Decimal) (decimal.Decimal, error) { return x.Add(y), nil })},
	"-": {2, 2, fixed(query.TypeDecimal), arithmetic(func(x, y decimal.Decimal) (decimal.Decimal, error) { return x.Sub(y), nil })},
	"*": {2, 2, fixed(query.TypeDecimal), arithmetic(func(x, y decimal.Decimal) (decimal.Decimal, error) { return x.Mul(y), nil })},
	"/": {2, 2, fixed(query.TypeDecimal), arithmetic(func(x, y decimal.Decimal) (decimal.Decimal, error) {
		if y.IsZero() {
			return decimal.Decimal{}, ErrDivisionByZero
		}
		return x.Div(y), nil
	})},
	"neg": {1, 1, fixed(query.TypeDecimal), func(a []any) (any, error) {
		if a[0] == nil {
			return nil, nil
		}
		if amount, ok := a[0].(beancount.Amount); ok {
			return beancount.Amount{Number: amount.Number.Neg(), Currency: amount.Currency}, nil
		}
		d, err := requireDecimal(a[0])
		if err != nil {
			return nil, err
		}
		return d.Neg(), nil
	}},

	"abs": {1, 1, func(args []query.Expression) query.DataType { return args[0].Type() }, func(a []any) (any, error) {
		switch v := a[0].(type) {
		case nil:
			return nil, nil
		case beancount.Amount:
			return beancount.Amount{Number: v.Number.Abs(), Currency: v.Currency}, nil
		}
		d, err := requireDecimal(a[0])
		if err != nil {
			return nil, err
		}
		return d.Abs(), nil
	}},
	"length": {1, 1, fixed(query.TypeInt), func(a []any) (any, error) {
		switch v := a[0].(type) {
		case nil:
			return nil, nil
		case string:
			return len([]rune(v)), nil
		case []string:
			return len(v), nil
		case beancount.Inventory:
			return len(v), nil
		}
		return nil, fmt.Errorf("length of %T", a[0])
	}},
	"str": {1, 1, fixed(query.TypeString), func(a []any) (any, error) {
		switch v := a[0].(type) {
		case nil:
			return "", nil
		case time.Time:
			return v.Format(beancount.DateLayout), nil
		case []string:
			items := append([]string(nil), v...)
			sort.Strings(items)
			return strings.Join(items, ","), nil
		}
		return fmt.Sprint(a[0]), nil
	}},
	"root": {1, 2, fixed(query.TypeString), func(a []any) (any, error) {
		account, err := requireString(a[0])
		if err != nil || account == "" {
			return account, err
		}
		n := 1
		if len(a) == 2 {
			d, err := requireDecimal(a[1])
			if err != nil {
				return nil, err
			}
			n = int(d.IntPart())
		}
		parts := strings.Split(account, ":")
		if n < len(parts) {
			parts = parts[:n]
		}
		return strings.Join(parts, ":"), nil
	}},
	"parent": {1, 1, fixed(query.TypeString), func(a []any) (any, error) {
		account, err := requireString(a[0])
		if err != nil {
			return nil, err
		}
		i := strings.LastIndex(account, ":")
		if i < 0 {
			return nil, nil
		}
		return account[:i], nil
	}},
	"leaf": {1, 1, fixed(query.TypeString), func(a []any) (any, error) {
		account, err := requireString(a[0])
		if err != nil {
			return nil, err
		}
		return account[strings.LastIndex(account, ":")+1:], nil
	}},
	"units": {1, 1, fixed(query.TypeAmount), func(a []any) (any, error) {
		switch v := a[0].(type) {
		case nil:
			return nil, nil
		case beancount.Amount:
			return v, nil
		}
		return nil, fmt.Errorf("units of %T", a[0])
	}},
	"number": {1, 1, fixed(query.TypeDecimal), func(a []any) (any, error) {
		switch v := a[0].(type) {
		case nil:
			return nil, nil
		case beancount.Amount:
			return v.Number, nil
		}
		return nil, fmt.Errorf("number of %T", a[0])
	}},
	"year": {1, 1, fixed(query.TypeInt), func(a []any) (any, error) {
		date, err := requireDate(a[0])
		if err != nil || date == nil {
			return nil, err
		}
		return date.Year(), nil
	}},
	"month": {1, 1, fixed(query.TypeInt), func(a []any) (any, error) {
		date, err := requireDate(a[0])
		if err != nil || date == nil {
			return nil, err
		}
		return int(date.Month()), nil
	}},
}

// FunctionNames returns the names of the scalar operators and functions, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call applies a scalar operator or function to its arguments.
type Call struct {
	name string
	fn   function
	args []query.Expression
}

// NewCall builds a call to a scalar operator or function, checking its arity.
func NewCall(name string, args ...query.Expression) (*Call, error) {
	fn, ok := functions[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, fmt.Errorf("function %q called with %d arguments", name, len(args))
	}
	return &Call{name: name, fn: fn, args: args}, nil
}

func (c *Call) Name() string                 { return c.name }
func (c *Call) Type() query.DataType         { return c.fn.typ(c.args) }
func (c *Call) Children() []query.Expression { return c.args }

func (c *Call) Evaluate(ctx *query.Context) (any, error) {
	values := make([]any, len(c.args))
	for i, arg := range c.args {
		value, err := arg.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return c.Combine(values)
}

// EvaluateEntry evaluates the call against a directive. Every argument must
// itself be evaluable against entries.
func (c *Call) EvaluateEntry(entry beancount.Directive) (any, error) {
	values := make([]any, len(c.args))
	for i, arg := range c.args {
		ee, ok := arg.(query.EntryExpression)
		if !ok {
			return nil, fmt.Errorf("%T cannot be evaluated on entries", arg)
		}
		value, err := ee.EvaluateEntry(entry)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return c.Combine(values)
}

func (c *Call) Combine(args []any) (any, error) {
	value, err := c.fn.eval(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return value, nil
}

func compareWith(pred func(int) bool) func([]any) (any, error) {
	return func(a []any) (any, error) {
		if a[0] == nil || a[1] == nil {
			return false, nil
		}
		c, err := query.CompareValues(a[0], a[1])
		if err != nil {
			return nil, fmt.Errorf("cannot compare %T and %T", a[0], a[1])
		}
		return pred(c), nil
	}
}

func arithmetic(op func(x, y decimal.Decimal) (decimal.Decimal, error)) func([]any) (any, error) {
	return func(a []any) (any, error) {
		if a[0] == nil || a[1] == nil {
			return nil, nil
		}
		x, err := requireDecimal(a[0])
		if err != nil {
			return nil, err
		}
		y, err := requireDecimal(a[1])
		if err != nil {
			return nil, err
		}
		return op(x, y)
	}
}

var (
	regexpCacheMu sync.Mutex
	regexpCache   = make(map[string]*regexp.Regexp)
)

func evalMatch(a []any) (any, error) {
	if a[0] == nil {
		return false, nil
	}
	s, err := requireString(a[0])
	if err != nil {
		return nil, err
	}
	pattern, err := requireString(a[1])
	if err != nil {
		return nil, err
	}

	regexpCacheMu.Lock()
	re, ok := regexpCache[pattern]
	if !ok {
		re, err = regexp.Compile(pattern)
		if err == nil {
			regexpCache[pattern] = re
		}
	}
	regexpCacheMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString(s), nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

func requireDecimal(v any) (decimal.Decimal, error) {
	d, ok := toDecimal(v)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("expected a number, got %T", v)
	}
	return d, nil
}

func requireString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	}
	return "", fmt.Errorf("expected a string, got %T", v)
}

func requireDate(v any) (*time.Time, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &d, nil
	}
	return nil, fmt.Errorf("expected a date, got %T", v)
}
