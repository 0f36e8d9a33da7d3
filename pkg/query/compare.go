package query

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
)

var errIncomparable = errors.New("incomparable values")

// CompareValues orders two values of the same kind, returning -1, 0 or 1.
// Nil sorts before everything. Integers and decimals compare numerically,
// amounts by currency then number. Inventories compare their amounts in
// currency order, a shorter inventory sorting first when it is a prefix of
// the other. Any other mix of types is an error.
func CompareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}

	if x, ok := toDecimal(a); ok {
		if y, ok := toDecimal(b); ok {
			return x.Cmp(y), nil
		}
		return 0, errIncomparable
	}

	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, errIncomparable
		}
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, errIncomparable
		}
		return strings.Compare(x, y), nil
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, errIncomparable
		}
		return x.Compare(y), nil
	case beancount.Amount:
		y, ok := b.(beancount.Amount)
		if !ok {
			return 0, errIncomparable
		}
		if c := strings.Compare(x.Currency, y.Currency); c != 0 {
			return c, nil
		}
		return x.Number.Cmp(y.Number), nil
	case beancount.Inventory:
		y, ok := b.(beancount.Inventory)
		if !ok {
			return 0, errIncomparable
		}
		return compareInventories(x, y), nil
	}
	return 0, errIncomparable
}

func compareInventories(x, y beancount.Inventory) int {
	xs, ys := x.Amounts(), y.Amounts()
	for i := 0; i < len(xs) && i < len(ys); i++ {
		if c := strings.Compare(xs[i].Currency, ys[i].Currency); c != 0 {
			return c
		}
		if c := xs[i].Number.Cmp(ys[i].Number); c != 0 {
			return c
		}
	}
	switch {
	case len(xs) < len(ys):
		return -1
	case len(xs) > len(ys):
		return 1
	}
	return 0
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

// compareKeys compares two sort-key tuples lexicographically.
func compareKeys(a, b []any) (int, error) {
	for i := range a {
		c, err := CompareValues(a[i], b[i])
		if err != nil {
			return 0, &OrderingError{Index: i, Left: a[i], Right: b[i]}
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

// sortRows stable-sorts rows by their sort keys. The first incomparable pair
// met aborts the sort with an OrderingError.
func sortRows(rows []keyedRow, descending bool) error {
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		c, err := compareKeys(rows[i].sortKey, rows[j].sortKey)
		if err != nil {
			sortErr = err
			return false
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
	return sortErr
}

// EqualValues reports whether two values are structurally equal, with the
// same semantics used for group keys and DISTINCT.
func EqualValues(a, b any) bool {
	return encodeKey([]any{a}) == encodeKey([]any{b})
}

// encodeKey canonicalizes a tuple of values into a string such that two
// tuples encode equally exactly when their values are structurally equal.
func encodeKey(values []any) string {
	var sb strings.Builder
	for _, v := range values {
		encodeValue(&sb, v)
	}
	return sb.String()
}

func encodeValue(sb *strings.Builder, value any) {
	if n, ok := toDecimal(value); ok {
		writeField(sb, 'd', n.String())
		return
	}
	switch v := value.(type) {
	case nil:
		sb.WriteString("n;")
	case bool:
		writeField(sb, 'b', strconv.FormatBool(v))
	case string:
		writeField(sb, 's', v)
	case time.Time:
		writeField(sb, 't', v.UTC().Format(time.RFC3339Nano))
	case beancount.Amount:
		writeField(sb, 'a', v.Number.String())
		writeField(sb, 'c', v.Currency)
	case *beancount.Amount:
		if v == nil {
			sb.WriteString("n;")
			return
		}
		encodeValue(sb, *v)
	case beancount.Inventory:
		amounts := v.Amounts()
		writeField(sb, 'i', strconv.Itoa(len(amounts)))
		for _, a := range amounts {
			encodeValue(sb, a)
		}
	case []string:
		items := append([]string(nil), v...)
		sort.Strings(items)
		writeField(sb, 'l', strconv.Itoa(len(items)))
		for _, item := range items {
			writeField(sb, 's', item)
		}
	default:
		writeField(sb, 'o', fmt.Sprintf("%T:%#v", v, v))
	}
}

func writeField(sb *strings.Builder, tag byte, s string) {
	sb.WriteByte(tag)
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
}
