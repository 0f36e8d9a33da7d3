// Package planfile compiles YAML query plans into executable queries.
//
// A plan file looks like:
//
//	name: expenses-by-account
//	from:
//	  filter: {op: "=", args: [{entry: year}, {const: 2024}]}
//	  open: 2024-01-01
//	  close: 2025-01-01   # or "close: true" to close without a date
//	  clear: false
//	where: {op: "~", args: [{column: account}, {const: "^Expenses:"}]}
//	targets:
//	  - {name: account, expr: {column: account}}
//	  - {name: total, expr: {call: sum, args: [{column: position}]}}
//	group_by: [account]
//	order_by: [total]
//	ordering: desc
//	distinct: false
//	limit: 10
//
// group_by and order_by refer to targets by name or by index. When group_by is
// omitted but some target aggregates, the query is grouped by all the
// non-aggregate targets.
package planfile

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/expr"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
	"gopkg.in/yaml.v3"
)

// Plan is a compiled plan file.
type Plan struct {
	Name  string
	Query *query.Query
}

// Node is an expression in a plan file. Exactly one of Column, Entry, Meta,
// Const, Op or Call is set; Args holds the arguments of Op and Call.
type Node struct {
	Column string    `yaml:"column"`
	Entry  string    `yaml:"entry"`
	Meta   string    `yaml:"meta"`
	Const  yaml.Node `yaml:"const"`
	Op     string    `yaml:"op"`
	Call   string    `yaml:"call"`
	Args   []Node    `yaml:"args"`
}

type fromDoc struct {
	Filter *Node     `yaml:"filter"`
	Open   yaml.Node `yaml:"open"`
	Close  yaml.Node `yaml:"close"`
	Clear  bool      `yaml:"clear"`
}

type targetDoc struct {
	Name string `yaml:"name"`
	Expr Node   `yaml:"expr"`
}

type planDoc struct {
	Name     string       `yaml:"name"`
	From     *fromDoc     `yaml:"from"`
	Where    *Node        `yaml:"where"`
	Targets  []targetDoc  `yaml:"targets"`
	GroupBy  *[]yaml.Node `yaml:"group_by"`
	OrderBy  *[]yaml.Node `yaml:"order_by"`
	Ordering string       `yaml:"ordering"`
	Distinct bool         `yaml:"distinct"`
	Limit    *int         `yaml:"limit"`
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Load reads and compiles a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// Parse compiles a plan from YAML.
func Parse(data []byte) (*Plan, error) {
	var doc planDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return compile(&doc)
}

func compile(doc *planDoc) (*Plan, error) {
	q := &query.Query{Distinct: doc.Distinct, Limit: doc.Limit}

	if doc.From != nil {
		from, err := compileFrom(doc.From)
		if err != nil {
			return nil, err
		}
		q.From = from
	}

	if doc.Where != nil {
		where, err := compileNode(doc.Where, "where", modePosting)
		if err != nil {
			return nil, err
		}
		q.Where = where
	}

	names := make(map[string]int)
	for i, t := range doc.Targets {
		e, err := compileNode(&t.Expr, fmt.Sprintf("targets[%d]", i), modeTarget)
		if err != nil {
			return nil, err
		}
		q.Targets = append(q.Targets, query.Target{Name: t.Name, Expr: e})
		if t.Name != "" {
			if _, dup := names[t.Name]; dup {
				return nil, fmt.Errorf("targets[%d]: duplicate target name %q", i, t.Name)
			}
			names[t.Name] = i
		}
	}

	if doc.GroupBy != nil {
		indexes, err := resolveTargets(*doc.GroupBy, names, len(q.Targets), "group_by")
		if err != nil {
			return nil, err
		}
		q.GroupIndexes = indexes
	} else {
		q.GroupIndexes = implicitGroup(q.Targets)
	}
	if err := checkGrouping(q); err != nil {
		return nil, err
	}

	if doc.OrderBy != nil {
		indexes, err := resolveTargets(*doc.OrderBy, names, len(q.Targets), "order_by")
		if err != nil {
			return nil, err
		}
		q.OrderIndexes = indexes
	}

	switch strings.ToLower(doc.Ordering) {
	case "", "asc":
		q.Ordering = query.Asc
	case "desc":
		q.Ordering = query.Desc
	default:
		return nil, fmt.Errorf("ordering: unknown ordering %q", doc.Ordering)
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &Plan{Name: doc.Name, Query: q}, nil
}

func compileFrom(doc *fromDoc) (*query.FromClause, error) {
	from := &query.FromClause{Clear: doc.Clear}

	if doc.Filter != nil {
		filter, err := compileNode(doc.Filter, "from.filter", modeEntry)
		if err != nil {
			return nil, err
		}
		ee, ok := filter.(query.EntryExpression)
		if !ok {
			return nil, fmt.Errorf("from.filter: expression cannot be evaluated on entries")
		}
		from.Filter = ee
	}

	if doc.Open.Kind != 0 {
		date, err := parseDateNode(&doc.Open)
		if err != nil {
			return nil, fmt.Errorf("from.open: %w", err)
		}
		from.Open = &date
	}

	if doc.Close.Kind != 0 {
		if doc.Close.ShortTag() == "!!bool" {
			closeNow, err := strconv.ParseBool(doc.Close.Value)
			if err != nil {
				return nil, fmt.Errorf("from.close: %w", err)
			}
			from.CloseNow = closeNow
		} else {
			date, err := parseDateNode(&doc.Close)
			if err != nil {
				return nil, fmt.Errorf("from.close: %w", err)
			}
			from.Close = &date
		}
	}

	return from, nil
}

// implicitGroup groups by every non-aggregate target when some target
// aggregates, and returns nil otherwise.
func implicitGroup(targets []query.Target) []int {
	aggregated := false
	indexes := []int{}
	for i, t := range targets {
		if query.IsAggregate(t.Expr) {
			aggregated = true
		} else {
			indexes = append(indexes, i)
		}
	}
	if !aggregated {
		return nil
	}
	return indexes
}

// checkGrouping rejects grouped queries that cannot be finalized: group keys
// that aggregate, and other targets that read a posting outside of an
// aggregate.
func checkGrouping(q *query.Query) error {
	if q.GroupIndexes == nil {
		return nil
	}
	isKey := make(map[int]bool, len(q.GroupIndexes))
	for i, index := range q.GroupIndexes {
		if query.IsAggregate(q.Targets[index].Expr) {
			return fmt.Errorf("group_by[%d]: target %q is an aggregate", i, q.Targets[index].Name)
		}
		isKey[index] = true
	}
	for i, t := range q.Targets {
		if isKey[i] {
			continue
		}
		if !query.IsAggregate(t.Expr) {
			if _, ok := t.Expr.(*expr.Constant); ok {
				continue
			}
			return fmt.Errorf("targets[%d]: %q is neither grouped nor aggregated", i, t.Name)
		}
		if err := checkFinalizable(t.Expr); err != nil {
			return fmt.Errorf("targets[%d]: %q %w", i, t.Name, err)
		}
	}
	return nil
}

// checkFinalizable accepts aggregates, constants, and operators or functions
// built only from those.
func checkFinalizable(e query.Expression) error {
	switch n := e.(type) {
	case query.Aggregate, *expr.Constant:
		return nil
	case query.Combiner:
		for _, child := range n.Children() {
			if err := checkFinalizable(child); err != nil {
				return err
			}
		}
		return nil
	case *expr.Column:
		return fmt.Errorf("reads column %q outside of an aggregate", n.Name())
	}
	return fmt.Errorf("reads a posting value outside of an aggregate")
}

func resolveTargets(nodes []yaml.Node, names map[string]int, count int, path string) ([]int, error) {
	indexes := make([]int, 0, len(nodes))
	for i, n := range nodes {
		if n.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%s[%d]: expected a target name or index", path, i)
		}
		if n.ShortTag() == "!!int" {
			index, err := strconv.Atoi(n.Value)
			if err != nil || index < 0 || index >= count {
				return nil, fmt.Errorf("%s[%d]: target index %s out of range", path, i, n.Value)
			}
			indexes = append(indexes, index)
			continue
		}
		index, ok := names[n.Value]
		if !ok {
			return nil, fmt.Errorf("%s[%d]: unknown target %q", path, i, n.Value)
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

type mode int

const (
	modeTarget  mode = iota // posting context, aggregates allowed
	modePosting             // posting context, no aggregates
	modeEntry               // entry context
)

func compileNode(n *Node, path string, m mode) (query.Expression, error) {
	set := 0
	for _, present := range []bool{n.Column != "", n.Entry != "", n.Meta != "", n.Const.Kind != 0, n.Op != "", n.Call != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%s: expected exactly one of column, entry, meta, const, op or call", path)
	}

	switch {
	case n.Column != "":
		if m == modeEntry {
			return nil, fmt.Errorf("%s: posting column %q is not available here", path, n.Column)
		}
		c, err := expr.NewColumn(n.Column)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return c, nil

	case n.Entry != "":
		c, err := expr.NewEntryColumn(n.Entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return c, nil

	case n.Meta != "":
		if m == modeEntry {
			return nil, fmt.Errorf("%s: meta is not available here", path)
		}
		return expr.NewMeta(n.Meta), nil

	case n.Const.Kind != 0:
		value, err := constantValue(&n.Const)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return expr.NewConstant(value), nil
	}

	name := n.Op
	if name == "" {
		name = n.Call
	}
	name = strings.ToLower(name)

	argMode := m
	if expr.IsAggregateFunction(name) {
		if m != modeTarget {
			return nil, fmt.Errorf("%s: aggregate %q is not allowed here", path, name)
		}
		argMode = modePosting
	}

	args := make([]query.Expression, 0, len(n.Args))
	for i := range n.Args {
		arg, err := compileNode(&n.Args[i], fmt.Sprintf("%s.args[%d]", path, i), argMode)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	if expr.IsAggregateFunction(name) {
		agg, err := expr.NewAggregate(name, args...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return agg, nil
	}
	call, err := expr.NewCall(name, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return call, nil
}

// constantValue converts a YAML scalar: numbers become decimals, dates become
// time values, null becomes nil and sequences of strings become sets.
func constantValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("set constants may only hold scalars")
			}
			items = append(items, item.Value)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported constant")
	}

	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		return strconv.ParseBool(n.Value)
	case "!!int", "!!float":
		d, err := decimal.NewFromString(n.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", n.Value)
		}
		return d, nil
	case "!!timestamp":
		return parseDateNode(n)
	}
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0 && dateRe.MatchString(n.Value) {
		return parseDateNode(n)
	}
	return n.Value, nil
}

func parseDateNode(n *yaml.Node) (time.Time, error) {
	if n.Kind != yaml.ScalarNode {
		return time.Time{}, fmt.Errorf("expected a date")
	}
	date, err := time.Parse(beancount.DateLayout, n.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", n.Value)
	}
	return date, nil
}
