// Package expr provides the compiled expressions queries are built from:
// posting and entry columns, constants, operators, scalar functions and
// aggregate functions.
package expr

import (
	"fmt"
	"sort"
	"time"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
)

type columnDef struct {
	typ query.DataType
	get func(ctx *query.Context) any
}

var postingColumns = map[string]columnDef{
	"date":      {query.TypeDate, func(c *query.Context) any { return c.Entry.Date }},
	"year":      {query.TypeInt, func(c *query.Context) any { return c.Entry.Date.Year() }},
	"month":     {query.TypeInt, func(c *query.Context) any { return int(c.Entry.Date.Month()) }},
	"flag":      {query.TypeString, func(c *query.Context) any { return c.Entry.Flag }},
	"payee":     {query.TypeString, func(c *query.Context) any { return c.Entry.Payee }},
	"narration": {query.TypeString, func(c *query.Context) any { return c.Entry.Narration }},
	"tags":      {query.TypeSet, func(c *query.Context) any { return copyStrings(c.Entry.Tags) }},
	"links":     {query.TypeSet, func(c *query.Context) any { return copyStrings(c.Entry.Links) }},

	"posting_flag": {query.TypeString, func(c *query.Context) any { return c.Posting.Flag }},
	"account":      {query.TypeString, func(c *query.Context) any { return c.Posting.Account }},
	"number":       {query.TypeDecimal, func(c *query.Context) any { return c.Posting.Units.Number }},
	"currency":     {query.TypeString, func(c *query.Context) any { return c.Posting.Units.Currency }},
	"units":        {query.TypeAmount, func(c *query.Context) any { return c.Posting.Units }},
	"position":     {query.TypePosition, func(c *query.Context) any { return c.Posting.Units }},
	"weight":       {query.TypeAmount, func(c *query.Context) any { return c.Posting.Weight() }},
	"cost_number": {query.TypeDecimal, func(c *query.Context) any {
		if c.Posting.Cost == nil {
			return nil
		}
		return c.Posting.Cost.Number
	}},
	"cost_currency": {query.TypeString, func(c *query.Context) any {
		if c.Posting.Cost == nil {
			return nil
		}
		return c.Posting.Cost.Currency
	}},
	"price": {query.TypeAmount, func(c *query.Context) any {
		if c.Posting.Price == nil {
			return nil
		}
		return *c.Posting.Price
	}},
}

// ColumnNames returns the names of the posting columns, sorted.
func ColumnNames() []string {
	names := make([]string, 0, len(postingColumns))
	for name := range postingColumns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Column reads an attribute of the posting or of its transaction.
type Column struct {
	name string
	def  columnDef
}

// NewColumn returns the posting column with the given name.
func NewColumn(name string) (*Column, error) {
	def, ok := postingColumns[name]
	if !ok {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	return &Column{name: name, def: def}, nil
}

func (c *Column) Name() string                 { return c.name }
func (c *Column) Type() query.DataType         { return c.def.typ }
func (c *Column) Children() []query.Expression { return nil }

func (c *Column) Evaluate(ctx *query.Context) (any, error) {
	if ctx == nil || ctx.Entry == nil || ctx.Posting == nil {
		return nil, fmt.Errorf("column %q evaluated without a posting", c.name)
	}
	return c.def.get(ctx), nil
}

// Meta reads a metadata value, looking at the posting first and then at its
// transaction. Missing keys evaluate to nil.
type Meta struct {
	key string
}

// NewMeta returns an expression reading metadata key.
func NewMeta(key string) *Meta {
	return &Meta{key: key}
}

func (m *Meta) Type() query.DataType         { return query.TypeString }
func (m *Meta) Children() []query.Expression { return nil }

func (m *Meta) Evaluate(ctx *query.Context) (any, error) {
	if ctx == nil || ctx.Entry == nil || ctx.Posting == nil {
		return nil, fmt.Errorf("meta %q evaluated without a posting", m.key)
	}
	if value, ok := ctx.Posting.Meta[m.key]; ok {
		return value, nil
	}
	if value, ok := ctx.Entry.Meta[m.key]; ok {
		return value, nil
	}
	return nil, nil
}

type entryColumnDef struct {
	typ query.DataType
	get func(entry beancount.Directive) any
}

var entryColumns = map[string]entryColumnDef{
	"date":  {query.TypeDate, func(e beancount.Directive) any { return e.GetDate() }},
	"year":  {query.TypeInt, func(e beancount.Directive) any { return e.GetDate().Year() }},
	"month": {query.TypeInt, func(e beancount.Directive) any { return int(e.GetDate().Month()) }},
	"type":  {query.TypeString, func(e beancount.Directive) any { return string(e.Kind()) }},
	"flag": {query.TypeString, func(e beancount.Directive) any {
		if txn, ok := e.(*beancount.Transaction); ok {
			return txn.Flag
		}
		return nil
	}},
	"payee": {query.TypeString, func(e beancount.Directive) any {
		if txn, ok := e.(*beancount.Transaction); ok {
			return txn.Payee
		}
		return nil
	}},
	"narration": {query.TypeString, func(e beancount.Directive) any {
		if txn, ok := e.(*beancount.Transaction); ok {
			return txn.Narration
		}
		return nil
	}},
	"tags": {query.TypeSet, func(e beancount.Directive) any {
		if txn, ok := e.(*beancount.Transaction); ok {
			return copyStrings(txn.Tags)
		}
		return []string{}
	}},
}

// EntryColumn reads an attribute of a whole directive, for FROM filters.
type EntryColumn struct {
	name string
	def  entryColumnDef
}

// NewEntryColumn returns the entry column with the given name.
func NewEntryColumn(name string) (*EntryColumn, error) {
	def, ok := entryColumns[name]
	if !ok {
		return nil, fmt.Errorf("unknown entry column %q", name)
	}
	return &EntryColumn{name: name, def: def}, nil
}

func (c *EntryColumn) Type() query.DataType         { return c.def.typ }
func (c *EntryColumn) Children() []query.Expression { return nil }

// Evaluate reads the column from the transaction of the posting.
func (c *EntryColumn) Evaluate(ctx *query.Context) (any, error) {
	if ctx == nil || ctx.Entry == nil {
		return nil, fmt.Errorf("entry column %q evaluated without an entry", c.name)
	}
	return c.def.get(ctx.Entry), nil
}

func (c *EntryColumn) EvaluateEntry(entry beancount.Directive) (any, error) {
	return c.def.get(entry), nil
}

// Constant is a literal value.
type Constant struct {
	value any
	typ   query.DataType
}

// NewConstant wraps a literal. Its type is inferred from the Go value.
func NewConstant(value any) *Constant {
	return &Constant{value: value, typ: TypeOf(value)}
}

func (c *Constant) Value() any                                     { return c.value }
func (c *Constant) Type() query.DataType                           { return c.typ }
func (c *Constant) Children() []query.Expression                   { return nil }
func (c *Constant) Evaluate(*query.Context) (any, error)           { return c.value, nil }
func (c *Constant) EvaluateEntry(beancount.Directive) (any, error) { return c.value, nil }

// TypeOf returns the data type of a Go value.
func TypeOf(value any) query.DataType {
	switch value.(type) {
	case bool:
		return query.TypeBool
	case int, int64:
		return query.TypeInt
	case string:
		return query.TypeString
	case time.Time:
		return query.TypeDate
	case beancount.Amount:
		return query.TypeAmount
	case beancount.Inventory:
		return query.TypeInventory
	case []string:
		return query.TypeSet
	}
	if _, ok := toDecimal(value); ok {
		return query.TypeDecimal
	}
	return query.TypeObject
}

func copyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
