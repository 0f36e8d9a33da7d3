// Package query executes compiled queries over ledger entries. A query either
// projects one row per matching posting or, when it has a group key, folds the
// matching postings into one row per distinct key through the aggregate
// expressions it contains. Rows are then ordered, deduplicated and truncated.
package query

import (
	"context"
	"log/slog"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/ledger"
	"github.com/shunichi-ikebuchi/beanquery/pkg/summarize"
)

// ResultRow holds the values of the named targets, in declaration order.
type ResultRow []any

// Result is the output of a query.
type Result struct {
	Columns []Column
	Rows    []ResultRow
}

// ExecuteOption configures Execute and ExecutePrint.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	summarizer EntrySummarizer
	logger     *slog.Logger
}

func newExecuteConfig(options []ExecuteOption) executeConfig {
	cfg := executeConfig{
		summarizer: summarize.Default,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}

// WithSummarizer replaces the summarizer used by OPEN, CLOSE and CLEAR.
func WithSummarizer(s EntrySummarizer) ExecuteOption {
	return func(cfg *executeConfig) { cfg.summarizer = s }
}

// WithLogger sets the logger receiving execution statistics.
func WithLogger(logger *slog.Logger) ExecuteOption {
	return func(cfg *executeConfig) { cfg.logger = logger }
}

// keyedRow pairs a result row with its precomputed sort key.
type keyedRow struct {
	sortKey []any
	row     ResultRow
}

// Execute runs a query over entries. The scan is synchronous; ctx is only
// consulted before it starts.
func Execute(ctx context.Context, q *Query, entries []beancount.Directive, opts ledger.Options, options ...ExecuteOption) (*Result, error) {
	cfg := newExecuteConfig(options)

	if err := q.Validate(); err != nil {
		return nil, err
	}

	entries, err := FilterEntries(q.From, entries, opts, cfg.summarizer)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	proj := newProjection(q)
	var rows []keyedRow
	var stats scanStats
	if q.GroupIndexes == nil {
		rows, stats, err = executeFlat(q, entries, proj)
	} else {
		rows, stats, err = executeAggregated(q, entries, proj)
	}
	if err != nil {
		return nil, err
	}

	if q.OrderIndexes != nil {
		if err := sortRows(rows, q.Ordering == Desc); err != nil {
			return nil, err
		}
	}

	resultRows := make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		resultRows = append(resultRows, r.row)
	}

	if q.Distinct {
		resultRows = uniquify(resultRows)
	}

	if q.Limit != nil && *q.Limit < len(resultRows) {
		resultRows = resultRows[:*q.Limit]
	}

	cfg.logger.Debug("Query executed",
		"entries", len(entries),
		"postings_matched", stats.matched,
		"groups", stats.groups,
		"rows", len(resultRows),
	)

	return &Result{Columns: q.Columns(), Rows: resultRows}, nil
}

type scanStats struct {
	matched int
	groups  int
}

// projection extracts result rows and sort keys from full target tuples.
type projection struct {
	resultIndexes []int
	orderIndexes  []int
}

func newProjection(q *Query) projection {
	p := projection{orderIndexes: q.OrderIndexes}
	for i, target := range q.Targets {
		if target.Name != "" {
			p.resultIndexes = append(p.resultIndexes, i)
		}
	}
	return p
}

func (p projection) apply(values []any) keyedRow {
	row := make(ResultRow, len(p.resultIndexes))
	for i, index := range p.resultIndexes {
		row[i] = values[index]
	}
	var sortKey []any
	if p.orderIndexes != nil {
		sortKey = make([]any, len(p.orderIndexes))
		for i, index := range p.orderIndexes {
			sortKey[i] = values[index]
		}
	}
	return keyedRow{sortKey: sortKey, row: row}
}

// scanPostings calls fn for every posting of every transaction that passes
// the where clause, in ledger order.
func scanPostings(entries []beancount.Directive, where Expression, fn func(*Context) error) (int, error) {
	matched := 0
	for _, entry := range entries {
		txn, ok := entry.(*beancount.Transaction)
		if !ok {
			continue
		}
		for i := range txn.Postings {
			ctx := &Context{Entry: txn, Posting: &txn.Postings[i]}
			if where != nil {
				value, err := where.Evaluate(ctx)
				if err != nil {
					return matched, &EvaluationError{Op: "where", Entry: txn, Posting: ctx.Posting, Err: err}
				}
				if !Truthy(value) {
					continue
				}
			}
			matched++
			if err := fn(ctx); err != nil {
				return matched, err
			}
		}
	}
	return matched, nil
}

// executeFlat produces one row per matching posting.
func executeFlat(q *Query, entries []beancount.Directive, proj projection) ([]keyedRow, scanStats, error) {
	var rows []keyedRow
	matched, err := scanPostings(entries, q.Where, func(ctx *Context) error {
		values := make([]any, len(q.Targets))
		for i, target := range q.Targets {
			value, err := target.Expr.Evaluate(ctx)
			if err != nil {
				return &EvaluationError{Op: "evaluate", Target: target.Name, Entry: ctx.Entry, Posting: ctx.Posting, Err: err}
			}
			values[i] = value
		}
		rows = append(rows, proj.apply(values))
		return nil
	})
	return rows, scanStats{matched: matched}, err
}

// group is the accumulated state of one distinct group key.
type group struct {
	key   []any
	store Store
}

// groupTable maps canonical group keys to an arena of groups kept in the
// order they were first seen.
type groupTable struct {
	index  map[string]int
	groups []group
}

func newGroupTable() *groupTable {
	return &groupTable{index: make(map[string]int)}
}

// executeAggregated folds matching postings into one row per group key.
func executeAggregated(q *Query, entries []beancount.Directive, proj projection) ([]keyedRow, scanStats, error) {
	isKey := make(map[int]bool, len(q.GroupIndexes))
	for _, index := range q.GroupIndexes {
		isKey[index] = true
	}

	// Classify targets. Aggregates nested anywhere inside a non-key target
	// are collected so the scan never has to walk expression trees.
	var keyExprs []Expression
	var aggregates []Aggregate
	for i, target := range q.Targets {
		if isKey[i] {
			keyExprs = append(keyExprs, target.Expr)
		} else {
			aggregates = append(aggregates, FindAggregates(target.Expr)...)
		}
	}

	// All slots must be allocated before the first store is created.
	allocator := NewAllocator()
	for _, agg := range aggregates {
		agg.Allocate(allocator)
	}

	table := newGroupTable()
	matched, err := scanPostings(entries, q.Where, func(ctx *Context) error {
		key := make([]any, len(keyExprs))
		for i, expr := range keyExprs {
			value, err := expr.Evaluate(ctx)
			if err != nil {
				return &EvaluationError{Op: "evaluate", Entry: ctx.Entry, Posting: ctx.Posting, Err: err}
			}
			key[i] = value
		}

		encoded := encodeKey(key)
		index, ok := table.index[encoded]
		if !ok {
			store := allocator.CreateStore()
			for _, agg := range aggregates {
				agg.Initialize(store)
			}
			index = len(table.groups)
			table.groups = append(table.groups, group{key: key, store: store})
			table.index[encoded] = index
		}

		store := table.groups[index].store
		for _, agg := range aggregates {
			if err := agg.Update(store, ctx); err != nil {
				return &EvaluationError{Op: "update", Entry: ctx.Entry, Posting: ctx.Posting, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return nil, scanStats{}, err
	}

	rows := make([]keyedRow, 0, len(table.groups))
	for _, g := range table.groups {
		values := make([]any, len(q.Targets))
		k := 0
		for i, target := range q.Targets {
			if isKey[i] {
				values[i] = g.key[k]
				k++
				continue
			}
			value, err := Finalize(target.Expr, g.store)
			if err != nil {
				return nil, scanStats{}, &EvaluationError{Op: "finalize", Target: target.Name, Err: err}
			}
			values[i] = value
		}
		rows = append(rows, proj.apply(values))
	}

	return rows, scanStats{matched: matched, groups: len(table.groups)}, nil
}

// uniquify keeps the first occurrence of every distinct row.
func uniquify(rows []ResultRow) []ResultRow {
	seen := make(map[string]bool, len(rows))
	unique := make([]ResultRow, 0, len(rows))
	for _, row := range rows {
		key := encodeKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, row)
	}
	return unique
}
