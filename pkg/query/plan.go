package query

import (
	"fmt"
	"time"
)

// Ordering is the direction of the ORDER BY clause.
type Ordering string

const (
	Asc  Ordering = "ASC"
	Desc Ordering = "DESC"
)

// FromClause restricts and summarizes the entries a query runs over. Every
// part is optional.
type FromClause struct {
	Filter   EntryExpression // Keeps entries for which it evaluates truthy
	Open     *time.Time      // Summarizes everything before this date
	Close    *time.Time      // Drops everything from this date on
	CloseNow bool            // CLOSE without a date
	Clear    bool            // Moves income and expenses into equity
}

// Target is one projected expression. Targets without a name are computed
// (for instance to sort on) but do not appear in the result.
type Target struct {
	Name string
	Expr Expression
}

// Query is a compiled SELECT statement.
type Query struct {
	From    *FromClause
	Where   Expression // Evaluated per posting; nil keeps all postings
	Targets []Target

	// GroupIndexes lists the targets forming the group key. Nil disables
	// aggregation; an empty slice aggregates all postings into one group.
	GroupIndexes []int
	// OrderIndexes lists the targets forming the sort key. Nil leaves rows in
	// scan order.
	OrderIndexes []int
	Ordering     Ordering
	Distinct     bool
	Limit        *int
}

// Column describes one column of the result.
type Column struct {
	Name string
	Type DataType
}

// Columns returns the result schema: the named targets in declaration order.
func (q *Query) Columns() []Column {
	columns := make([]Column, 0, len(q.Targets))
	for _, target := range q.Targets {
		if target.Name != "" {
			columns = append(columns, Column{Name: target.Name, Type: target.Expr.Type()})
		}
	}
	return columns
}

// Validate checks the structural preconditions of the plan.
func (q *Query) Validate() error {
	for i, target := range q.Targets {
		if target.Expr == nil {
			return fmt.Errorf("%w: target %d has no expression", ErrInvalidPlan, i)
		}
	}
	for _, index := range q.GroupIndexes {
		if index < 0 || index >= len(q.Targets) {
			return fmt.Errorf("%w: group index %d out of range", ErrInvalidPlan, index)
		}
	}
	for _, index := range q.OrderIndexes {
		if index < 0 || index >= len(q.Targets) {
			return fmt.Errorf("%w: order index %d out of range", ErrInvalidPlan, index)
		}
	}
	switch q.Ordering {
	case "", Asc, Desc:
	default:
		return fmt.Errorf("%w: unknown ordering %q", ErrInvalidPlan, q.Ordering)
	}
	if q.Limit != nil && *q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidPlan, *q.Limit)
	}
	if q.From != nil && q.From.Close != nil && q.From.CloseNow {
		return fmt.Errorf("%w: CLOSE has both a date and no date", ErrInvalidPlan)
	}
	return nil
}
