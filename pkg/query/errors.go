package query

import (
	"errors"
	"fmt"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
)

// ErrInvalidPlan reports a malformed query plan.
var ErrInvalidPlan = errors.New("invalid query plan")

// EvaluationError is returned when an expression fails while the query runs.
// Entry and Posting identify the record being processed, when there is one.
type EvaluationError struct {
	Op      string // "filter", "where", "evaluate", "update" or "finalize"
	Target  string // Name of the target being computed, if any
	Entry   beancount.Directive
	Posting *beancount.Posting
	Err     error
}

func (e *EvaluationError) Error() string {
	msg := "failed to " + e.Op
	if e.Target != "" {
		msg += fmt.Sprintf(" %q", e.Target)
	}
	if e.Entry != nil {
		msg += fmt.Sprintf(" on %s entry of %s", e.Entry.Kind(), e.Entry.GetDate().Format(beancount.DateLayout))
	}
	if e.Posting != nil {
		msg += fmt.Sprintf(" (posting %s)", e.Posting.Account)
	}
	return msg + ": " + e.Err.Error()
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// OrderingError is returned when two sort keys hold values that cannot be
// compared with each other.
type OrderingError struct {
	Index int // Position within the sort key
	Left  any
	Right any
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("cannot order values %v (%T) and %v (%T) at sort key position %d",
		e.Left, e.Left, e.Right, e.Right, e.Index)
}
