package query

import (
	"fmt"
	"io"
	"time"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/ledger"
)

// EntrySummarizer implements the period operations of the FROM clause.
type EntrySummarizer interface {
	Open(entries []beancount.Directive, date time.Time, opts ledger.Options) ([]beancount.Directive, error)
	Close(entries []beancount.Directive, date *time.Time, opts ledger.Options) ([]beancount.Directive, error)
	Clear(entries []beancount.Directive, opts ledger.Options) ([]beancount.Directive, error)
}

// FilterEntries applies a FROM clause to the entries: the filter expression,
// then OPEN, then CLOSE, then CLEAR. A nil clause returns entries unchanged.
func FilterEntries(from *FromClause, entries []beancount.Directive, opts ledger.Options, summarizer EntrySummarizer) ([]beancount.Directive, error) {
	if from == nil {
		return entries, nil
	}
	if from.Close != nil && from.CloseNow {
		return nil, fmt.Errorf("%w: CLOSE has both a date and no date", ErrInvalidPlan)
	}

	if from.Filter != nil {
		filtered := make([]beancount.Directive, 0, len(entries))
		for _, entry := range entries {
			value, err := from.Filter.EvaluateEntry(entry)
			if err != nil {
				return nil, &EvaluationError{Op: "filter", Entry: entry, Err: err}
			}
			if Truthy(value) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	var err error
	if from.Open != nil {
		entries, err = summarizer.Open(entries, *from.Open, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open at %s: %w", from.Open.Format(beancount.DateLayout), err)
		}
	}

	if from.Close != nil || from.CloseNow {
		entries, err = summarizer.Close(entries, from.Close, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to close: %w", err)
		}
	}

	if from.Clear {
		entries, err = summarizer.Clear(entries, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to clear: %w", err)
		}
	}

	return entries, nil
}

// ExecutePrint filters entries with a FROM clause and prints them as
// Beancount text.
func ExecutePrint(from *FromClause, entries []beancount.Directive, opts ledger.Options, w io.Writer, options ...ExecuteOption) error {
	cfg := newExecuteConfig(options)
	entries, err := FilterEntries(from, entries, opts, cfg.summarizer)
	if err != nil {
		return err
	}
	return beancount.PrintEntries(w, entries)
}
