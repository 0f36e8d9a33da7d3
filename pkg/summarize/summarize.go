// Package summarize implements the period operations of the FROM clause:
// opening a ledger at a date, closing it at a date, and clearing income and
// expense balances into equity.
package summarize

import (
	"fmt"
	"sort"
	"time"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/ledger"
)

const (
	// FlagSummarize marks synthesized opening-balance transactions.
	FlagSummarize = "S"
	// FlagTransfer marks synthesized balance transfers.
	FlagTransfer = "T"
)

// Default is the standard summarizer.
var Default Summarizer

// Summarizer implements the OPEN, CLOSE and CLEAR operations. The zero value
// is ready to use.
type Summarizer struct{}

// Open replaces all detail before date with one opening-balance transaction
// per balance-sheet account, dated the day before. Income and expense
// balances accrued before date are first moved to previous earnings. Open,
// Close and Note directives before date are kept; entries on or after date
// are returned unchanged.
func (Summarizer) Open(entries []beancount.Directive, date time.Time, opts ledger.Options) ([]beancount.Directive, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var before, after []beancount.Directive
	for _, entry := range entries {
		if entry.GetDate().Before(date) {
			before = append(before, entry)
		} else {
			after = append(after, entry)
		}
	}

	balances := newBalanceSheet()
	var kept []beancount.Directive
	for _, entry := range before {
		switch e := entry.(type) {
		case *beancount.Transaction:
			for _, posting := range e.Postings {
				account := posting.Account
				if opts.IsIncomeStatement(account) {
					account = opts.AccountPreviousEarnings
				}
				balances.add(account, posting.Units)
			}
		case *beancount.Open, *beancount.Close, *beancount.Note:
			kept = append(kept, entry)
		}
	}

	summaryDate := date.AddDate(0, 0, -1)
	result := make([]beancount.Directive, 0, len(kept)+len(after)+len(balances.accounts()))
	result = append(result, kept...)
	for _, account := range balances.accounts() {
		inv := balances.byAccount[account]
		txn := &beancount.Transaction{
			Date:      summaryDate,
			Flag:      FlagSummarize,
			Narration: fmt.Sprintf("Opening balance for '%s' (Summarization)", account),
		}
		for _, amount := range inv.Amounts() {
			txn.Postings = append(txn.Postings,
				beancount.Posting{Account: account, Units: amount},
				beancount.Posting{
					Account: opts.AccountOpeningBalances,
					Units:   beancount.Amount{Number: amount.Number.Neg(), Currency: amount.Currency},
				},
			)
		}
		result = append(result, txn)
	}
	result = append(result, after...)
	beancount.SortEntries(result)

	return result, nil
}

// Close truncates the ledger: entries dated on or after date are removed. A
// nil date closes "now" and keeps every entry.
func (Summarizer) Close(entries []beancount.Directive, date *time.Time, opts ledger.Options) ([]beancount.Directive, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	result := make([]beancount.Directive, 0, len(entries))
	for _, entry := range entries {
		if date != nil && !entry.GetDate().Before(*date) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// Clear transfers every income and expense balance into current earnings with
// one transaction per account, dated the day after the last entry.
func (Summarizer) Clear(entries []beancount.Directive, opts ledger.Options) ([]beancount.Directive, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	result := make([]beancount.Directive, 0, len(entries))
	result = append(result, entries...)
	if len(entries) == 0 {
		return result, nil
	}

	balances := newBalanceSheet()
	var last time.Time
	for _, entry := range entries {
		if entry.GetDate().After(last) {
			last = entry.GetDate()
		}
		txn, ok := entry.(*beancount.Transaction)
		if !ok {
			continue
		}
		for _, posting := range txn.Postings {
			if opts.IsIncomeStatement(posting.Account) {
				balances.add(posting.Account, posting.Units)
			}
		}
	}

	transferDate := last.AddDate(0, 0, 1)
	for _, account := range balances.accounts() {
		txn := &beancount.Transaction{
			Date:      transferDate,
			Flag:      FlagTransfer,
			Narration: fmt.Sprintf("Transfer balance for '%s' (Transfer balance)", account),
		}
		for _, amount := range balances.byAccount[account].Amounts() {
			txn.Postings = append(txn.Postings,
				beancount.Posting{
					Account: account,
					Units:   beancount.Amount{Number: amount.Number.Neg(), Currency: amount.Currency},
				},
				beancount.Posting{Account: opts.AccountCurrentEarnings, Units: amount},
			)
		}
		result = append(result, txn)
	}
	return result, nil
}

// balanceSheet tracks units per account.
type balanceSheet struct {
	byAccount map[string]beancount.Inventory
}

func newBalanceSheet() *balanceSheet {
	return &balanceSheet{byAccount: make(map[string]beancount.Inventory)}
}

func (b *balanceSheet) add(account string, amount beancount.Amount) {
	inv, ok := b.byAccount[account]
	if !ok {
		inv = beancount.Inventory{}
		b.byAccount[account] = inv
	}
	inv.Add(amount)
}

// accounts returns the accounts holding a non-empty balance, sorted.
func (b *balanceSheet) accounts() []string {
	accounts := make([]string, 0, len(b.byAccount))
	for account, inv := range b.byAccount {
		if !inv.IsEmpty() {
			accounts = append(accounts, account)
		}
	}
	sort.Strings(accounts)
	return accounts
}
