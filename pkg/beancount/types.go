// Package beancount provides the ledger data model, a text parser and printer,
// and repository pattern for Beancount file operations.
package beancount

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the date format used throughout Beancount files.
const DateLayout = "2006-01-02"

// Kind identifies the type of a directive.
type Kind string

const (
	KindOpen        Kind = "open"
	KindTransaction Kind = "transaction"
	KindNote        Kind = "note"
	KindClose       Kind = "close"
)

// kindOrder is the sort rank of directives sharing the same date.
var kindOrder = map[Kind]int{
	KindOpen:        0,
	KindTransaction: 1,
	KindNote:        2,
	KindClose:       3,
}

// Directive is a dated ledger entry.
type Directive interface {
	GetDate() time.Time
	Kind() Kind
}

// Amount is a number of units of a currency.
type Amount struct {
	Number   decimal.Decimal
	Currency string
}

// NewAmount creates an Amount from a decimal string. It panics on invalid input
// and is intended for literals in code and tests.
func NewAmount(number, currency string) Amount {
	return Amount{Number: decimal.RequireFromString(number), Currency: currency}
}

// String formats the amount as "<number> <currency>".
func (a Amount) String() string {
	return a.Number.String() + " " + a.Currency
}

// Cost is the acquisition cost basis of a posting.
type Cost struct {
	Number   decimal.Decimal
	Currency string
	Date     time.Time // zero if unspecified
	Label    string
}

// Posting represents a posting in a Beancount transaction.
type Posting struct {
	Flag    string            // Optional posting flag
	Account string            // Account name (e.g., "Assets:Bank:Checking")
	Units   Amount            // Units held or transferred
	Cost    *Cost             // Cost basis (optional)
	Price   *Amount           // Per-unit price (optional)
	Meta    map[string]string // Metadata key-value pairs
}

// Weight returns the amount the posting contributes to the transaction balance:
// units at cost if held at cost, units at price if priced, units otherwise.
func (p *Posting) Weight() Amount {
	if p.Cost != nil {
		return Amount{Number: p.Units.Number.Mul(p.Cost.Number), Currency: p.Cost.Currency}
	}
	if p.Price != nil {
		return Amount{Number: p.Units.Number.Mul(p.Price.Number), Currency: p.Price.Currency}
	}
	return p.Units
}

// Transaction represents a Beancount transaction.
type Transaction struct {
	Date      time.Time
	Flag      string            // "*", "!", or a synthesized flag such as "S"
	Payee     string            // Payee name (optional)
	Narration string            // Transaction description
	Tags      []string          // Tags (without the leading '#')
	Links     []string          // Links (without the leading '^')
	Meta      map[string]string // Metadata key-value pairs
	Postings  []Posting         // Transaction postings
}

func (t *Transaction) GetDate() time.Time { return t.Date }
func (t *Transaction) Kind() Kind         { return KindTransaction }

// Open declares an account.
type Open struct {
	Date       time.Time
	Account    string
	Currencies []string
	Meta       map[string]string
}

func (o *Open) GetDate() time.Time { return o.Date }
func (o *Open) Kind() Kind         { return KindOpen }

// Close retires an account.
type Close struct {
	Date    time.Time
	Account string
	Meta    map[string]string
}

func (c *Close) GetDate() time.Time { return c.Date }
func (c *Close) Kind() Kind         { return KindClose }

// Note attaches a dated comment to an account.
type Note struct {
	Date    time.Time
	Account string
	Comment string
	Meta    map[string]string
}

func (n *Note) GetDate() time.Time { return n.Date }
func (n *Note) Kind() Kind         { return KindNote }

// SortEntries sorts directives by date and then by kind, keeping the
// relative order of equal entries.
func SortEntries(entries []Directive) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].GetDate(), entries[j].GetDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return kindOrder[entries[i].Kind()] < kindOrder[entries[j].Kind()]
	})
}

// Inventory accumulates units per currency.
type Inventory map[string]decimal.Decimal

// Add adds an amount to the inventory, dropping currencies that reach zero.
func (inv Inventory) Add(a Amount) {
	sum := inv[a.Currency].Add(a.Number)
	if sum.IsZero() {
		delete(inv, a.Currency)
		return
	}
	inv[a.Currency] = sum
}

// Currencies returns the inventory currencies in sorted order.
func (inv Inventory) Currencies() []string {
	currencies := make([]string, 0, len(inv))
	for currency := range inv {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	return currencies
}

// Amounts returns the inventory content sorted by currency.
func (inv Inventory) Amounts() []Amount {
	amounts := make([]Amount, 0, len(inv))
	for _, currency := range inv.Currencies() {
		amounts = append(amounts, Amount{Number: inv[currency], Currency: currency})
	}
	return amounts
}

// IsEmpty reports whether the inventory holds nothing.
func (inv Inventory) IsEmpty() bool {
	return len(inv) == 0
}

// String formats the inventory as comma-separated amounts sorted by currency.
func (inv Inventory) String() string {
	parts := make([]string, 0, len(inv))
	for _, a := range inv.Amounts() {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
