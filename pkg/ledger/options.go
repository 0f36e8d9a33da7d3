// Package ledger provides the ledger options: the account-type taxonomy and
// the equity accounts used when summarizing periods.
package ledger

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccountType is one of the five root account categories.
type AccountType string

const (
	Assets      AccountType = "assets"
	Liabilities AccountType = "liabilities"
	Equity      AccountType = "equity"
	Income      AccountType = "income"
	Expenses    AccountType = "expenses"
)

// AccountTypes maps each category to the root component naming it.
type AccountTypes struct {
	Assets      string `yaml:"assets"`
	Liabilities string `yaml:"liabilities"`
	Equity      string `yaml:"equity"`
	Income      string `yaml:"income"`
	Expenses    string `yaml:"expenses"`
}

// Options represents the ledger configuration consumed by summarization.
type Options struct {
	AccountTypes AccountTypes `yaml:"account_types"`

	// AccountPreviousEarnings receives income and expenses accrued before an
	// OPEN date.
	AccountPreviousEarnings string `yaml:"account_previous_earnings"`
	// AccountCurrentEarnings receives income and expenses zeroed by CLEAR.
	AccountCurrentEarnings string `yaml:"account_current_earnings"`
	// AccountOpeningBalances balances the synthesized opening entries.
	AccountOpeningBalances string `yaml:"account_opening_balances"`
}

// DefaultOptions returns the standard Beancount account names.
func DefaultOptions() Options {
	return Options{
		AccountTypes: AccountTypes{
			Assets:      "Assets",
			Liabilities: "Liabilities",
			Equity:      "Equity",
			Income:      "Income",
			Expenses:    "Expenses",
		},
		AccountPreviousEarnings: "Equity:Earnings:Previous",
		AccountCurrentEarnings:  "Equity:Earnings:Current",
		AccountOpeningBalances:  "Equity:Opening-Balances",
	}
}

// LoadOptions reads options from a YAML file. Fields absent from the file keep
// their default values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read options file: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate checks that every root and equity account is set.
func (o Options) Validate() error {
	var missing []string
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	check("account_types.assets", o.AccountTypes.Assets)
	check("account_types.liabilities", o.AccountTypes.Liabilities)
	check("account_types.equity", o.AccountTypes.Equity)
	check("account_types.income", o.AccountTypes.Income)
	check("account_types.expenses", o.AccountTypes.Expenses)
	check("account_previous_earnings", o.AccountPreviousEarnings)
	check("account_current_earnings", o.AccountCurrentEarnings)
	check("account_opening_balances", o.AccountOpeningBalances)

	if len(missing) > 0 {
		return fmt.Errorf("missing ledger options: %v", missing)
	}
	return nil
}

// AccountType returns the category of an account from its root component.
// The boolean is false for accounts outside the taxonomy.
func (o Options) AccountType(account string) (AccountType, bool) {
	root, _, _ := strings.Cut(account, ":")
	switch root {
	case o.AccountTypes.Assets:
		return Assets, true
	case o.AccountTypes.Liabilities:
		return Liabilities, true
	case o.AccountTypes.Equity:
		return Equity, true
	case o.AccountTypes.Income:
		return Income, true
	case o.AccountTypes.Expenses:
		return Expenses, true
	}
	return "", false
}

// IsIncomeStatement reports whether the account is an income or expense account.
func (o Options) IsIncomeStatement(account string) bool {
	t, ok := o.AccountType(account)
	return ok && (t == Income || t == Expenses)
}

// IsBalanceSheet reports whether the account is an asset, liability or equity account.
func (o Options) IsBalanceSheet(account string) bool {
	t, ok := o.AccountType(account)
	return ok && (t == Assets || t == Liabilities || t == Equity)
}
