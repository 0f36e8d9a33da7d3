package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountType(t *testing.T) {
	opts := DefaultOptions()

	tests := []struct {
		account         string
		expected        AccountType
		ok              bool
		incomeStatement bool
		balanceSheet    bool
	}{
		{"Assets:Bank:Checking", Assets, true, false, true},
		{"Liabilities:CreditCard", Liabilities, true, false, true},
		{"Equity:Opening-Balances", Equity, true, false, true},
		{"Income:Salary", Income, true, true, false},
		{"Expenses:Food:Restaurant", Expenses, true, true, false},
		{"Expenses", Expenses, true, true, false},
		{"Assetsx:Bank", "", false, false, false},
		{"Other:Thing", "", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.account, func(t *testing.T) {
			got, ok := opts.AccountType(tt.account)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.incomeStatement, opts.IsIncomeStatement(tt.account))
			assert.Equal(t, tt.balanceSheet, opts.IsBalanceSheet(tt.account))
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	content := `account_types:
  income: Revenue
account_current_earnings: Equity:Retained:Current
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, "Revenue", opts.AccountTypes.Income)
	assert.Equal(t, "Assets", opts.AccountTypes.Assets, "absent fields keep defaults")
	assert.Equal(t, "Equity:Retained:Current", opts.AccountCurrentEarnings)
	assert.Equal(t, "Equity:Earnings:Previous", opts.AccountPreviousEarnings)
	assert.True(t, opts.IsIncomeStatement("Revenue:Sales"))
	assert.False(t, opts.IsIncomeStatement("Income:Sales"))
}

func TestLoadOptionsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("account_types: [1, 2"), 0644))
	_, err = LoadOptions(invalid)
	assert.Error(t, err)

	blank := filepath.Join(dir, "blank.yaml")
	require.NoError(t, os.WriteFile(blank, []byte("account_opening_balances: \"\"\n"), 0644))
	_, err = LoadOptions(blank)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_opening_balances")
}
