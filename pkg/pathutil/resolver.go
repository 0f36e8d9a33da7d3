// Package pathutil provides centralized path management for ledger files, the
// ledger database, ledger options and query plans.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver manages paths for Beancount files, database, options and plans.
type PathResolver struct {
	ledgerRoot   string
	databasePath string
	optionsPath  string
	plansDir     string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// LedgerRoot is the root directory for all Beancount files (e.g., ~/accounting/ledger)
	LedgerRoot string
	// DatabasePath is the path to the SQLite ledger database
	DatabasePath string
	// OptionsPath is the path to the YAML ledger options file
	OptionsPath string
	// PlansDir is the directory holding YAML query plans
	PlansDir string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {LedgerRoot}/.beanquery/ledger.db
// If OptionsPath is empty, it defaults to {LedgerRoot}/options.yaml
// If PlansDir is empty, it defaults to {LedgerRoot}/plans
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.LedgerRoot, ".beanquery", "ledger.db")
	}

	optionsPath := config.OptionsPath
	if optionsPath == "" {
		optionsPath = filepath.Join(config.LedgerRoot, "options.yaml")
	}

	plansDir := config.PlansDir
	if plansDir == "" {
		plansDir = filepath.Join(config.LedgerRoot, "plans")
	}

	return &PathResolver{
		ledgerRoot:   config.LedgerRoot,
		databasePath: dbPath,
		optionsPath:  optionsPath,
		plansDir:     plansDir,
	}
}

// GetLedgerRoot returns the ledger root directory.
func (p *PathResolver) GetLedgerRoot() string {
	return p.ledgerRoot
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetOptionsPath returns the ledger options file path.
func (p *PathResolver) GetOptionsPath() string {
	return p.optionsPath
}

// GetYearDir returns the directory path for a year.
// Example: ~/accounting/ledger/2024
func (p *PathResolver) GetYearDir(year string) string {
	return filepath.Join(p.ledgerRoot, year)
}

// GetMonthFilePath returns the file path for a month.
// yearMonth should be in YYYY-MM format.
// Example: ~/accounting/ledger/2024/2024-01.beancount
func (p *PathResolver) GetMonthFilePath(yearMonth string) (string, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid year-month format: %s. Expected YYYY-MM", yearMonth)
	}

	year := parts[0]
	yearDir := p.GetYearDir(year)
	filename := fmt.Sprintf("%s.beancount", yearMonth)

	return filepath.Join(yearDir, filename), nil
}

// ResolvePlanPath returns the path of a query plan. Names without a directory
// component are looked up in the plans directory, with ".yaml" appended when
// no extension is given.
func (p *PathResolver) ResolvePlanPath(name string) string {
	if name == "" || strings.ContainsRune(name, filepath.Separator) || p.FileExists(name) {
		return name
	}
	if filepath.Ext(name) == "" {
		name += ".yaml"
	}
	return filepath.Join(p.plansDir, name)
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return p.EnsureDir(dir)
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// IsDir checks if a path is a directory.
func (p *PathResolver) IsDir(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
