// Package config provides configuration management for beanquery.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Ledger sources accepted in BEANQUERY_SOURCE.
const (
	SourceFiles = "files"
	SourceDB    = "db"
)

// Config represents the application configuration.
type Config struct {
	Ledger LedgerConfig
	Debug  bool
}

// LedgerConfig represents the ledger location and query settings.
type LedgerConfig struct {
	Root        string
	DBPath      string
	OptionsPath string
	PlansDir    string
	Source      string
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	source := strings.ToLower(getEnvOrDefault("BEANQUERY_SOURCE", SourceFiles))
	if source != SourceFiles && source != SourceDB {
		return nil, fmt.Errorf("invalid BEANQUERY_SOURCE %q: must be %q or %q", source, SourceFiles, SourceDB)
	}

	config := &Config{
		Ledger: LedgerConfig{
			Root:        getEnvOrDefault("BEANQUERY_ROOT", "./ledger"),
			DBPath:      os.Getenv("BEANQUERY_DB_PATH"),
			OptionsPath: os.Getenv("BEANQUERY_OPTIONS"),
			PlansDir:    os.Getenv("BEANQUERY_PLANS_DIR"),
			Source:      source,
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate checks that every required setting is set.
// Each path names a setting, e.g. []string{"ledger", "root"}.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 || path[0] != "ledger" {
			continue
		}

		var value string
		switch path[1] {
		case "root":
			value = c.Ledger.Root
		case "dbPath":
			value = c.Ledger.DBPath
		case "optionsPath":
			value = c.Ledger.OptionsPath
		case "plansDir":
			value = c.Ledger.PlansDir
		case "source":
			value = c.Ledger.Source
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
