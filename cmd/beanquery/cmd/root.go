// Package cmd provides CLI commands for beanquery.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/config"
	"github.com/shunichi-ikebuchi/beanquery/pkg/db"
	"github.com/shunichi-ikebuchi/beanquery/pkg/ledger"
	"github.com/shunichi-ikebuchi/beanquery/pkg/pathutil"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "beanquery",
	Short: "Run aggregation queries over Beancount ledgers",
	Long: `beanquery runs compiled query plans over a Beancount ledger.

It supports:
- Filtering and summarizing entries (OPEN, CLOSE, CLEAR)
- Per-posting projections and grouped aggregates
- Ordering, DISTINCT and LIMIT
- Loading the ledger from files or from a SQLite store

Example:
  beanquery query --plan expenses-by-account
  beanquery import
  beanquery stats`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug || os.Getenv("DEBUG") == "true" {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
}

// environment is the configuration shared by all commands.
type environment struct {
	cfg     *config.Config
	paths   *pathutil.PathResolver
	options ledger.Options
}

// loadEnvironment loads the configuration, path resolver and ledger options.
// Missing options files fall back to the default account taxonomy.
func loadEnvironment() (*environment, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate([]string{"ledger", "root"}); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	paths := pathutil.New(pathutil.Config{
		LedgerRoot:   cfg.Ledger.Root,
		DatabasePath: cfg.Ledger.DBPath,
		OptionsPath:  cfg.Ledger.OptionsPath,
		PlansDir:     cfg.Ledger.PlansDir,
	})

	options := ledger.DefaultOptions()
	if optionsPath := paths.GetOptionsPath(); paths.FileExists(optionsPath) {
		slog.Debug("Loading ledger options", "path", optionsPath)
		if options, err = ledger.LoadOptions(optionsPath); err != nil {
			return nil, fmt.Errorf("failed to load ledger options: %w", err)
		}
	}

	return &environment{cfg: cfg, paths: paths, options: options}, nil
}

// loadEntries loads the ledger from files or from the SQLite store.
func (env *environment) loadEntries(ctx context.Context, source string) ([]beancount.Directive, error) {
	switch source {
	case config.SourceFiles:
		slog.Debug("Loading ledger files", "root", env.paths.GetLedgerRoot())
		entries, err := beancount.NewFileSystemRepository(env.paths).LoadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger files: %w", err)
		}
		return entries, nil
	case config.SourceDB:
		conn, err := env.openDB()
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		entries, err := db.NewLedgerStore(conn).LoadEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger store: %w", err)
		}
		return entries, nil
	}
	return nil, fmt.Errorf("unknown ledger source %q", source)
}

func (env *environment) openDB() (*db.Connection, error) {
	dbPath := env.paths.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return conn, nil
}
