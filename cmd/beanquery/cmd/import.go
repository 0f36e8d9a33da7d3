package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/db"
	"github.com/spf13/cobra"
)

var dryRun bool

// importCmd represents the import command.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import ledger files into the SQLite store",
	Long: `Parse every Beancount file under the ledger root and replace the
contents of the SQLite ledger store with the parsed entries.

Example:
  beanquery import
  beanquery import --dry-run`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse the ledger without writing the store")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	slog.Info("Parsing ledger", "root", env.paths.GetLedgerRoot())
	entries, err := beancount.NewFileSystemRepository(env.paths).LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load ledger files: %w", err)
	}
	slog.Info("Parsed ledger", "entries", len(entries))

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Would import %d entries\n", len(entries))
		return nil
	}

	conn, err := env.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.NewLedgerStore(conn).ReplaceEntries(ctx, entries); err != nil {
		return fmt.Errorf("failed to import entries: %w", err)
	}
	if err := db.NewQueryHistory(conn).SetMetadata(ctx, db.MetaLastImport, time.Now().Format(time.RFC3339)); err != nil {
		slog.Warn("Failed to update import metadata", "error", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s\n", len(entries), conn.GetPath())
	return nil
}
