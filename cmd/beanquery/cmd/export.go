package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/db"
	"github.com/shunichi-ikebuchi/beanquery/pkg/pathutil"
	"github.com/spf13/cobra"
)

var exportDir string

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the SQLite store to monthly Beancount files",
	Long: `Write the entries of the SQLite ledger store to monthly Beancount
files ({dir}/{YYYY}/{YYYY-MM}.beancount).

The target directory must not already contain monthly files for the
exported months.

Example:
  beanquery export --dir ./restored`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "Target directory (required)")

	exportCmd.MarkFlagRequired("dir")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	conn, err := env.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	entries, err := db.NewLedgerStore(conn).LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger store: %w", err)
	}

	repo := beancount.NewFileSystemRepository(pathutil.New(pathutil.Config{LedgerRoot: exportDir}))
	months := make(map[string]bool)
	for _, entry := range entries {
		month := entry.GetDate().Format("2006-01")
		if months[month] {
			continue
		}
		if repo.MonthFileExists(month) {
			return fmt.Errorf("month file for %s already exists in %s", month, exportDir)
		}
		months[month] = true
	}

	for _, entry := range entries {
		if err := repo.AppendEntry(entry); err != nil {
			return fmt.Errorf("failed to export entry dated %s: %w", entry.GetDate().Format(beancount.DateLayout), err)
		}
	}

	if err := db.NewQueryHistory(conn).SetMetadata(ctx, db.MetaLastExport, time.Now().Format(time.RFC3339)); err != nil {
		slog.Warn("Failed to update export metadata", "error", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries into %d monthly files\n", len(entries), len(months))
	return nil
}
