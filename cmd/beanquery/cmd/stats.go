package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shunichi-ikebuchi/beanquery/pkg/db"
	"github.com/spf13/cobra"
)

var recentCount int

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display ledger store and query statistics",
	Long: `Display statistics about the SQLite ledger store and query history.

Shows:
- Number of stored entries and postings
- Number of query runs and failures
- Last import and last query timestamps
- The most recent query runs

Example:
  beanquery stats
  beanquery stats --recent 10`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&recentCount, "recent", 5, "Number of recent query runs to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	conn, err := env.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	history := db.NewQueryHistory(conn)
	stats, err := history.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	fmt.Fprintln(out, "\n=== Ledger Store ===")
	fmt.Fprintf(out, "Entries:      %d\n", stats.TotalEntries)
	fmt.Fprintf(out, "Postings:     %d\n", stats.TotalPostings)
	if stats.LastImport.Valid {
		fmt.Fprintf(out, "Last import:  %s\n", stats.LastImport.String)
	} else {
		fmt.Fprintf(out, "Last import:  (never)\n")
	}

	fmt.Fprintln(out, "\n=== Query History ===")
	fmt.Fprintf(out, "Total runs:   %d\n", stats.TotalRuns)
	fmt.Fprintf(out, "Failed runs:  %d\n", stats.FailedRuns)
	if stats.LastRun.Valid {
		fmt.Fprintf(out, "Last run:     %s\n", stats.LastRun.String)
	} else {
		fmt.Fprintf(out, "Last run:     (never)\n")
	}

	if recentCount > 0 {
		runs, err := history.RecentRuns(ctx, recentCount)
		if err != nil {
			return fmt.Errorf("failed to get recent runs: %w", err)
		}
		if len(runs) > 0 {
			fmt.Fprintln(out)
			for _, run := range runs {
				status := fmt.Sprintf("%d rows", run.RowCount)
				if run.Error != "" {
					status = "error: " + run.Error
				}
				fmt.Fprintf(out, "%s  %-24s %-5s %6dms  %s\n",
					run.ExecutedAt.Format("2006-01-02 15:04:05"), run.PlanName, run.Source,
					run.Duration.Milliseconds(), status)
			}
		}
	}

	fmt.Fprintln(out)

	slog.Debug("Statistics displayed successfully")
	return nil
}
