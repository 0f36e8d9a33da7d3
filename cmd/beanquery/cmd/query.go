package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shunichi-ikebuchi/beanquery/pkg/db"
	"github.com/shunichi-ikebuchi/beanquery/pkg/planfile"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
	"github.com/shunichi-ikebuchi/beanquery/pkg/render"
	"github.com/spf13/cobra"
)

var (
	planName  string
	source    string
	format    string
	noHistory bool
)

// queryCmd represents the query command.
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Execute a query plan",
	Long: `Execute a YAML query plan over the ledger and print the result table.

The plan is looked up in the plans directory when given by name.
Each run is recorded in the query history of the SQLite store.

Example:
  beanquery query --plan expenses-by-account
  beanquery query --plan ./plans/balances.yaml --source db --format csv`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&planName, "plan", "", "Plan name or path (required)")
	queryCmd.Flags().StringVar(&source, "source", "", "Ledger source: files or db (default from BEANQUERY_SOURCE)")
	queryCmd.Flags().StringVar(&format, "format", string(render.FormatText), "Output format: text or csv")
	queryCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the query history")

	queryCmd.MarkFlagRequired("plan")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	outputFormat, err := render.ParseFormat(format)
	if err != nil {
		return err
	}
	ledgerSource := source
	if ledgerSource == "" {
		ledgerSource = env.cfg.Ledger.Source
	}

	planPath := env.paths.ResolvePlanPath(planName)
	slog.Info("Running query", "plan", planPath, "source", ledgerSource)

	start := time.Now()
	plan, err := planfile.Load(planPath)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	entries, err := env.loadEntries(ctx, ledgerSource)
	if err != nil {
		return err
	}

	result, runErr := query.Execute(ctx, plan.Query, entries, env.options, query.WithLogger(slog.Default()))
	elapsed := time.Since(start)

	if !noHistory {
		run := db.QueryRun{
			PlanName: plan.Name,
			PlanPath: planPath,
			Source:   db.Source(ledgerSource),
			Duration: elapsed,
		}
		if runErr != nil {
			run.Error = runErr.Error()
		} else {
			run.RowCount = len(result.Rows)
		}
		if err := recordRun(cmd, env, run); err != nil {
			slog.Warn("Failed to record query run", "error", err)
		}
	}

	if runErr != nil {
		var orderErr *query.OrderingError
		if errors.As(runErr, &orderErr) {
			slog.Error("Result rows could not be ordered", "key_index", orderErr.Index)
		}
		return fmt.Errorf("failed to execute query: %w", runErr)
	}

	if err := render.Write(cmd.OutOrStdout(), result, outputFormat); err != nil {
		return err
	}

	slog.Info("Query completed", "rows", len(result.Rows), "duration", elapsed)
	return nil
}

func recordRun(cmd *cobra.Command, env *environment, run db.QueryRun) error {
	conn, err := env.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	id, err := db.NewQueryHistory(conn).RecordRun(cmd.Context(), run)
	if err != nil {
		return err
	}
	slog.Debug("Recorded query run", "id", id)
	return nil
}
