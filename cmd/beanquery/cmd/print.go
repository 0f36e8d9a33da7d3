package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shunichi-ikebuchi/beanquery/pkg/planfile"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
	"github.com/spf13/cobra"
)

// printCmd represents the print command.
var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the entries selected by a plan's FROM clause",
	Long: `Apply the FROM clause of a query plan (filter, OPEN, CLOSE, CLEAR)
and print the resulting entries as Beancount text.

Example:
  beanquery print --plan opening-2024`,
	RunE: runPrint,
}

func init() {
	printCmd.Flags().StringVar(&planName, "plan", "", "Plan name or path (required)")
	printCmd.Flags().StringVar(&source, "source", "", "Ledger source: files or db (default from BEANQUERY_SOURCE)")

	printCmd.MarkFlagRequired("plan")
}

func runPrint(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	ledgerSource := source
	if ledgerSource == "" {
		ledgerSource = env.cfg.Ledger.Source
	}

	planPath := env.paths.ResolvePlanPath(planName)
	plan, err := planfile.Load(planPath)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	entries, err := env.loadEntries(cmd.Context(), ledgerSource)
	if err != nil {
		return err
	}

	slog.Debug("Printing entries", "plan", planPath, "entries", len(entries))
	if err := query.ExecutePrint(plan.Query.From, entries, env.options, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to print entries: %w", err)
	}
	return nil
}
