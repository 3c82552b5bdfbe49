package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"leafscan/internal/repository/sqlite"
)

func newRootCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "cleandb",
		Short: "Repair stored confidence values and print history statistics",
		Long: `cleandb rewrites confidence values that were stored as text or blobs
by older clients, then prints a summary of the prediction history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(dbPath); err != nil {
				return errors.Wrapf(err, "database %s", dbPath)
			}

			db, err := sqlite.New(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := sqlite.NewPredictionRepository(db)
			out := cmd.OutOrStdout()

			fixed, err := repo.RepairConfidence()
			if err != nil {
				return errors.Wrap(err, "repair failed")
			}
			fmt.Fprintf(out, "Fixed %d records with invalid confidence values\n", fixed)

			stats, err := repo.Statistics()
			if err != nil {
				return errors.Wrap(err, "statistics failed")
			}
			fmt.Fprintf(out, "Total predictions: %d\n", stats.TotalPredictions)
			fmt.Fprintf(out, "Average confidence: %.2f%%\n", stats.AvgConfidence)
			fmt.Fprintf(out, "Last 7 days: %d\n", stats.RecentPredictions)
			for _, c := range stats.CommonDiseases {
				fmt.Fprintf(out, "  %-30s %d\n", c.Name, c.Count)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "predictions.db", "SQLite database file")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
