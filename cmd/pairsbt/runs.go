package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/pairs-backtest/pkg/store"
)

func newRunsCmd() *cobra.Command {
	var (
		dsn   string
		limit int
		show  string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List backtest runs recorded in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return errors.New("--database-dsn is required")
			}
			s, err := store.Open(cmd.Context(), store.DefaultConfig(dsn))
			if err != nil {
				return err
			}
			defer s.Close()

			if show != "" {
				rec, err := s.GetRun(cmd.Context(), show)
				if err != nil {
					return fmt.Errorf("run %s: %w", show, err)
				}
				summary, err := rec.DecodeSummary()
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			records, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "database-dsn", "", "PostgreSQL DSN")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of runs")
	cmd.Flags().StringVar(&show, "show", "", "Print the full summary of one run ID")
	return cmd
}

func printRuns(out io.Writer, records []store.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPAIR\tPERIOD\tBETA\tP-VALUE\tEQUITY\tSHARPE\tTRADES\tCREATED")
	for _, r := range records {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s..%s\t%.4f\t%.4f\t%.2f\t%.2f\t%d\t%s\n",
			id, r.Name, r.SymbolA, r.SymbolB, r.PeriodStart, r.PeriodEnd, r.Beta, r.PValue,
			r.FinalEquity, r.Sharpe, r.TotalTrades, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}
