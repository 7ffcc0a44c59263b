package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairs-backtest/pkg/coint"
	"github.com/yourusername/pairs-backtest/pkg/marketdata"
)

type scanOptions struct {
	csvs     []string
	dir      string
	priceCol string
	freq     string
	start    string
	end      string
	workers  int
	top      int
	asJSON   bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Engle-Granger cointegration scan over all pairs",
		Example: `  pairsbt scan --csv XOM=data/XOM.csv --csv CVX=data/CVX.csv --csv BP=data/BP.csv
  pairsbt scan --dir data/ --top 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := scanPaths(opts)
			if err != nil {
				return err
			}
			columns, err := marketdata.LoadWide(paths, opts.priceCol)
			if err != nil {
				return err
			}
			if opts.freq != "" || opts.start != "" || opts.end != "" {
				if columns, err = alignColumns(columns, opts); err != nil {
					return err
				}
			}

			results, err := coint.ScanPairs(cmd.Context(), columns, coint.ScanOptions{
				Workers: opts.workers,
				Logger:  log.Logger,
			})
			if err != nil {
				return err
			}
			if opts.top > 0 && len(results) > opts.top {
				results = results[:opts.top]
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printScan(cmd, results)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&opts.csvs, "csv", nil, "NAME=PATH price file (repeatable)")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Directory of <NAME>.csv files")
	cmd.Flags().StringVar(&opts.priceCol, "price-col", marketdata.DefaultPriceColumn, "Price column")
	cmd.Flags().StringVar(&opts.freq, "freq", "", "Align all series to a common B/D calendar first (default: per-pair date intersection)")
	cmd.Flags().StringVar(&opts.start, "start", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.end, "end", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel workers (default: number of CPUs)")
	cmd.Flags().IntVar(&opts.top, "top", 20, "Show the N most cointegrated pairs (0 = all)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON")
	return cmd
}

func scanPaths(opts *scanOptions) (map[string]string, error) {
	paths := make(map[string]string)
	for _, arg := range opts.csvs {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid --csv %q, expected NAME=PATH", arg)
		}
		paths[name] = path
	}
	if opts.dir != "" {
		entries, err := os.ReadDir(opts.dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", opts.dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			paths[name] = filepath.Join(opts.dir, e.Name())
		}
	}
	if len(paths) < 2 {
		return nil, fmt.Errorf("need at least two price files, got %d", len(paths))
	}
	return paths, nil
}

// alignColumns 将全部品种对齐到同一日历（前向填充，丢弃任一品种缺失的行）
func alignColumns(columns map[string]marketdata.Column, opts *scanOptions) (map[string]marketdata.Column, error) {
	ds := marketdata.DataSettings{Freq: opts.freq, Start: opts.start, End: opts.end}
	alignOpts, err := ds.AlignOptions()
	if err != nil {
		return nil, err
	}
	names, timestamps, data, err := marketdata.AlignWide(columns, alignOpts)
	if err != nil {
		return nil, err
	}
	aligned := make(map[string]marketdata.Column, len(names))
	for i, name := range names {
		aligned[name] = marketdata.Column{Symbol: name, Timestamps: timestamps, Prices: data[i]}
	}
	log.Debug().Int("rows", len(timestamps)).Int("series", len(names)).Msg("series aligned")
	return aligned, nil
}

func printScan(cmd *cobra.Command, results []coint.PairResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "A\tB\tROWS\tBETA\tADF\tP-VALUE\tR2")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%.3f\t%.4f\t%.3f\n", r.A, r.B, r.Rows, r.Beta, r.ADFStat, r.PValue, r.R2)
	}
	w.Flush()
}
