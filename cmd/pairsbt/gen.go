package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/marketdata"
)

func newGenCmd() *cobra.Command {
	opts := marketdata.DefaultSyntheticOptions()
	var (
		outputDir string
		startDate string
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a synthetic cointegrated price pair and a matching config",
		Example: `  pairsbt gen --output data/synthetic --days 756 --beta 1.2
  pairsbt run --config data/synthetic/pair.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := marketdata.ParseDate(startDate)
			if err != nil {
				return err
			}
			if !start.IsZero() {
				opts.Start = start
			}

			log.Info().
				Int("days", opts.Days).
				Float64("beta", opts.Beta).
				Float64("phi", opts.Phi).
				Int64("seed", opts.Seed).
				Str("output", outputDir).
				Msg("generating synthetic pair")

			a, b, err := marketdata.GenerateSynthetic(opts)
			if err != nil {
				return err
			}

			pathA := filepath.Join(outputDir, opts.SymbolA+".csv")
			pathB := filepath.Join(outputDir, opts.SymbolB+".csv")
			for path, col := range map[string]marketdata.Column{pathA: a, pathB: b} {
				if err := marketdata.WriteCSV(path, marketdata.DefaultPriceColumn, col); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				log.Info().Str("file", path).Int("rows", col.Len()).Msg("written")
			}

			configPath, err := writePairConfig(outputDir, opts, pathA, pathB)
			if err != nil {
				return err
			}
			log.Info().Str("file", configPath).Msg("config written")
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "data/synthetic", "Output directory")
	cmd.Flags().StringVar(&startDate, "start-date", "", "First date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.Days, "days", opts.Days, "Number of business days")
	cmd.Flags().Float64Var(&opts.Beta, "beta", opts.Beta, "True hedge ratio")
	cmd.Flags().Float64Var(&opts.Phi, "phi", opts.Phi, "AR(1) coefficient of the spread noise")
	cmd.Flags().Float64Var(&opts.NoiseStd, "noise", opts.NoiseStd, "Spread noise standard deviation")
	cmd.Flags().Float64Var(&opts.Vol, "vol", opts.Vol, "Daily volatility of leg B")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	cmd.Flags().StringVar(&opts.SymbolA, "symbol-a", opts.SymbolA, "Symbol of leg A")
	cmd.Flags().StringVar(&opts.SymbolB, "symbol-b", opts.SymbolB, "Symbol of leg B")
	return cmd
}

// writePairConfig 写出可直接运行的配置
func writePairConfig(dir string, opts marketdata.SyntheticOptions, pathA, pathB string) (string, error) {
	cfg := backtest.DefaultConfig()
	cfg.Name = opts.SymbolA + "_" + opts.SymbolB
	cfg.Data.Source = "csv"
	cfg.Data.SymbolA = opts.SymbolA
	cfg.Data.SymbolB = opts.SymbolB
	cfg.Data.CSVA = pathA
	cfg.Data.CSVB = pathB
	cfg.Data.PriceCol = marketdata.DefaultPriceColumn

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, "pair.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
