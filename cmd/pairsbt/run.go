package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/logging"
)

type runOptions struct {
	configs  []string
	output   string
	beta     float64
	noReport bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pairs backtest from a YAML config",
		Example: `  pairsbt run --config configs/backtest.yaml
  pairsbt run --config a.yaml --config b.yaml --output results/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.configs) == 0 {
				return fmt.Errorf("at least one --config is required")
			}
			return runBacktests(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.configs, "config", "c", nil, "Config file (repeatable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Override output.result_dir")
	cmd.Flags().Float64Var(&opts.beta, "beta", 0, "Override the hedge ratio")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "Do not write report files")
	return cmd
}

func runBacktests(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	configs := make([]*backtest.Config, 0, len(opts.configs))
	for _, path := range opts.configs {
		cfg, err := backtest.LoadConfig(path)
		if err != nil {
			return err
		}
		if opts.output != "" {
			cfg.Output.ResultDir = opts.output
		}
		if cmd.Flags().Changed("beta") {
			beta := opts.beta
			cfg.Strategy.Beta = &beta
		}
		if opts.noReport {
			cfg.Output.GenerateReport = false
			cfg.Output.SaveSeries = false
		}
		configs = append(configs, cfg)
	}

	// 配置文件中的日志级别只在命令行未指定时生效
	if !cmd.Flags().Changed("log-level") && configs[0].Logging.Level != "" {
		log.Logger = logging.New(configs[0].Logging.Level, configs[0].Logging.Console)
	}

	// 批量运行共用第一个配置的引擎设置
	s, err := openSinks(ctx, configs[0].Engine, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	outputs, err := backtest.RunBatch(ctx, configs, log.Logger, s.attach)
	for _, out := range outputs {
		backtest.PrintSummary(cmd.OutOrStdout(), out)
	}
	return err
}
