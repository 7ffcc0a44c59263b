package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairs-backtest/pkg/logging"
)

var version = "v0.3.0"

var (
	logLevel   string
	logConsole bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = logging.New("info", true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pairsbt",
		Short:         "Pairs trading backtester",
		Long:          "pairsbt 对两条价格序列做协整检验，按 z-score 迟滞规则生成信号并模拟执行（含成本、融券费、总敞口上限）。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = logging.New(logLevel, logConsole)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "console", true, "Human-readable console logs (false for JSON)")

	rootCmd.AddCommand(newRunCmd(), newScanCmd(), newGenCmd(), newServeCmd(), newWatchCmd(), newRunsCmd())
	return rootCmd
}
