package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/publish"
	"github.com/yourusername/pairs-backtest/pkg/server"
	"github.com/yourusername/pairs-backtest/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		grpcAddr      string
		metricsAddr   string
		resultDir     string
		maxConcurrent int
		engine        backtest.EngineSettings
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve backtests over gRPC with Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			metrics := telemetry.New()

			s, err := openSinks(ctx, engine, metrics)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := server.NewService(log.Logger, server.Options{
				ResultDir:     resultDir,
				MaxConcurrent: maxConcurrent,
				Setup:         s.attach,
			})
			grpcServer := server.NewGRPCServer(svc)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.ListenAndServe(gctx, grpcAddr, grpcServer, log.Logger)
			})
			if metricsAddr != "" {
				g.Go(func() error {
					return metrics.ListenAndServe(gctx, metricsAddr, log.Logger)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50061", "gRPC listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9108", "Prometheus listen address (empty to disable)")
	cmd.Flags().StringVar(&resultDir, "result-dir", "", "Override output.result_dir of incoming configs")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 4, "Maximum concurrent backtests")
	cmd.Flags().StringVar(&engine.NATSURL, "nats-url", "", "Publish summaries to this NATS server")
	cmd.Flags().StringVar(&engine.NATSSubject, "nats-subject", publish.DefaultSubject, "NATS subject prefix")
	cmd.Flags().StringVar(&engine.DatabaseDSN, "database-dsn", "", "Persist runs to this PostgreSQL DSN")
	return cmd
}
