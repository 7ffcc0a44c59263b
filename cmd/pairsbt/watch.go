package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/publish"
)

func newWatchCmd() *cobra.Command {
	var (
		natsURL string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print run summaries published on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := publish.Connect(natsURL)
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			sub, err := publish.Subscribe(conn, subject, func(subj string, s backtest.Summary) {
				fmt.Fprintf(out, "%s  %s %s/%s  periods=%d beta=%.4f p=%.4f equity=%.2f sharpe=%.2f trades=%d\n",
					subj, s.Name, s.SymbolA, s.SymbolB, s.Periods, s.Beta, s.PValue,
					s.FinalEquity, s.Metrics.SharpeRatio, s.Metrics.TotalTrades)
			}, func(err error) {
				log.Warn().Err(err).Msg("bad message")
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			log.Info().Str("subject", subject).Msg("watching")
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", "nats://localhost:4222", "NATS server")
	cmd.Flags().StringVar(&subject, "subject", publish.DefaultSubject+".>", "Subject pattern")
	return cmd
}
