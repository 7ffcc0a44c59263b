package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/publish"
	"github.com/yourusername/pairs-backtest/pkg/store"
	"github.com/yourusername/pairs-backtest/pkg/telemetry"
)

// sinks 可选的结果输出：NATS、Postgres、Prometheus
type sinks struct {
	publisher *publish.Publisher
	store     *store.PostgresStore
	metrics   *telemetry.Metrics
	closers   []func()
}

// openSinks 按引擎配置连接外部依赖，未配置的跳过
func openSinks(ctx context.Context, engine backtest.EngineSettings, metrics *telemetry.Metrics) (*sinks, error) {
	s := &sinks{metrics: metrics}

	if engine.NATSURL != "" {
		conn, err := publish.Connect(engine.NATSURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, conn.Close)
		s.publisher = publish.NewPublisher(conn, engine.NATSSubject)
		log.Info().Str("url", engine.NATSURL).Str("subject", engine.NATSSubject).Msg("publishing results to NATS")
	}

	if engine.DatabaseDSN != "" {
		st, err := store.Open(ctx, store.DefaultConfig(engine.DatabaseDSN))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { st.Close() })
		if err := st.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to prepare database: %w", err)
		}
		s.store = st
		log.Info().Msg("persisting results to postgres")
	}
	return s, nil
}

// attach 挂载到 runner
func (s *sinks) attach(r *backtest.Runner) {
	if s.publisher != nil {
		r.SetPublisher(s.publisher)
	}
	if s.store != nil {
		r.SetStore(s.store)
	}
	if s.metrics != nil {
		r.SetRecorder(s.metrics)
	}
}

// Close 逆序关闭
func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
