// Package telemetry 暴露回测运行的 Prometheus 指标
package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
)

const namespace = "pairsbt"

// Metrics 回测运行指标，实现 backtest.Recorder
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	FinalEquity *prometheus.GaugeVec
	Sharpe      *prometheus.GaugeVec
	Trades      *prometheus.GaugeVec
}

// New 创建指标并注册到独立的 registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "runs_total", Help: "Backtest runs by status"},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of backtest runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		FinalEquity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "final_equity", Help: "Cumulative PnL of the last run per pair"},
			[]string{"pair"},
		),
		Sharpe: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "sharpe", Help: "Annualized Sharpe ratio of the last run per pair"},
			[]string{"pair"},
		),
		Trades: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "trades", Help: "Round-trip trades of the last run per pair"},
			[]string{"pair"},
		),
	}
	m.registry.MustRegister(m.RunsTotal, m.RunDuration, m.FinalEquity, m.Sharpe, m.Trades)
	return m
}

// Registry 返回内部 registry（测试用）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun 记录一次运行
func (m *Metrics) ObserveRun(out *backtest.RunOutput, err error, elapsed time.Duration) {
	m.RunDuration.Observe(elapsed.Seconds())
	if err != nil || out == nil {
		m.RunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()

	pair := out.Name
	m.FinalEquity.WithLabelValues(pair).Set(out.Result.FinalEquity())
	m.Sharpe.WithLabelValues(pair).Set(out.Metrics.SharpeRatio)
	m.Trades.WithLabelValues(pair).Set(float64(out.Metrics.TotalTrades))
}

// Handler /metrics handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ListenAndServe 在 addr 上暴露 /metrics，直到 ctx 结束
// 端口绑定失败立即返回错误
func (m *Metrics) ListenAndServe(ctx context.Context, addr string, logger zerolog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return m.serve(ctx, lis, logger)
}

func (m *Metrics) serve(ctx context.Context, lis net.Listener, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("metrics listening")
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
