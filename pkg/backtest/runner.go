package backtest

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/pairs-backtest/pkg/coint"
	"github.com/yourusername/pairs-backtest/pkg/marketdata"
	"github.com/yourusername/pairs-backtest/pkg/signal"
	"github.com/yourusername/pairs-backtest/pkg/spread"
)

// 对冲比率来源
const (
	BetaSourceEngleGranger = "engle_granger"
	BetaSourceConfig       = "config"
)

// Publisher 发布回测结果（NATS）
type Publisher interface {
	PublishRun(ctx context.Context, out *RunOutput) error
}

// RunStore 持久化回测结果（Postgres）
type RunStore interface {
	Record(ctx context.Context, out *RunOutput) error
}

// Recorder 记录运行指标（Prometheus）
type Recorder interface {
	ObserveRun(out *RunOutput, err error, elapsed time.Duration)
}

// Runner 串联 数据 -> 协整 -> spread -> z -> 信号 -> 模拟 -> 统计 -> 输出
type Runner struct {
	config *Config
	logger zerolog.Logger

	prices    *marketdata.PriceTable
	publisher Publisher
	store     RunStore
	recorder  Recorder
}

// NewRunner creates a new backtest runner
func NewRunner(config *Config, logger zerolog.Logger) *Runner {
	return &Runner{
		config: config,
		logger: logger.With().Str("run", config.Name).Logger(),
	}
}

// SetPrices 直接提供价格表，跳过 CSV 读取
func (r *Runner) SetPrices(prices *marketdata.PriceTable) {
	r.prices = prices
}

// SetPublisher attaches a result publisher
func (r *Runner) SetPublisher(p Publisher) {
	r.publisher = p
}

// SetStore attaches a result store
func (r *Runner) SetStore(s RunStore) {
	r.store = s
}

// SetRecorder attaches a metrics recorder
func (r *Runner) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Run executes the backtest
func (r *Runner) Run(ctx context.Context) (*RunOutput, error) {
	start := time.Now()
	out, err := r.run(ctx)
	elapsed := time.Since(start)

	if r.recorder != nil {
		r.recorder.ObserveRun(out, err, elapsed)
	}
	if err != nil {
		return nil, err
	}

	out.StartTime = start
	out.EndTime = start.Add(elapsed)
	out.Duration = elapsed
	r.deliver(ctx, out)

	r.logger.Info().
		Str("run_id", out.RunID).
		Float64("final_equity", out.Result.FinalEquity()).
		Float64("sharpe", out.Metrics.SharpeRatio).
		Dur("elapsed", elapsed).
		Msg("backtest completed")
	return out, nil
}

func (r *Runner) run(ctx context.Context) (*RunOutput, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	cfg := r.config

	out := &RunOutput{
		RunID:  uuid.NewString(),
		Name:   cfg.Name,
		Config: cfg,
	}

	r.logger.Info().Msg("[1/6] loading prices")
	prices := r.prices
	if prices == nil {
		loaded, err := marketdata.LoadPair(cfg.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices: %w", err)
		}
		prices = loaded
	}
	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("invalid price table: %w", err)
	}
	if prices.Len() < cfg.Strategy.Lookback {
		return nil, fmt.Errorf("%d rows is shorter than lookback %d", prices.Len(), cfg.Strategy.Lookback)
	}
	out.SymbolA, out.SymbolB = prices.SymbolA, prices.SymbolB
	r.logger.Info().Int("rows", prices.Len()).Str("a", prices.SymbolA).Str("b", prices.SymbolB).Msg("prices loaded")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.logger.Info().Msg("[2/6] estimating hedge ratio")
	eg, err := coint.EngleGranger(prices.A, prices.B)
	switch {
	case err == nil:
		out.Coint = eg
		out.Beta = eg.Beta
		out.BetaSource = BetaSourceEngleGranger
	case cfg.Strategy.Beta != nil:
		r.logger.Warn().Err(err).Msg("engle-granger failed, using configured beta")
	default:
		return nil, fmt.Errorf("failed to estimate hedge ratio: %w", err)
	}
	if cfg.Strategy.Beta != nil {
		out.Beta = *cfg.Strategy.Beta
		out.BetaSource = BetaSourceConfig
	}
	if math.IsNaN(out.Beta) || math.IsInf(out.Beta, 0) {
		return nil, fmt.Errorf("non-finite hedge ratio %v", out.Beta)
	}
	r.logger.Info().
		Float64("beta", out.Beta).
		Str("source", out.BetaSource).
		Float64("p_value", out.Coint.PValue).
		Float64("adf", out.Coint.ADFStat).
		Msg("hedge ratio")

	r.logger.Info().Msg("[3/6] computing spread and z-score")
	s := spread.Compute(prices, out.Beta)
	out.ZScores, err = spread.RollingZScore(s, cfg.Strategy.Lookback)
	if err != nil {
		return nil, err
	}
	out.Spread, err = spread.Summarize(prices, out.Beta, cfg.Strategy.Lookback)
	if err != nil {
		return nil, err
	}

	r.logger.Info().Msg("[4/6] generating signals")
	out.Signal, out.Events = signal.GenerateWithEvents(out.ZScores, cfg.Strategy.SignalParams())
	long, short, flat := signal.Count(out.Signal)
	r.logger.Debug().Int("long", long).Int("short", short).Int("flat", flat).Msg("signal regimes")

	r.logger.Info().Msg("[5/6] simulating execution")
	out.Result, err = Simulate(prices, out.Signal, out.Beta, cfg.Execution)
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	r.logger.Info().Msg("[6/6] computing statistics")
	out.Trades = ExtractTrades(out.Result)
	out.Metrics = Summarize(out.Result, out.Trades, cfg.Execution)

	if cfg.Output.GenerateReport || cfg.Output.SaveSeries {
		dir := filepath.Join(cfg.Output.ResultDir, cfg.Name)
		files, err := NewReportGenerator(out, dir).GenerateAll(cfg.Output)
		out.Files = files
		if err != nil {
			return nil, fmt.Errorf("failed to write reports: %w", err)
		}
		for _, f := range files {
			r.logger.Info().Str("file", f).Msg("report saved")
		}
	}
	return out, nil
}

// deliver 发布和持久化失败只记录日志，不影响回测结果
func (r *Runner) deliver(ctx context.Context, out *RunOutput) {
	if r.publisher != nil {
		if err := r.publisher.PublishRun(ctx, out); err != nil {
			r.logger.Warn().Err(err).Msg("failed to publish result")
		}
	}
	if r.store != nil {
		if err := r.store.Record(ctx, out); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist result")
		}
	}
}

// RunBatch 依次运行多个配置，单个失败不影响其他
func RunBatch(ctx context.Context, configs []*Config, logger zerolog.Logger, setup func(*Runner)) ([]*RunOutput, error) {
	outputs := make([]*RunOutput, 0, len(configs))
	var failed int

	for i, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		logger.Info().Int("index", i+1).Int("total", len(configs)).Str("name", cfg.Name).Msg("batch run")

		runner := NewRunner(cfg, logger)
		if setup != nil {
			setup(runner)
		}
		out, err := runner.Run(ctx)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("name", cfg.Name).Msg("batch run failed")
			continue
		}
		outputs = append(outputs, out)
	}

	if failed == len(configs) && failed > 0 {
		return outputs, fmt.Errorf("all %d runs failed", failed)
	}
	return outputs, nil
}
