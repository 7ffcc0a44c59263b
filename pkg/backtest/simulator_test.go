package backtest

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pairs-backtest/pkg/marketdata"
	"github.com/yourusername/pairs-backtest/pkg/signal"
)

func businessDays(n int) []time.Time {
	ts := make([]time.Time, 0, n)
	d := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for len(ts) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			ts = append(ts, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return ts
}

func priceTable(a, b []float64) *marketdata.PriceTable {
	return &marketdata.PriceTable{SymbolA: "A", SymbolB: "B", Timestamps: businessDays(len(a)), A: a, B: b}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func toPositions(values ...int) []signal.Position {
	out := make([]signal.Position, len(values))
	for i, v := range values {
		out[i] = signal.Position(v)
	}
	return out
}

func zeroCost() ExecutionConfig {
	cfg := DefaultExecutionConfig()
	cfg.TCBps = 0
	cfg.SlippageBps = 0
	cfg.ShortBorrowAPR = 0
	return cfg
}

func TestSimulate_SignalDelay(t *testing.T) {
	prices := priceTable(constant(5, 100), constant(5, 100))
	sig := toPositions(0, 1, 0, 0, 0)

	res, err := Simulate(prices, sig, 1.0, DefaultExecutionConfig())
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.AShares.At(0))
	assert.Equal(t, 0.0, res.AShares.At(1))
	assert.NotEqual(t, 0.0, res.AShares.At(2))
	assert.Equal(t, 0.0, res.AShares.At(3))
	assert.Equal(t, toPositions(0, 0, 1, 0, 0), res.Executed)

	cfg := DefaultExecutionConfig()
	cfg.SignalDelay = 0
	res, err = Simulate(prices, sig, 1.0, cfg)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, res.AShares.At(1))
	assert.Equal(t, -5000.0, res.BShares.At(1))

	cfg.SignalDelay = 10
	res, err = Simulate(prices, sig, 1.0, cfg)
	require.NoError(t, err)
	for i := 0; i < res.Len(); i++ {
		assert.Equal(t, 0.0, res.AShares.At(i))
	}
}

func TestSimulate_Shapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := 252
	a, b := make([]float64, n), make([]float64, n)
	pa, pb := 100.0, 100.0
	for i := 0; i < n; i++ {
		pa += rng.NormFloat64()
		pb += rng.NormFloat64()
		a[i], b[i] = pa, pb
	}
	sig := make([]signal.Position, n)
	for i := 50; i < 100; i++ {
		sig[i] = signal.Long
	}

	res, err := Simulate(priceTable(a, b), sig, 1.0, DefaultExecutionConfig())
	require.NoError(t, err)

	for _, s := range []int{
		res.PnL.Len(), res.Equity.Len(), res.Costs.Len(), res.Borrow.Len(),
		res.AShares.Len(), res.BShares.Len(), res.ATrades.Len(), res.BTrades.Len(),
		res.PositionPnL.Len(), len(res.Executed),
	} {
		assert.Equal(t, n, s)
	}
	assert.InDelta(t, res.PnL.Sum(), res.FinalEquity(), 1e-6)
}

func TestSimulate_CostsOnConstantPrices(t *testing.T) {
	prices := priceTable(constant(10, 100), constant(10, 100))
	sig := toPositions(1, 0, 1, 0, 1, 0, 1, 0, 1, 0)

	cfg := DefaultExecutionConfig()
	cfg.TCBps = 10
	cfg.SlippageBps = 5
	res, err := Simulate(prices, sig, 1.0, cfg)
	require.NoError(t, err)

	assert.Greater(t, res.TotalCosts(), 0.0)
	for i := 0; i < res.Len(); i++ {
		assert.Equal(t, 0.0, res.PositionPnL.At(i), "no price movement at %d", i)
	}

	// 执行信号 [0,1,0,1,...]，从 t=1 起每周期换仓 5000+5000 股，名义 1e6
	assert.InDelta(t, 9*1_000_000*0.0015, res.TotalCosts(), 1e-6)
	assert.Equal(t, 0.0, res.Costs.At(0))

	// 融券费：t=2,4,6,8 时前一周期持有 -5000 股 B
	perPeriod := 5000 * 100 * cfg.ShortBorrowAPR / 252
	assert.InDelta(t, 4*perPeriod, res.TotalBorrow(), 1e-9)
	assert.InDelta(t, perPeriod, res.Borrow.At(2), 1e-9)
	assert.Equal(t, 0.0, res.Borrow.At(1))

	assert.InDelta(t, -(res.TotalCosts() + res.TotalBorrow()), res.FinalEquity(), 1e-6)
}

func TestSimulate_FirstTradeEqualsShares(t *testing.T) {
	cfg := DefaultExecutionConfig()
	cfg.SignalDelay = 0
	res, err := Simulate(priceTable([]float64{50, 51}, []float64{25, 25}), toPositions(1, 1), 2.0, cfg)
	require.NoError(t, err)

	assert.Equal(t, res.AShares.At(0), res.ATrades.At(0))
	assert.Equal(t, res.BShares.At(0), res.BTrades.At(0))
	assert.Equal(t, 10000.0, res.AShares.At(0))
	assert.Equal(t, -40000.0, res.BShares.At(0))
	assert.Equal(t, 0.0, res.PositionPnL.At(0))
	// 上一周期 10000 股 A × 1 元涨幅
	assert.Equal(t, 10000.0, res.PositionPnL.At(1))
}

func TestSimulate_ZeroCostIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 200
	a, b := make([]float64, n), make([]float64, n)
	pa, pb := 80.0, 40.0
	sig := make([]signal.Position, n)
	for i := 0; i < n; i++ {
		pa += rng.NormFloat64() * 0.5
		pb += rng.NormFloat64() * 0.3
		a[i], b[i] = pa, pb
		sig[i] = signal.Position(rng.Intn(3) - 1)
	}

	res, err := Simulate(priceTable(a, b), sig, 1.7, zeroCost())
	require.NoError(t, err)

	var want float64
	for i := 1; i < n; i++ {
		want += res.AShares.At(i-1)*(a[i]-a[i-1]) + res.BShares.At(i-1)*(b[i]-b[i-1])
	}
	assert.InDelta(t, want, res.FinalEquity(), 1e-6)
	assert.Equal(t, 0.0, res.TotalCosts())
	assert.Equal(t, 0.0, res.TotalBorrow())
}

func TestSimulate_BorrowOnShortLeg(t *testing.T) {
	cfg := DefaultExecutionConfig()
	cfg.SignalDelay = 0
	prices := priceTable(constant(3, 50), constant(3, 100))

	// 做空 spread：A 为空头腿
	res, err := Simulate(prices, toPositions(-1, -1, -1), 1.0, cfg)
	require.NoError(t, err)
	assert.Equal(t, -10000.0, res.AShares.At(0))
	assert.Equal(t, 5000.0, res.BShares.At(0))

	want := 10000 * 50 * cfg.ShortBorrowAPR / float64(cfg.PeriodsPerYear)
	assert.Equal(t, 0.0, res.Borrow.At(0))
	assert.InDelta(t, want, res.Borrow.At(1), 1e-9)
	assert.InDelta(t, want, res.Borrow.At(2), 1e-9)
}

func TestSimulate_NegativeBeta(t *testing.T) {
	cfg := DefaultExecutionConfig()
	cfg.SignalDelay = 0
	res, err := Simulate(priceTable(constant(2, 10), constant(2, 10)), toPositions(1, 1), -1.0, cfg)
	require.NoError(t, err)

	// 两腿同向，不做修正
	assert.Greater(t, res.AShares.At(0), 0.0)
	assert.Greater(t, res.BShares.At(0), 0.0)
	assert.Equal(t, 0.0, res.Borrow.At(1))
}

func TestSimulate_GrossCap(t *testing.T) {
	cfg := DefaultExecutionConfig()
	cfg.SignalDelay = 0
	maxGross := 250_000.0
	cfg.MaxGross = &maxGross

	res, err := Simulate(priceTable([]float64{100, 100}, []float64{50, 50}), toPositions(0, 1), 1.0, cfg)
	require.NoError(t, err)

	// 未限制时总敞口 1e6，按 0.25 缩放
	assert.InDelta(t, 1250.0, res.AShares.At(1), 1e-9)
	assert.InDelta(t, -2500.0, res.BShares.At(1), 1e-9)
	// 空仓时敞口为 0，不放大
	assert.Equal(t, 0.0, res.AShares.At(0))
}

func TestSimulate_GrossCapProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	const n = 20
	properties.Property("总敞口不超过 max_gross", prop.ForAll(
		func(a, b []float64, raw []int, beta, maxGross float64) bool {
			cfg := DefaultExecutionConfig()
			cfg.MaxGross = &maxGross
			sig := make([]signal.Position, n)
			for i, v := range raw {
				sig[i] = signal.Position(v)
			}

			res, err := Simulate(priceTable(a, b), sig, beta, cfg)
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				gross := math.Abs(res.AShares.At(i))*a[i] + math.Abs(res.BShares.At(i))*b[i]
				if gross > maxGross*(1+1e-9) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(n, gen.Float64Range(1, 500)),
		gen.SliceOfN(n, gen.Float64Range(1, 500)),
		gen.SliceOfN(n, gen.IntRange(-1, 1)),
		gen.Float64Range(-3, 3),
		gen.Float64Range(1_000, 2_000_000),
	))

	properties.Property("延迟 k 周期后持仓只取决于 k 周期前的信号", prop.ForAll(
		func(raw []int, k int) bool {
			cfg := zeroCost()
			cfg.SignalDelay = k
			sig := make([]signal.Position, n)
			for i, v := range raw {
				sig[i] = signal.Position(v)
			}

			res, err := Simulate(priceTable(constant(n, 100), constant(n, 100)), sig, 1.0, cfg)
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				want := 0.0
				if i-k >= 0 {
					want = 5000 * float64(sig[i-k])
				}
				if res.AShares.At(i) != want {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(n, gen.IntRange(-1, 1)),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestSimulate_Errors(t *testing.T) {
	prices := priceTable(constant(3, 100), constant(3, 100))

	_, err := Simulate(prices, toPositions(0, 1), 1.0, DefaultExecutionConfig())
	assert.Error(t, err)

	bad := DefaultExecutionConfig()
	bad.Capital = 0
	_, err = Simulate(prices, toPositions(0, 1, 0), 1.0, bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSimulate_NaNPropagates(t *testing.T) {
	cfg := DefaultExecutionConfig()
	cfg.SignalDelay = 0
	res, err := Simulate(priceTable([]float64{100, math.NaN(), 100}, constant(3, 100)), toPositions(1, 1, 1), 1.0, cfg)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.PnL.At(1)))
	assert.True(t, math.IsNaN(res.FinalEquity()))
}
