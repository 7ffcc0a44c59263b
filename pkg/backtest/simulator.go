package backtest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/yourusername/pairs-backtest/pkg/marketdata"
	"github.com/yourusername/pairs-backtest/pkg/signal"
	"github.com/yourusername/pairs-backtest/pkg/stats"
)

// grossFloor 避免总敞口接近 0 时除零
const grossFloor = 1e-9

// Simulate 按信号回放两腿持仓并计算逐周期 PnL
//
// 持仓在 t 时刻由 t-SignalDelay 的信号决定；PnL 使用上一周期持仓乘以本周期价格变化。
// 价格中的 NaN 会传播到结果中，不做校验。
func Simulate(prices *marketdata.PriceTable, sig []signal.Position, beta float64, cfg ExecutionConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := prices.Len()
	if len(sig) != n || len(prices.A) != n || len(prices.B) != n {
		return nil, fmt.Errorf("length mismatch: prices=%d A=%d B=%d signal=%d", n, len(prices.A), len(prices.B), len(sig))
	}
	if beta < 0 {
		log.Warn().Float64("beta", beta).Msg("negative hedge ratio: both legs will carry the same sign")
	}

	raw := make([]float64, n)
	for i, p := range sig {
		raw[i] = p.Float()
	}
	executed := stats.NewSeries("signal", prices.Timestamps, raw).Shift(cfg.SignalDelay, 0)

	grossLeg := cfg.Capital * 0.5
	aShares := make([]float64, n)
	bShares := make([]float64, n)
	for t := 0; t < n; t++ {
		e := executed.At(t)
		pA, pB := prices.A[t], prices.B[t]
		aShares[t] = grossLeg / pA * e
		bShares[t] = -grossLeg / pB * beta * e

		if cfg.MaxGross != nil {
			gross := math.Abs(aShares[t])*pA + math.Abs(bShares[t])*pB
			scale := math.Min(1.0, *cfg.MaxGross/math.Max(gross, grossFloor))
			aShares[t] *= scale
			bShares[t] *= scale
		}
	}

	A := stats.NewSeries("A_shares", prices.Timestamps, aShares)
	B := stats.NewSeries("B_shares", prices.Timestamps, bShares)
	aTrades := A.Diff().Rename("A_trades")
	bTrades := B.Diff().Rename("B_trades")
	dA := prices.SeriesA().Change()
	dB := prices.SeriesB().Change()

	costRate := cfg.CostRate()
	borrowRate := cfg.ShortBorrowAPR / float64(cfg.PeriodsPerYear)

	posPnL := make([]float64, n)
	costs := make([]float64, n)
	borrow := make([]float64, n)
	pnl := make([]float64, n)

	for t := 0; t < n; t++ {
		var prevA, prevB float64
		if t > 0 {
			prevA, prevB = A.At(t-1), B.At(t-1)
		}
		posPnL[t] = prevA*dA.At(t) + prevB*dB.At(t)

		notional := math.Abs(aTrades.At(t))*prices.A[t] + math.Abs(bTrades.At(t))*prices.B[t]
		costs[t] = notional * costRate

		// 融券费按上一周期更偏空的一腿计算
		shortShares, shortPrice := prevB, prices.B[t]
		if prevA < prevB {
			shortShares, shortPrice = prevA, prices.A[t]
		}
		borrow[t] = math.Abs(math.Min(shortShares, 0)) * shortPrice * borrowRate

		pnl[t] = posPnL[t] - costs[t] - borrow[t]
	}

	pnlSeries := stats.NewSeries("pnl", prices.Timestamps, pnl)
	executedPos := make([]signal.Position, n)
	for i, v := range executed.Data {
		executedPos[i] = signal.Position(v)
	}

	return &Result{
		Timestamps:  prices.Timestamps,
		PnL:         pnlSeries,
		Equity:      pnlSeries.CumSum().Rename("equity"),
		PositionPnL: stats.NewSeries("position_pnl", prices.Timestamps, posPnL),
		Costs:       stats.NewSeries("costs", prices.Timestamps, costs),
		Borrow:      stats.NewSeries("borrow_fee", prices.Timestamps, borrow),
		AShares:     A,
		BShares:     B,
		ATrades:     aTrades,
		BTrades:     bTrades,
		Executed:    executedPos,
	}, nil
}
