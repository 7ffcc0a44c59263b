package backtest

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/yourusername/pairs-backtest/pkg/signal"
	"github.com/yourusername/pairs-backtest/pkg/stats"
)

// returns PnL 转换为资本收益率，NaN 视为 0
func returns(pnl []float64, capital float64) []float64 {
	r := make([]float64, len(pnl))
	for i, v := range pnl {
		if math.IsNaN(v) {
			continue
		}
		r[i] = v / capital
	}
	return r
}

// SharpeRatio 年化夏普比率（无风险利率为 0），标准差为 0 时返回 0
func SharpeRatio(pnl []float64, capital float64, periodsPerYear int) float64 {
	r := returns(pnl, capital)
	ppy := float64(periodsPerYear)
	sd := stats.StdDev(r) * math.Sqrt(ppy)
	if !(sd > 0) {
		return 0
	}
	return stats.Mean(r) * ppy / sd
}

// SortinoRatio 年化索提诺比率，下行样本不足两个或下行标准差为 0 时返回 0
func SortinoRatio(pnl []float64, capital float64, periodsPerYear int) float64 {
	r := returns(pnl, capital)
	downside := make([]float64, 0, len(r))
	for _, v := range r {
		if v < 0 {
			downside = append(downside, v)
		}
	}
	ppy := float64(periodsPerYear)
	dd := stats.StdDev(downside) * math.Sqrt(ppy)
	if !(dd > 0) {
		return 0
	}
	return stats.Mean(r) * ppy / dd
}

// AnnualReturn 年化收益率（均值 × 年化周期数）
func AnnualReturn(pnl []float64, capital float64, periodsPerYear int) float64 {
	return stats.Mean(returns(pnl, capital)) * float64(periodsPerYear)
}

// MaxDrawdown 最大回撤（美元，<= 0），峰值取自权益曲线本身
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	var maxDD float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := v - peak; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// HitRate 盈利周期占比（忽略 NaN），无数据时返回 0
func HitRate(pnl []float64) float64 {
	var total, wins int
	for _, v := range pnl {
		if math.IsNaN(v) {
			continue
		}
		total++
		if v > 0 {
			wins++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// ExtractTrades 按执行信号切分开平仓区间
// 区间 PnL 从开仓周期累计到平仓周期（平仓周期包含最后一段持仓收益和平仓成本）
func ExtractTrades(result *Result) []Trade {
	var trades []Trade
	n := result.Len()
	if n == 0 {
		return trades
	}

	var current *Trade
	closeAt := func(i int, open bool) {
		current.ExitIndex = i
		current.ExitTime = result.Timestamps[i]
		current.Bars = i - current.EntryIndex
		current.Open = open
		current.PnL = 0
		for k := current.EntryIndex; k <= i; k++ {
			current.PnL += result.PnL.At(k)
		}
		trades = append(trades, *current)
		current = nil
	}

	for i, pos := range result.Executed {
		if current != nil && pos != current.Direction {
			closeAt(i, false)
		}
		if current == nil && pos != signal.Flat {
			current = &Trade{
				Direction:  pos,
				EntryIndex: i,
				EntryTime:  result.Timestamps[i],
			}
		}
	}
	if current != nil {
		closeAt(n-1, true)
	}
	return trades
}

// Summarize 计算全部绩效指标
func Summarize(result *Result, trades []Trade, cfg ExecutionConfig) Metrics {
	m := Metrics{
		TotalPNL:     result.PnL.Sum(),
		AnnualReturn: AnnualReturn(result.PnL.Data, cfg.Capital, cfg.PeriodsPerYear),
		SharpeRatio:  SharpeRatio(result.PnL.Data, cfg.Capital, cfg.PeriodsPerYear),
		SortinoRatio: SortinoRatio(result.PnL.Data, cfg.Capital, cfg.PeriodsPerYear),
		MaxDrawdown:  MaxDrawdown(result.Equity.Data),
		HitRate:      HitRate(result.PnL.Data),
		TotalCosts:   result.TotalCosts(),
		TotalBorrow:  result.TotalBorrow(),
	}
	m.TotalReturn = m.TotalPNL / cfg.Capital
	if m.MaxDrawdown < 0 {
		m.CalmarRatio = m.AnnualReturn / (-m.MaxDrawdown / cfg.Capital)
	}

	m.LongPeriods, m.ShortPeriods, m.FlatPeriods = signal.Count(result.Executed)
	calculateTradeStats(&m, trades)
	return m
}

// calculateTradeStats calculates trade statistics
func calculateTradeStats(m *Metrics, trades []Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var totalWin, totalLoss float64
	var totalBars int

	for _, trade := range trades {
		totalBars += trade.Bars
		if trade.PnL > 0 {
			m.WinTrades++
			totalWin += trade.PnL
			if trade.PnL > m.MaxWin {
				m.MaxWin = trade.PnL
			}
		} else if trade.PnL < 0 {
			m.LossTrades++
			totalLoss += -trade.PnL
			if trade.PnL < m.MaxLoss {
				m.MaxLoss = trade.PnL
			}
		}
	}

	m.WinRate = float64(m.WinTrades) / float64(m.TotalTrades)
	m.AvgBars = float64(totalBars) / float64(m.TotalTrades)

	if m.WinTrades > 0 {
		m.AvgWin = totalWin / float64(m.WinTrades)
	}
	if m.LossTrades > 0 {
		m.AvgLoss = totalLoss / float64(m.LossTrades)
	}

	// Profit factor
	if totalLoss > 0 {
		m.ProfitFactor = totalWin / totalLoss
	}
}

// PrintSummary prints a summary of the backtest results
func PrintSummary(w io.Writer, out *RunOutput) {
	m := out.Metrics
	s := out.Summary()

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintf(w, "PAIRS BACKTEST SUMMARY: %s (%s / %s)\n", out.Name, out.SymbolA, out.SymbolB)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\nPeriod: %s to %s (%d periods)\n", s.Start, s.End, s.Periods)
	fmt.Fprintf(w, "Engle-Granger p-value: %.4f (ADF=%.3f, beta=%.3f, R^2=%.3f)\n",
		out.Coint.PValue, out.Coint.ADFStat, out.Beta, out.Coint.R2)
	if out.BetaSource != "" && out.BetaSource != BetaSourceEngleGranger {
		fmt.Fprintf(w, "Hedge ratio source: %s\n", out.BetaSource)
	}

	fmt.Fprintf(w, "\nPerformance Metrics:\n")
	fmt.Fprintf(w, "  Sharpe:            %.2f\n", m.SharpeRatio)
	fmt.Fprintf(w, "  Sortino:           %.2f\n", m.SortinoRatio)
	fmt.Fprintf(w, "  Annual return:     %.2f%%\n", m.AnnualReturn*100)
	fmt.Fprintf(w, "  Max drawdown (USD): %.0f\n", m.MaxDrawdown)
	fmt.Fprintf(w, "  Hit rate:          %.2f%%\n", m.HitRate*100)
	fmt.Fprintf(w, "  Final equity:      %.2f\n", s.FinalEquity)
	fmt.Fprintf(w, "  Costs / Borrow:    %.2f / %.2f\n", m.TotalCosts, m.TotalBorrow)

	fmt.Fprintf(w, "\nTrade Statistics:\n")
	fmt.Fprintf(w, "  Total Trades:      %d\n", m.TotalTrades)
	fmt.Fprintf(w, "  Win Trades:        %d (%.1f%%)\n", m.WinTrades, m.WinRate*100)
	fmt.Fprintf(w, "  Loss Trades:       %d\n", m.LossTrades)
	fmt.Fprintf(w, "  Profit Factor:     %.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "  Avg Win:           %.2f\n", m.AvgWin)
	fmt.Fprintf(w, "  Avg Loss:          %.2f\n", m.AvgLoss)
	fmt.Fprintf(w, "  Avg Bars Held:     %.1f\n", m.AvgBars)

	fmt.Fprintln(w, strings.Repeat("=", 60))
}
