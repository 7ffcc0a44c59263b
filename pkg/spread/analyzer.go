package spread

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourusername/pairs-backtest/pkg/marketdata"
	"github.com/yourusername/pairs-backtest/pkg/stats"
)

// ErrLookback lookback 参数非法
var ErrLookback = errors.New("lookback must be >= 2")

// Compute 计算 spread: S[t] = A[t] - beta*B[t]
// 任一腿为 NaN 时该点 spread 为 NaN
func Compute(prices *marketdata.PriceTable, beta float64) stats.Series {
	out := make([]float64, prices.Len())
	for i := range out {
		out[i] = prices.A[i] - beta*prices.B[i]
	}
	return stats.Series{Name: "spread", Timestamps: prices.Timestamps, Data: out}
}

// RollingZScore 滚动 z-score，窗口 [t-lookback+1, t]，样本标准差 (n-1)
// 前 lookback-1 个点、含 NaN 的窗口、常数窗口都返回 Invalid
// 常数窗口按取值判断，均值的舍入误差会让 StdDev 得到 1e-16 量级的非零值
func RollingZScore(s stats.Series, lookback int) ([]ZScore, error) {
	if lookback < 2 {
		return nil, fmt.Errorf("%w, got %d", ErrLookback, lookback)
	}

	out := make([]ZScore, s.Len())
	for t := lookback - 1; t < s.Len(); t++ {
		window := s.Data[t-lookback+1 : t+1]
		if hasNaN(window) || isConstant(window) {
			continue
		}
		mean := stats.Mean(window)
		std := stats.StdDev(window)
		if std == 0 {
			continue
		}
		out[t] = Of((s.Data[t] - mean) / std)
	}
	return out, nil
}

func hasNaN(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func isConstant(data []float64) bool {
	for _, v := range data[1:] {
		if v != data[0] {
			return false
		}
	}
	return true
}

// Summarize 计算最近 lookback 窗口的 spread 统计摘要（用于报告）
func Summarize(prices *marketdata.PriceTable, beta float64, lookback int) (Stats, error) {
	s := Compute(prices, beta)
	zs, err := RollingZScore(s, lookback)
	if err != nil {
		return Stats{}, err
	}

	result := Stats{HedgeRatio: beta}
	if s.Len() == 0 {
		return result, nil
	}

	result.Current, _ = s.Last()
	result.ZScore = zs[len(zs)-1]

	window := s.GetLast(lookback)
	rolling := stats.CalculateRollingStats(window, lookback)
	result.Mean = rolling.Mean
	result.Std = rolling.Std

	result.Correlation = stats.Correlation(prices.A, prices.B)
	result.HalfLife = HalfLife(s)
	return result, nil
}

// HalfLife 用 ΔS[t] = a + b*S[t-1] 回归估计均值回归半衰期 -ln2/b
// b >= 0（不回归）或数据不足时返回 0
func HalfLife(s stats.Series) float64 {
	if s.Len() < 3 || s.HasNaN() {
		return 0
	}
	lagged := s.Data[:s.Len()-1]
	delta := make([]float64, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		delta[i-1] = s.Data[i] - s.Data[i-1]
	}

	reg, ok := stats.LinearRegression(lagged, delta)
	if !ok || reg.Slope >= 0 {
		return 0
	}
	return -math.Ln2 / reg.Slope
}
