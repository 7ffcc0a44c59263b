// Package stats provides statistical functions and time series helpers
package stats

import (
	"math"
)

// RollingWindowStats 滚动窗口统计结果
type RollingWindowStats struct {
	Mean     float64
	Std      float64
	Variance float64
	Count    int
}

// CalculateRollingStats 计算最近 period 个点的统计（样本方差，除以 n-1）
// 窗口内任何 NaN 都会让结果变为 NaN
func CalculateRollingStats(data []float64, period int) RollingWindowStats {
	if len(data) == 0 {
		return RollingWindowStats{}
	}

	n := len(data)
	if period <= 0 || period > n {
		period = n
	}

	recent := data[n-period:]
	mean := Mean(recent)
	variance := Variance(recent)

	return RollingWindowStats{
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Variance: variance,
		Count:    len(recent),
	}
}

// Mean 计算均值
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// Variance 计算样本方差 (ddof=1)
// 少于两个点时返回 0
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}

	mean := Mean(data)
	var variance float64
	for _, val := range data {
		diff := val - mean
		variance += diff * diff
	}
	return variance / float64(len(data)-1)
}

// StdDev 计算样本标准差
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// Correlation 计算 Pearson 相关系数
// r = Σ[(xi - x̄)(yi - ȳ)] / sqrt[Σ(xi - x̄)² * Σ(yi - ȳ)²]
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, varX, varY float64
	for i := range x {
		diffX := x[i] - meanX
		diffY := y[i] - meanY
		numerator += diffX * diffY
		varX += diffX * diffX
		varY += diffY * diffY
	}

	denominator := math.Sqrt(varX * varY)
	if denominator < 1e-10 {
		return 0
	}

	return numerator / denominator
}

// RegressionResult 一元线性回归 y = Slope * x + Intercept
type RegressionResult struct {
	Slope     float64
	Intercept float64
	R2        float64
	Residuals []float64
}

// LinearRegression 计算线性回归 y = slope * x + intercept
// x 方差为 0 时 ok=false
func LinearRegression(x, y []float64) (RegressionResult, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return RegressionResult{}, false
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, denominator float64
	for i := range x {
		diffX := x[i] - meanX
		numerator += diffX * (y[i] - meanY)
		denominator += diffX * diffX
	}

	if denominator < 1e-12 {
		return RegressionResult{Intercept: meanY}, false
	}

	slope := numerator / denominator
	intercept := meanY - slope*meanX

	residuals := make([]float64, len(y))
	var ssRes, ssTot float64
	for i := range y {
		residuals[i] = y[i] - (intercept + slope*x[i])
		ssRes += residuals[i] * residuals[i]
		d := y[i] - meanY
		ssTot += d * d
	}

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	return RegressionResult{
		Slope:     slope,
		Intercept: intercept,
		R2:        r2,
		Residuals: residuals,
	}, true
}
