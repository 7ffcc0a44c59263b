// Package coint implements the Engle-Granger two-step cointegration test
// (OLS hedge ratio + augmented Dickey-Fuller on the residuals) and a pair scanner.
package coint

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientData 样本不足
var ErrInsufficientData = errors.New("insufficient data")

// olsFit 普通最小二乘结果
type olsFit struct {
	Params []float64
	Resid  []float64
	SSR    float64
	NObs   int
	K      int
	stdErr []float64
}

// fitOLS 用 QR 分解求解 y = X·b；withStdErr 时额外计算系数标准误
func fitOLS(x *mat.Dense, y []float64, withStdErr bool) (*olsFit, error) {
	n, k := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("design rows %d != observations %d", n, len(y))
	}
	if n <= k {
		return nil, fmt.Errorf("%w: %d observations for %d regressors", ErrInsufficientData, n, k)
	}

	var qr mat.QR
	qr.Factorize(x)

	var b mat.Dense
	if err := qr.SolveTo(&b, false, mat.NewDense(n, 1, y)); err != nil {
		return nil, fmt.Errorf("solve least squares: %w", err)
	}

	fit := &olsFit{
		Params: make([]float64, k),
		Resid:  make([]float64, n),
		NObs:   n,
		K:      k,
	}
	for j := 0; j < k; j++ {
		fit.Params[j] = b.At(j, 0)
	}
	for i := 0; i < n; i++ {
		pred := 0.0
		for j := 0; j < k; j++ {
			pred += x.At(i, j) * fit.Params[j]
		}
		fit.Resid[i] = y[i] - pred
		fit.SSR += fit.Resid[i] * fit.Resid[i]
	}

	if withStdErr {
		var xtx, inv mat.Dense
		xtx.Mul(x.T(), x)
		if err := inv.Inverse(&xtx); err != nil {
			return nil, fmt.Errorf("singular design matrix: %w", err)
		}
		sigma2 := fit.SSR / float64(n-k)
		fit.stdErr = make([]float64, k)
		for j := 0; j < k; j++ {
			fit.stdErr[j] = math.Sqrt(sigma2 * inv.At(j, j))
		}
	}
	return fit, nil
}

// LogLikelihood 高斯对数似然
func (f *olsFit) LogLikelihood() float64 {
	n := float64(f.NObs)
	return -n / 2 * (math.Log(2*math.Pi) + math.Log(f.SSR/n) + 1)
}

// AIC = -2·llf + 2·k
func (f *olsFit) AIC() float64 {
	return -2*f.LogLikelihood() + 2*float64(f.K)
}

// TValue 第 j 个系数的 t 统计量
func (f *olsFit) TValue(j int) float64 {
	if f.stdErr == nil || f.stdErr[j] == 0 {
		return math.NaN()
	}
	return f.Params[j] / f.stdErr[j]
}

// HedgeRatioOLS 回归 A = alpha + beta·B，返回 beta
func HedgeRatioOLS(a, b []float64) (float64, error) {
	fit, err := regressPair(a, b)
	if err != nil {
		return 0, err
	}
	return fit.Params[1], nil
}

func regressPair(a, b []float64) (*olsFit, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("length mismatch: A=%d B=%d", len(a), len(b))
	}
	if len(a) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 points, got %d", ErrInsufficientData, len(a))
	}
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			return nil, fmt.Errorf("NaN at row %d", i)
		}
	}

	x := mat.NewDense(len(b), 2, nil)
	for i, v := range b {
		x.Set(i, 0, 1)
		x.Set(i, 1, v)
	}
	return fitOLS(x, a, false)
}
