package coint

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/yourusername/pairs-backtest/pkg/stats"
)

// Result Engle-Granger 检验结果
type Result struct {
	Beta     float64 `json:"beta"`
	Alpha    float64 `json:"alpha"`
	PValue   float64 `json:"p_value"`
	ADFStat  float64 `json:"adf_stat"`
	R2       float64 `json:"r2"`
	ResidStd float64 `json:"resid_std"` // 残差样本标准差
	UsedLag  int     `json:"used_lag"`
	NObs     int     `json:"n_obs"` // ADF 回归的样本数
}

// ADFResult ADF 检验结果（回归含常数项）
type ADFResult struct {
	Stat    float64
	PValue  float64
	UsedLag int
	NObs    int
	AIC     float64
}

// EngleGranger 两步法：OLS A~B 取残差，再对残差做 ADF（常数项、AIC 选滞后阶）
func EngleGranger(a, b []float64) (Result, error) {
	fit, err := regressPair(a, b)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Alpha:    fit.Params[0],
		Beta:     fit.Params[1],
		ResidStd: stats.StdDev(fit.Resid),
	}

	// R² = 1 - SSR/SST
	meanA := stats.Mean(a)
	var sst float64
	for _, v := range a {
		sst += (v - meanA) * (v - meanA)
	}
	if sst > 0 {
		res.R2 = 1 - fit.SSR/sst
	}

	adf, err := ADF(fit.Resid, -1)
	if err != nil {
		return Result{}, fmt.Errorf("adf on residuals: %w", err)
	}
	res.ADFStat = adf.Stat
	res.PValue = adf.PValue
	res.UsedLag = adf.UsedLag
	res.NObs = adf.NObs
	return res, nil
}

// DefaultMaxLag Schwert 规则 ceil(12·(n/100)^0.25)，上限 n/2-2
func DefaultMaxLag(n int) int {
	maxLag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 2; maxLag > limit {
		maxLag = limit
	}
	return maxLag
}

// ADF 带常数项的增强 Dickey-Fuller 检验
// maxLag < 0 时使用 DefaultMaxLag；在 0..maxLag 上按 AIC 选滞后阶（共同样本），
// 再用选中的阶数在完整样本上重新回归
func ADF(x []float64, maxLag int) (ADFResult, error) {
	n := len(x)
	if maxLag < 0 {
		maxLag = DefaultMaxLag(n)
	}
	if maxLag < 0 || n-1-maxLag <= maxLag+2 {
		return ADFResult{}, fmt.Errorf("%w: %d observations for maxlag %d", ErrInsufficientData, n, maxLag)
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = x[i] - x[i-1]
	}

	// 共同样本上选择滞后阶
	full, y := adfDesign(x, diff, maxLag, maxLag)
	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		cols := lag + 2
		sub := full.Slice(0, len(y), 0, cols).(*mat.Dense)
		fit, err := fitOLS(sub, y, false)
		if err != nil {
			return ADFResult{}, err
		}
		if aic := fit.AIC(); aic < bestAIC {
			bestAIC, bestLag = aic, lag
		}
	}

	design, yShort := adfDesign(x, diff, bestLag, bestLag)
	fit, err := fitOLS(design, yShort, true)
	if err != nil {
		return ADFResult{}, err
	}

	stat := fit.TValue(1)
	return ADFResult{
		Stat:    stat,
		PValue:  MacKinnonP(stat),
		UsedLag: bestLag,
		NObs:    len(yShort),
		AIC:     bestAIC,
	}, nil
}

// adfDesign 构造 ΔX[t] = c + γ·X[t-1] + Σ φ_i·ΔX[t-i] 的设计矩阵
// 列顺序 [const, X[t-1], ΔX[t-1] .. ΔX[t-lags]]，样本从 trim 之后开始
func adfDesign(x, diff []float64, lags, trim int) (*mat.Dense, []float64) {
	rows := len(diff) - trim
	design := mat.NewDense(rows, lags+2, nil)
	y := make([]float64, rows)
	for r := 0; r < rows; r++ {
		t := r + trim // diff 中的下标
		y[r] = diff[t]
		design.Set(r, 0, 1)
		design.Set(r, 1, x[t])
		for i := 1; i <= lags; i++ {
			design.Set(r, i+1, diff[t-i])
		}
	}
	return design, y
}

// MacKinnon (1994) 近似 p 值，常数项、单变量
var (
	tauMax     = 2.74
	tauMin     = -18.83
	tauStar    = -1.61
	tauSmallPs = []float64{2.1659, 1.4412, 0.038269}
	tauLargePs = []float64{1.7339, 0.93202, -0.12745, -0.010368}
	unitNormal = distuv.UnitNormal
)

// MacKinnonP ADF 统计量对应的 p 值
func MacKinnonP(stat float64) float64 {
	if math.IsNaN(stat) {
		return math.NaN()
	}
	if stat > tauMax {
		return 1
	}
	if stat < tauMin {
		return 0
	}
	coef := tauLargePs
	if stat <= tauStar {
		coef = tauSmallPs
	}
	// c0 + c1·x + c2·x² + ...
	var poly float64
	for i := len(coef) - 1; i >= 0; i-- {
		poly = poly*stat + coef[i]
	}
	return unitNormal.CDF(poly)
}
