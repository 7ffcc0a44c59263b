package marketdata

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// SyntheticOptions 模拟协整价格对的参数
// A = Alpha + Beta·B + ε，B 为几何随机游走，ε 为 AR(1) 噪声
type SyntheticOptions struct {
	SymbolA    string
	SymbolB    string
	Start      time.Time
	Days       int     // 交易日数（跳过周末）
	Beta       float64 // 对冲比率
	Alpha      float64
	StartPrice float64 // B 的起始价格
	Vol        float64 // B 的日波动率
	Phi        float64 // 噪声自回归系数，|Phi| < 1 时协整
	NoiseStd   float64
	Seed       int64
}

// DefaultSyntheticOptions 默认参数：两年日线
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		SymbolA:    "SYN_A",
		SymbolB:    "SYN_B",
		Start:      time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC),
		Days:       504,
		Beta:       1.5,
		Alpha:      5,
		StartPrice: 50,
		Vol:        0.01,
		Phi:        0.9,
		NoiseStd:   0.5,
		Seed:       1,
	}
}

// GenerateSynthetic 生成一对协整价格序列
func GenerateSynthetic(opts SyntheticOptions) (Column, Column, error) {
	if opts.Days <= 0 {
		return Column{}, Column{}, errors.New("days must be positive")
	}
	if opts.StartPrice <= 0 {
		return Column{}, Column{}, errors.New("start price must be positive")
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	ts := make([]time.Time, 0, opts.Days)
	a := make([]float64, 0, opts.Days)
	b := make([]float64, 0, opts.Days)

	d := truncateDay(opts.Start)
	pb, eps := opts.StartPrice, 0.0
	for len(ts) < opts.Days {
		if !isWeekend(d) {
			pb *= math.Exp(opts.Vol*rng.NormFloat64() - opts.Vol*opts.Vol/2)
			eps = opts.Phi*eps + opts.NoiseStd*rng.NormFloat64()
			ts = append(ts, d)
			b = append(b, round4(pb))
			a = append(a, round4(opts.Alpha+opts.Beta*pb+eps))
		}
		d = d.AddDate(0, 0, 1)
	}

	colA := Column{Symbol: opts.SymbolA, Timestamps: ts, Prices: a}
	colB := Column{Symbol: opts.SymbolB, Timestamps: append([]time.Time(nil), ts...), Prices: b}
	return colA, colB, nil
}

// round4 与 CSV 输出精度一致
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
