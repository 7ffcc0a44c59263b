// Package marketdata loads and aligns the two-leg price table consumed by the backtest
package marketdata

import (
	"fmt"
	"time"

	"github.com/yourusername/pairs-backtest/pkg/stats"
)

// PriceTable 两个品种按时间对齐的价格表
// Timestamps 严格递增，A/B 与 Timestamps 等长
type PriceTable struct {
	SymbolA    string
	SymbolB    string
	Timestamps []time.Time
	A          []float64
	B          []float64
}

// Len 返回行数
func (p *PriceTable) Len() int {
	return len(p.Timestamps)
}

// Validate 检查长度一致和时间戳单调递增
func (p *PriceTable) Validate() error {
	if len(p.A) != len(p.Timestamps) || len(p.B) != len(p.Timestamps) {
		return fmt.Errorf("price table length mismatch: ts=%d A=%d B=%d", len(p.Timestamps), len(p.A), len(p.B))
	}
	for i := 1; i < len(p.Timestamps); i++ {
		if !p.Timestamps[i].After(p.Timestamps[i-1]) {
			return fmt.Errorf("timestamps not strictly increasing at row %d (%s)", i, p.Timestamps[i].Format(time.RFC3339))
		}
	}
	return nil
}

// SeriesA 品种 A 价格序列
func (p *PriceTable) SeriesA() stats.Series {
	return stats.NewSeries("A", p.Timestamps, p.A)
}

// SeriesB 品种 B 价格序列
func (p *PriceTable) SeriesB() stats.Series {
	return stats.NewSeries("B", p.Timestamps, p.B)
}

// Slice 返回 [from, to) 子表
func (p *PriceTable) Slice(from, to int) *PriceTable {
	return &PriceTable{
		SymbolA:    p.SymbolA,
		SymbolB:    p.SymbolB,
		Timestamps: p.Timestamps[from:to],
		A:          p.A[from:to],
		B:          p.B[from:to],
	}
}

// Column 单个品种的原始价格序列
type Column struct {
	Symbol     string
	Timestamps []time.Time
	Prices     []float64
}

// Len 返回点数
func (c Column) Len() int {
	return len(c.Timestamps)
}
