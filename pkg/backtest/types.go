package backtest

import (
	"time"

	"github.com/yourusername/pairs-backtest/pkg/coint"
	"github.com/yourusername/pairs-backtest/pkg/signal"
	"github.com/yourusername/pairs-backtest/pkg/spread"
	"github.com/yourusername/pairs-backtest/pkg/stats"
)

// Result 模拟输出，所有序列与价格表逐点对齐
type Result struct {
	Timestamps []time.Time

	PnL         stats.Series // 净 PnL = 持仓 PnL - 成本 - 融券费
	Equity      stats.Series // 累计净 PnL
	PositionPnL stats.Series // 前一周期持仓 × 本周期价格变化
	Costs       stats.Series // 每周期交易成本
	Borrow      stats.Series // 每周期融券费
	AShares     stats.Series
	BShares     stats.Series
	ATrades     stats.Series
	BTrades     stats.Series

	Executed []signal.Position // 延迟后的执行信号
}

// Len 返回周期数
func (r *Result) Len() int {
	return len(r.Timestamps)
}

// FinalEquity 最终权益（累计 PnL）
func (r *Result) FinalEquity() float64 {
	v, _ := r.Equity.Last()
	return v
}

// TotalCosts 累计交易成本
func (r *Result) TotalCosts() float64 {
	return r.Costs.Sum()
}

// TotalBorrow 累计融券费
func (r *Result) TotalBorrow() float64 {
	return r.Borrow.Sum()
}

// Trade 一次完整的开平仓（按执行信号划分）
type Trade struct {
	Direction  signal.Position
	EntryTime  time.Time
	ExitTime   time.Time
	EntryIndex int
	ExitIndex  int // 平仓所在周期；未平仓时为最后一个周期
	Bars       int
	PnL        float64 // 持仓期间（含平仓周期）的净 PnL
	Open       bool    // 回测结束时仍未平仓
}

// Metrics 绩效统计
type Metrics struct {
	TotalPNL     float64 `json:"total_pnl"`
	TotalReturn  float64 `json:"total_return"`
	AnnualReturn float64 `json:"annual_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"` // 美元，<= 0
	CalmarRatio  float64 `json:"calmar_ratio"`
	HitRate      float64 `json:"hit_rate"` // PnL > 0 的周期占比

	TotalCosts  float64 `json:"total_costs"`
	TotalBorrow float64 `json:"total_borrow"`

	TotalTrades  int     `json:"total_trades"`
	WinTrades    int     `json:"win_trades"`
	LossTrades   int     `json:"loss_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	MaxWin       float64 `json:"max_win"`
	MaxLoss      float64 `json:"max_loss"`
	AvgBars      float64 `json:"avg_bars"`

	LongPeriods  int `json:"long_periods"`
	ShortPeriods int `json:"short_periods"`
	FlatPeriods  int `json:"flat_periods"`
}

// RunOutput 一次完整回测的全部结果
type RunOutput struct {
	RunID     string
	Name      string
	SymbolA   string
	SymbolB   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Config     *Config
	Coint      coint.Result
	Beta       float64
	BetaSource string // "engle_granger" 或 "config"
	Spread     spread.Stats

	ZScores []spread.ZScore
	Signal  []signal.Position
	Events  []signal.Event
	Result  *Result
	Trades  []Trade
	Metrics Metrics

	Files []string // 写出的报告文件
}

// Summary 用于 JSON/NATS/gRPC 输出的扁平摘要
type Summary struct {
	RunID       string  `json:"run_id"`
	Name        string  `json:"name"`
	SymbolA     string  `json:"symbol_a"`
	SymbolB     string  `json:"symbol_b"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Periods     int     `json:"periods"`
	Beta        float64 `json:"beta"`
	BetaSource  string  `json:"beta_source"`
	PValue      float64 `json:"p_value"`
	ADFStat     float64 `json:"adf_stat"`
	R2          float64 `json:"r2"`
	HalfLife    float64 `json:"half_life"`
	FinalEquity float64 `json:"final_equity"`
	Metrics     Metrics `json:"metrics"`
}

// Summary 生成扁平摘要
func (o *RunOutput) Summary() Summary {
	s := Summary{
		RunID:       o.RunID,
		Name:        o.Name,
		SymbolA:     o.SymbolA,
		SymbolB:     o.SymbolB,
		Beta:        o.Beta,
		BetaSource:  o.BetaSource,
		PValue:      o.Coint.PValue,
		ADFStat:     o.Coint.ADFStat,
		R2:          o.Coint.R2,
		HalfLife:    o.Spread.HalfLife,
		Metrics:     o.Metrics,
	}
	if o.Result != nil {
		s.Periods = o.Result.Len()
		s.FinalEquity = o.Result.FinalEquity()
		if n := o.Result.Len(); n > 0 {
			s.Start = o.Result.Timestamps[0].Format("2006-01-02")
			s.End = o.Result.Timestamps[n-1].Format("2006-01-02")
		}
	}
	return s
}
