package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"
)

// ReportGenerator generates backtest reports in various formats
type ReportGenerator struct {
	out       *RunOutput
	outputDir string
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(out *RunOutput, outputDir string) *ReportGenerator {
	return &ReportGenerator{
		out:       out,
		outputDir: outputDir,
	}
}

// prefix 文件名前缀：<name>_<run id 前 8 位>
func (g *ReportGenerator) prefix() string {
	id := g.out.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s", g.out.Name, id)
}

func (g *ReportGenerator) create(suffix string) (*os.File, string, error) {
	// Ensure output directory exists
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(g.outputDir, g.prefix()+suffix)
	file, err := os.Create(filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s: %w", filename, err)
	}
	return file, filename, nil
}

// GenerateAll 按输出配置生成全部文件，返回文件路径
func (g *ReportGenerator) GenerateAll(output OutputSettings) ([]string, error) {
	var steps []func() (string, error)
	if output.GenerateReport {
		steps = append(steps, g.GenerateMarkdown, g.GenerateJSON)
	}
	if output.SaveSeries {
		steps = append(steps, g.SaveSeries, g.SaveTrades)
	}

	files := make([]string, 0, len(steps))
	for _, step := range steps {
		path, err := step()
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}

// GenerateMarkdown generates a markdown report
func (g *ReportGenerator) GenerateMarkdown() (string, error) {
	file, filename, err := g.create("_report.md")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteMarkdown(file, g.out); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return filename, nil
}

// WriteMarkdown writes the markdown content
func WriteMarkdown(w io.Writer, out *RunOutput) error {
	m := out.Metrics
	s := out.Summary()
	cfg := out.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	bw := &errWriter{w: w}
	bw.printf("# 配对交易回测报告: %s\n\n", out.Name)
	bw.printf("**配对**: %s / %s\n", out.SymbolA, out.SymbolB)
	bw.printf("**日期**: %s 至 %s (%d 个周期)\n", s.Start, s.End, s.Periods)
	bw.printf("**运行 ID**: %s\n", out.RunID)
	bw.printf("**资金**: %.2f\n", cfg.Execution.Capital)
	bw.printf("**最终权益 (累计 PnL)**: %.2f\n\n", s.FinalEquity)
	bw.printf("---\n\n")

	// Cointegration
	bw.printf("## 协整检验 (Engle-Granger)\n\n")
	bw.printf("| 指标 | 数值 |\n")
	bw.printf("|------|------|\n")
	bw.printf("| **对冲比率 β** | %.4f (%s) |\n", out.Beta, out.BetaSource)
	bw.printf("| **截距 α** | %.4f |\n", out.Coint.Alpha)
	bw.printf("| **ADF 统计量** | %.3f |\n", out.Coint.ADFStat)
	bw.printf("| **p 值** | %.4f %s |\n", out.Coint.PValue, evaluatePValue(out.Coint.PValue))
	bw.printf("| **R²** | %.3f |\n", out.Coint.R2)
	bw.printf("| **残差标准差** | %.4f |\n", out.Coint.ResidStd)
	bw.printf("| **半衰期 (周期)** | %.1f |\n\n", out.Spread.HalfLife)

	// Performance Summary
	bw.printf("## 绩效摘要\n\n")
	bw.printf("| 指标 | 数值 |\n")
	bw.printf("|------|------|\n")
	bw.printf("| **总收益** | %.2f |\n", m.TotalPNL)
	bw.printf("| **总收益率** | %.2f%% |\n", m.TotalReturn*100)
	bw.printf("| **年化收益率** | %.2f%% |\n", m.AnnualReturn*100)
	bw.printf("| **Sharpe Ratio** | %.2f |\n", m.SharpeRatio)
	bw.printf("| **Sortino Ratio** | %.2f |\n", m.SortinoRatio)
	bw.printf("| **最大回撤 (USD)** | %.2f |\n", m.MaxDrawdown)
	bw.printf("| **Calmar Ratio** | %.2f |\n", m.CalmarRatio)
	bw.printf("| **盈利周期占比** | %.2f%% |\n", m.HitRate*100)
	bw.printf("| **交易成本** | %.2f |\n", m.TotalCosts)
	bw.printf("| **融券费用** | %.2f |\n\n", m.TotalBorrow)

	// Trade Statistics
	bw.printf("## 交易统计\n\n")
	bw.printf("| 指标 | 数值 |\n")
	bw.printf("|------|------|\n")
	bw.printf("| **总交易次数** | %d |\n", m.TotalTrades)
	bw.printf("| **盈利交易** | %d |\n", m.WinTrades)
	bw.printf("| **亏损交易** | %d |\n", m.LossTrades)
	bw.printf("| **胜率** | %.2f%% |\n", m.WinRate*100)
	bw.printf("| **盈利因子** | %.2f |\n", m.ProfitFactor)
	bw.printf("| **平均盈利** | %.2f |\n", m.AvgWin)
	bw.printf("| **平均亏损** | %.2f |\n", m.AvgLoss)
	bw.printf("| **最大单笔盈利** | %.2f |\n", m.MaxWin)
	bw.printf("| **最大单笔亏损** | %.2f |\n", m.MaxLoss)
	bw.printf("| **平均持仓周期** | %.1f |\n", m.AvgBars)
	bw.printf("| **多/空/空仓周期** | %d / %d / %d |\n\n", m.LongPeriods, m.ShortPeriods, m.FlatPeriods)

	// Trades (first 10)
	if len(out.Trades) > 0 {
		bw.printf("## 交易明细（前10笔）\n\n")
		bw.printf("| 方向 | 开仓 | 平仓 | 周期 | PnL |\n")
		bw.printf("|------|------|------|------|-----|\n")

		limit := 10
		if len(out.Trades) < limit {
			limit = len(out.Trades)
		}
		for _, trade := range out.Trades[:limit] {
			exit := trade.ExitTime.Format("2006-01-02")
			if trade.Open {
				exit += " (未平仓)"
			}
			bw.printf("| %s | %s | %s | %d | %.2f |\n",
				trade.Direction, trade.EntryTime.Format("2006-01-02"), exit, trade.Bars, trade.PnL)
		}
		bw.printf("\n")

		if len(out.Trades) > limit {
			bw.printf("*...共 %d 笔，仅显示前 %d 笔*\n\n", len(out.Trades), limit)
		}
	}

	// Risk Analysis
	bw.printf("## 风险分析\n\n")
	bw.printf("- **Sharpe Ratio**: %.2f %s\n", m.SharpeRatio, evaluateSharpe(m.SharpeRatio))
	bw.printf("- **Sortino Ratio**: %.2f %s\n", m.SortinoRatio, evaluateSharpe(m.SortinoRatio))
	bw.printf("- **最大回撤**: %.2f%% of capital %s\n", -m.MaxDrawdown/cfg.Execution.Capital*100,
		evaluateDrawdown(-m.MaxDrawdown/cfg.Execution.Capital))
	bw.printf("- **盈利因子**: %.2f %s\n\n", m.ProfitFactor, evaluateProfitFactor(m.ProfitFactor))

	// Configuration
	bw.printf("## 配置信息\n\n")
	bw.printf("- **lookback**: %d\n", cfg.Strategy.Lookback)
	bw.printf("- **entry / exit**: %.2f / %.2f\n", cfg.Strategy.Entry, cfg.Strategy.Exit)
	if cfg.Strategy.MaxAbsZ != nil {
		bw.printf("- **max_abs_z**: %.2f\n", *cfg.Strategy.MaxAbsZ)
	}
	bw.printf("- **cooldown**: %d\n", cfg.Strategy.Cooldown)
	bw.printf("- **手续费 / 滑点**: %.2f / %.2f bps\n", cfg.Execution.TCBps, cfg.Execution.SlippageBps)
	bw.printf("- **融券年化利率**: %.2f%%\n", cfg.Execution.ShortBorrowAPR*100)
	bw.printf("- **信号延迟**: %d\n", cfg.Execution.SignalDelay)
	if cfg.Execution.MaxGross != nil {
		bw.printf("- **总敞口上限**: %.2f\n", *cfg.Execution.MaxGross)
	}
	bw.printf("\n")

	// Footer
	bw.printf("---\n\n")
	bw.printf("**报告生成时间**: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	bw.printf("**回测耗时**: %v\n", out.Duration)
	return bw.err
}

// errWriter 记录第一个写错误
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// GenerateJSON generates a JSON summary
func (g *ReportGenerator) GenerateJSON() (string, error) {
	data, err := json.MarshalIndent(g.out.Summary().Sanitized(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(g.outputDir, g.prefix()+"_summary.json")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}
	return filename, nil
}

// SaveSeries saves per-period series to CSV
func (g *ReportGenerator) SaveSeries() (string, error) {
	file, filename, err := g.create("_series.csv")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteSeriesCSV(file, g.out); err != nil {
		return "", fmt.Errorf("failed to write series: %w", err)
	}
	return filename, nil
}

// WriteSeriesCSV 逐周期输出价格、z、信号和 PnL 分解
func WriteSeriesCSV(w io.Writer, out *RunOutput) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"Date", "z", "signal", "executed", "A_shares", "B_shares", "A_trades", "B_trades",
		"position_pnl", "costs", "borrow_fee", "pnl", "equity",
	}); err != nil {
		return err
	}

	r := out.Result
	for i := 0; i < r.Len(); i++ {
		z := ""
		if i < len(out.ZScores) && out.ZScores[i].Valid {
			z = formatFloat(out.ZScores[i].Value)
		}
		sig := ""
		if i < len(out.Signal) {
			sig = strconv.Itoa(int(out.Signal[i]))
		}
		row := []string{
			r.Timestamps[i].Format("2006-01-02"),
			z,
			sig,
			strconv.Itoa(int(r.Executed[i])),
			formatFloat(r.AShares.At(i)),
			formatFloat(r.BShares.At(i)),
			formatFloat(r.ATrades.At(i)),
			formatFloat(r.BTrades.At(i)),
			formatFloat(r.PositionPnL.At(i)),
			formatFloat(r.Costs.At(i)),
			formatFloat(r.Borrow.At(i)),
			formatFloat(r.PnL.At(i)),
			formatFloat(r.Equity.At(i)),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveTrades saves round-trip trades to CSV
func (g *ReportGenerator) SaveTrades() (string, error) {
	file, filename, err := g.create("_trades.csv")
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Write([]string{"Direction", "EntryTime", "ExitTime", "Bars", "PNL", "Open"})
	for _, trade := range g.out.Trades {
		writer.Write([]string{
			trade.Direction.String(),
			trade.EntryTime.Format("2006-01-02"),
			trade.ExitTime.Format("2006-01-02"),
			strconv.Itoa(trade.Bars),
			fmt.Sprintf("%.2f", trade.PnL),
			strconv.FormatBool(trade.Open),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to write trades: %w", err)
	}
	return filename, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Sanitized 把 NaN/Inf 替换为 0，保证可以 JSON 编码
func (s Summary) Sanitized() Summary {
	sanitizeFloats(reflect.ValueOf(&s).Elem())
	return s
}

func sanitizeFloats(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		switch field.Kind() {
		case reflect.Float64:
			if f := field.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
				field.SetFloat(0)
			}
		case reflect.Struct:
			sanitizeFloats(field)
		}
	}
}

// Helper functions for evaluation

func evaluatePValue(p float64) string {
	if p < 0.01 {
		return "(强协整)"
	} else if p < 0.05 {
		return "(协整)"
	}
	return "(未通过)"
}

func evaluateSharpe(sharpe float64) string {
	if sharpe > 2.0 {
		return "(优秀)"
	} else if sharpe > 1.0 {
		return "(良好)"
	} else if sharpe > 0.5 {
		return "(一般)"
	}
	return "(较差)"
}

func evaluateDrawdown(dd float64) string {
	if dd < 0.05 {
		return "(优秀)"
	} else if dd < 0.10 {
		return "(良好)"
	} else if dd < 0.20 {
		return "(可接受)"
	}
	return "(风险较高)"
}

func evaluateProfitFactor(pf float64) string {
	if pf > 2.0 {
		return "(优秀)"
	} else if pf > 1.5 {
		return "(良好)"
	} else if pf > 1.0 {
		return "(盈利)"
	}
	return "(亏损)"
}
