package marketdata

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Frequency 对齐频率
type Frequency string

const (
	FreqBusinessDay Frequency = "B"
	FreqDaily       Frequency = "D"
	FreqNone        Frequency = "none"
)

// ParseFrequency 解析频率字符串，空串视为工作日
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "B":
		return FreqBusinessDay, nil
	case "D":
		return FreqDaily, nil
	case "NONE":
		return FreqNone, nil
	default:
		return "", fmt.Errorf("unsupported frequency %q (want B, D or none)", s)
	}
}

// AlignOptions 对齐选项
type AlignOptions struct {
	Freq  Frequency
	Start time.Time // 零值表示不限制
	End   time.Time
}

// Align 外连接两个品种后按频率重采样并前向填充
// 重采样日历上不存在的观测点被丢弃（不参与前向填充），
// 前向填充后仍缺失的行被删除，NaN 观测按缺失处理
func Align(a, b Column, opts AlignOptions) (*PriceTable, error) {
	if a.Len() == 0 || b.Len() == 0 {
		return nil, fmt.Errorf("empty input: %s=%d rows, %s=%d rows", a.Symbol, a.Len(), b.Symbol, b.Len())
	}
	if opts.Freq == "" {
		opts.Freq = FreqBusinessDay
	}

	valuesA := indexByTime(a, opts.Freq)
	valuesB := indexByTime(b, opts.Freq)

	calendar := buildCalendar(unionTimes(valuesA, valuesB), opts.Freq)

	table := &PriceTable{SymbolA: a.Symbol, SymbolB: b.Symbol}
	lastA, lastB := math.NaN(), math.NaN()
	for _, ts := range calendar {
		if v, ok := valuesA[ts]; ok && !math.IsNaN(v) {
			lastA = v
		}
		if v, ok := valuesB[ts]; ok && !math.IsNaN(v) {
			lastB = v
		}
		if math.IsNaN(lastA) || math.IsNaN(lastB) {
			continue
		}
		if !opts.Start.IsZero() && ts.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && ts.After(opts.End) {
			continue
		}
		table.Timestamps = append(table.Timestamps, ts)
		table.A = append(table.A, lastA)
		table.B = append(table.B, lastB)
	}

	if table.Len() == 0 {
		return nil, fmt.Errorf("no overlapping rows between %s and %s", a.Symbol, b.Symbol)
	}
	return table, nil
}

func indexByTime(c Column, freq Frequency) map[time.Time]float64 {
	out := make(map[time.Time]float64, c.Len())
	for i, ts := range c.Timestamps {
		if freq != FreqNone {
			ts = truncateDay(ts)
		}
		out[ts] = c.Prices[i]
	}
	return out
}

func unionTimes(maps ...map[time.Time]float64) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, m := range maps {
		for ts := range m {
			seen[ts] = struct{}{}
		}
	}
	out := make([]time.Time, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func buildCalendar(union []time.Time, freq Frequency) []time.Time {
	if freq == FreqNone || len(union) == 0 {
		return union
	}
	first, last := union[0], union[len(union)-1]
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if freq == FreqBusinessDay && isWeekend(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func truncateDay(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isWeekend(ts time.Time) bool {
	wd := ts.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DataSettings 数据源配置（对应 YAML 中的 data 段）
type DataSettings struct {
	Source   string `yaml:"source" json:"source"`
	SymbolA  string `yaml:"symbol_a" json:"symbol_a"`
	SymbolB  string `yaml:"symbol_b" json:"symbol_b"`
	CSVA     string `yaml:"csv_a" json:"csv_a"`
	CSVB     string `yaml:"csv_b" json:"csv_b"`
	PriceCol string `yaml:"price_col" json:"price_col"`
	Start    string `yaml:"start" json:"start"`
	End      string `yaml:"end" json:"end"`
	Freq     string `yaml:"freq" json:"freq"`
}

// AlignOptions 由配置生成对齐选项
func (d DataSettings) AlignOptions() (AlignOptions, error) {
	freq, err := ParseFrequency(d.Freq)
	if err != nil {
		return AlignOptions{}, err
	}
	start, err := ParseDate(d.Start)
	if err != nil {
		return AlignOptions{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseDate(d.End)
	if err != nil {
		return AlignOptions{}, fmt.Errorf("end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return AlignOptions{}, fmt.Errorf("end %s before start %s", d.End, d.Start)
	}
	return AlignOptions{Freq: freq, Start: start, End: end}, nil
}

// LoadPair 按配置读取两个 CSV 并对齐，只支持 csv 数据源
func LoadPair(cfg DataSettings) (*PriceTable, error) {
	if cfg.Source != "" && !strings.EqualFold(cfg.Source, "csv") {
		return nil, fmt.Errorf("unsupported data source %q (only csv)", cfg.Source)
	}
	if cfg.CSVA == "" || cfg.CSVB == "" {
		return nil, fmt.Errorf("csv source requires csv_a and csv_b")
	}
	opts, err := cfg.AlignOptions()
	if err != nil {
		return nil, err
	}

	a, err := LoadCSV(cfg.CSVA, cfg.PriceCol)
	if err != nil {
		return nil, err
	}
	b, err := LoadCSV(cfg.CSVB, cfg.PriceCol)
	if err != nil {
		return nil, err
	}
	if cfg.SymbolA != "" {
		a.Symbol = cfg.SymbolA
	}
	if cfg.SymbolB != "" {
		b.Symbol = cfg.SymbolB
	}

	table, err := Align(a, b, opts)
	if err != nil {
		return nil, fmt.Errorf("align %s/%s: %w", a.Symbol, b.Symbol, err)
	}
	return table, nil
}

// AlignWide 将多个品种对齐到同一日历，返回按名称排序的列
func AlignWide(cols map[string]Column, opts AlignOptions) ([]string, []time.Time, [][]float64, error) {
	if len(cols) < 2 {
		return nil, nil, nil, fmt.Errorf("need at least 2 columns, got %d", len(cols))
	}
	if opts.Freq == "" {
		opts.Freq = FreqBusinessDay
	}

	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	indexed := make([]map[time.Time]float64, len(names))
	for i, name := range names {
		indexed[i] = indexByTime(cols[name], opts.Freq)
	}
	calendar := buildCalendar(unionTimes(indexed...), opts.Freq)

	last := make([]float64, len(names))
	for i := range last {
		last[i] = math.NaN()
	}
	var timestamps []time.Time
	data := make([][]float64, len(names))

	for _, ts := range calendar {
		complete := true
		for i := range names {
			if v, ok := indexed[i][ts]; ok && !math.IsNaN(v) {
				last[i] = v
			}
			if math.IsNaN(last[i]) {
				complete = false
			}
		}
		if !complete {
			continue
		}
		if !opts.Start.IsZero() && ts.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && ts.After(opts.End) {
			continue
		}
		timestamps = append(timestamps, ts)
		for i := range names {
			data[i] = append(data[i], last[i])
		}
	}
	return names, timestamps, data, nil
}

// ParseDate 解析 YYYY-MM-DD 等常见日期格式，空串返回零值
func ParseDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return parseDate(raw)
}
