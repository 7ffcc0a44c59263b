package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultPriceColumn 默认价格列
const DefaultPriceColumn = "Adj Close"

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// ErrMissingColumn CSV 缺少所需列
var ErrMissingColumn = errors.New("missing column")

// LoadCSV 读取单个品种 CSV（需要 Date 列和价格列）
// 空价格行被跳过，由对齐时的前向填充补齐
func LoadCSV(path, priceCol string) (Column, error) {
	file, err := os.Open(path)
	if err != nil {
		return Column{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	col, err := ReadCSV(file, priceCol)
	if err != nil {
		return Column{}, fmt.Errorf("read %s: %w", path, err)
	}
	if col.Symbol == "" {
		col.Symbol = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return col, nil
}

// ReadCSV 从 reader 解析价格列
func ReadCSV(r io.Reader, priceCol string) (Column, error) {
	if priceCol == "" {
		priceCol = DefaultPriceColumn
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Column{}, fmt.Errorf("read header: %w", err)
	}

	dateIdx, priceIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case strings.EqualFold(name, "date"):
			dateIdx = i
		case name == priceCol:
			priceIdx = i
		}
	}
	if dateIdx < 0 {
		return Column{}, fmt.Errorf("%w 'Date'; columns: %v", ErrMissingColumn, header)
	}
	if priceIdx < 0 {
		return Column{}, fmt.Errorf("%w '%s'; columns: %v", ErrMissingColumn, priceCol, header)
	}

	byDate := make(map[time.Time]float64)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return Column{}, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseDate(record[dateIdx])
		if err != nil {
			return Column{}, fmt.Errorf("line %d: %w", line, err)
		}

		raw := strings.TrimSpace(record[priceIdx])
		if raw == "" || strings.EqualFold(raw, "null") || strings.EqualFold(raw, "nan") {
			continue
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Column{}, fmt.Errorf("line %d: invalid price %q: %w", line, raw, err)
		}
		// 重复日期保留最后一条
		byDate[ts] = price
	}

	col := Column{
		Timestamps: make([]time.Time, 0, len(byDate)),
		Prices:     make([]float64, 0, len(byDate)),
	}
	for ts := range byDate {
		col.Timestamps = append(col.Timestamps, ts)
	}
	sort.Slice(col.Timestamps, func(i, j int) bool {
		return col.Timestamps[i].Before(col.Timestamps[j])
	})
	for _, ts := range col.Timestamps {
		col.Prices = append(col.Prices, byDate[ts])
	}
	return col, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

// WriteCSV 写出 Date + priceCol 两列的 CSV
func WriteCSV(path, priceCol string, col Column) error {
	if priceCol == "" {
		priceCol = DefaultPriceColumn
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Date", priceCol}); err != nil {
		return err
	}
	for i, ts := range col.Timestamps {
		row := []string{
			ts.Format("2006-01-02"),
			strconv.FormatFloat(col.Prices[i], 'f', 4, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// LoadWide 读取多个 CSV，key 为品种名
func LoadWide(paths map[string]string, priceCol string) (map[string]Column, error) {
	out := make(map[string]Column, len(paths))
	for name, path := range paths {
		col, err := LoadCSV(path, priceCol)
		if err != nil {
			return nil, err
		}
		col.Symbol = name
		out[name] = col
	}
	return out, nil
}
