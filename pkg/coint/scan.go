package coint

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/pairs-backtest/pkg/marketdata"
)

// MinScanRows 少于该行数的配对被跳过
const MinScanRows = 50

// PairResult 单个配对的检验结果
type PairResult struct {
	A    string `json:"a"`
	B    string `json:"b"`
	Rows int    `json:"rows"`
	Result
}

// ScanOptions 扫描选项
type ScanOptions struct {
	Workers int            // <=0 时使用 CPU 数，最多 16
	Logger  zerolog.Logger // 零值不输出
}

type pairJob struct {
	a, b string
}

// ScanPairs 对所有无序配对做 Engle-Granger 检验，按 p 值升序返回
// 每个配对只使用两者都有数据的日期
func ScanPairs(ctx context.Context, columns map[string]marketdata.Column, opts ScanOptions) ([]PairResult, error) {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) < 2 {
		return nil, fmt.Errorf("need at least 2 series to scan, got %d", len(names))
	}

	var jobs []pairJob
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			jobs = append(jobs, pairJob{a: names[i], b: names[j]})
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > 16 {
		workers = 16
	}

	logger := opts.Logger
	logger.Info().Int("series", len(names)).Int("pairs", len(jobs)).Int("workers", workers).Msg("scanning pairs")

	results := make([]PairResult, 0, len(jobs))
	var resultsMutex sync.Mutex
	var wg sync.WaitGroup

	// Create worker pool
	semaphore := make(chan struct{}, workers)
	startTime := time.Now()

	for _, job := range jobs {
		wg.Add(1)
		go func(job pairJob) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-semaphore }()

			a, b := intersect(columns[job.a], columns[job.b])
			if len(a) < MinScanRows {
				logger.Debug().Str("a", job.a).Str("b", job.b).Int("rows", len(a)).Msg("skipping pair: too few rows")
				return
			}

			res, err := EngleGranger(a, b)
			if err != nil {
				logger.Warn().Err(err).Str("a", job.a).Str("b", job.b).Msg("engle-granger failed")
				return
			}

			resultsMutex.Lock()
			results = append(results, PairResult{A: job.a, B: job.b, Rows: len(a), Result: res})
			resultsMutex.Unlock()
		}(job)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		pi, pj := sortablePValue(results[i].PValue), sortablePValue(results[j].PValue)
		if pi != pj {
			return pi < pj
		}
		if results[i].A != results[j].A {
			return results[i].A < results[j].A
		}
		return results[i].B < results[j].B
	})

	logger.Info().Int("tested", len(results)).Dur("elapsed", time.Since(startTime)).Msg("scan completed")
	return results, nil
}

// NaN p 值排在最后
func sortablePValue(p float64) float64 {
	if math.IsNaN(p) {
		return math.Inf(1)
	}
	return p
}

// intersect 取两个序列共同日期上的价格
func intersect(a, b marketdata.Column) ([]float64, []float64) {
	index := make(map[time.Time]float64, b.Len())
	for i, ts := range b.Timestamps {
		index[ts] = b.Prices[i]
	}
	var outA, outB []float64
	for i, ts := range a.Timestamps {
		if v, ok := index[ts]; ok {
			outA = append(outA, a.Prices[i])
			outB = append(outB, v)
		}
	}
	return outA, outB
}
