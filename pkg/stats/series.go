package stats

import (
	"math"
	"time"
)

// Series 与价格表逐点对齐的时间序列
// 构造后不再修改，所有变换都返回新的 Series
type Series struct {
	Name       string
	Timestamps []time.Time
	Data       []float64
}

// NewSeries 创建新的时间序列（数据会被复制）
func NewSeries(name string, timestamps []time.Time, data []float64) Series {
	d := make([]float64, len(data))
	copy(d, data)
	return Series{Name: name, Timestamps: timestamps, Data: d}
}

// Len 返回数据点数量
func (s Series) Len() int {
	return len(s.Data)
}

// At 返回第 i 个值
func (s Series) At(i int) float64 {
	return s.Data[i]
}

// Last 获取最新的数据点
func (s Series) Last() (float64, bool) {
	if len(s.Data) == 0 {
		return 0, false
	}
	return s.Data[len(s.Data)-1], true
}

// GetLast 获取最近 n 个数据点的副本
func (s Series) GetLast(n int) []float64 {
	if n <= 0 || n > len(s.Data) {
		n = len(s.Data)
	}
	result := make([]float64, n)
	copy(result, s.Data[len(s.Data)-n:])
	return result
}

// Rename 返回同数据的新名称序列
func (s Series) Rename(name string) Series {
	s.Name = name
	return s
}

// Diff 一阶差分，第 0 个点以 0 为前值
func (s Series) Diff() Series {
	out := make([]float64, len(s.Data))
	prev := 0.0
	for i, v := range s.Data {
		out[i] = v - prev
		prev = v
	}
	return Series{Name: s.Name, Timestamps: s.Timestamps, Data: out}
}

// Change 价格变化，第 0 个点为 0（没有前值）
func (s Series) Change() Series {
	out := make([]float64, len(s.Data))
	for i := 1; i < len(s.Data); i++ {
		out[i] = s.Data[i] - s.Data[i-1]
	}
	return Series{Name: s.Name, Timestamps: s.Timestamps, Data: out}
}

// Shift 向后平移 k 个周期，空出的位置填 fill
func (s Series) Shift(k int, fill float64) Series {
	n := len(s.Data)
	out := make([]float64, n)
	for i := range out {
		j := i - k
		if j < 0 || j >= n {
			out[i] = fill
			continue
		}
		out[i] = s.Data[j]
	}
	return Series{Name: s.Name, Timestamps: s.Timestamps, Data: out}
}

// CumSum 累计求和
func (s Series) CumSum() Series {
	out := make([]float64, len(s.Data))
	var acc float64
	for i, v := range s.Data {
		acc += v
		out[i] = acc
	}
	return Series{Name: s.Name, Timestamps: s.Timestamps, Data: out}
}

// Sum 求和（NaN 会传播）
func (s Series) Sum() float64 {
	var acc float64
	for _, v := range s.Data {
		acc += v
	}
	return acc
}

// HasNaN 是否包含 NaN
func (s Series) HasNaN() bool {
	for _, v := range s.Data {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
