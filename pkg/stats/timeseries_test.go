package stats

import (
	"math"
	"testing"
)

// 测试辅助函数：比较浮点数是否近似相等
func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{
			name:     "Simple average",
			data:     []float64{1, 2, 3, 4, 5},
			expected: 3.0,
		},
		{
			name:     "Empty array",
			data:     []float64{},
			expected: 0.0,
		},
		{
			name:     "Single value",
			data:     []float64{5.5},
			expected: 5.5,
		},
		{
			name:     "Negative values",
			data:     []float64{-2, -4, -6},
			expected: -4.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Mean(tt.data)
			if !almostEqual(result, tt.expected, 1e-10) {
				t.Errorf("Mean() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestVariance(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{
			name:     "Sample variance",
			data:     []float64{2, 4, 4, 4, 5, 5, 7, 9},
			expected: 32.0 / 7.0,
		},
		{
			name:     "No variance",
			data:     []float64{5, 5, 5, 5},
			expected: 0.0,
		},
		{
			name:     "Single value",
			data:     []float64{3},
			expected: 0.0,
		},
		{
			name:     "Empty array",
			data:     []float64{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Variance(tt.data)
			if !almostEqual(result, tt.expected, 1e-10) {
				t.Errorf("Variance() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStdDev(t *testing.T) {
	// [1..5] 样本标准差 = sqrt(2.5)
	result := StdDev([]float64{1, 2, 3, 4, 5})
	if !almostEqual(result, math.Sqrt(2.5), 1e-10) {
		t.Errorf("StdDev() = %v, want %v", result, math.Sqrt(2.5))
	}
}

func TestCalculateRollingStats(t *testing.T) {
	data := []float64{100, 1, 2, 3, 4, 5}

	s := CalculateRollingStats(data, 5)
	if s.Count != 5 {
		t.Fatalf("Count = %d, want 5", s.Count)
	}
	if !almostEqual(s.Mean, 3.0, 1e-10) {
		t.Errorf("Mean = %v, want 3", s.Mean)
	}
	if !almostEqual(s.Variance, 2.5, 1e-10) {
		t.Errorf("Variance = %v, want 2.5", s.Variance)
	}

	// period 超过长度时使用全部数据
	all := CalculateRollingStats(data, 100)
	if all.Count != len(data) {
		t.Errorf("Count = %d, want %d", all.Count, len(data))
	}

	if empty := CalculateRollingStats(nil, 3); empty.Count != 0 {
		t.Errorf("empty Count = %d, want 0", empty.Count)
	}
}

func TestCorrelation(t *testing.T) {
	tests := []struct {
		name     string
		x, y     []float64
		expected float64
	}{
		{"Perfect positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1.0},
		{"Perfect negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1.0},
		{"Constant", []float64{1, 1, 1}, []float64{1, 2, 3}, 0.0},
		{"Length mismatch", []float64{1, 2}, []float64{1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Correlation(tt.x, tt.y)
			if !almostEqual(result, tt.expected, 1e-10) {
				t.Errorf("Correlation() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLinearRegression(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{3, 5, 7, 9, 11} // y = 2x + 1

	reg, ok := LinearRegression(x, y)
	if !ok {
		t.Fatal("LinearRegression returned ok=false")
	}
	if !almostEqual(reg.Slope, 2.0, 1e-10) {
		t.Errorf("Slope = %v, want 2", reg.Slope)
	}
	if !almostEqual(reg.Intercept, 1.0, 1e-10) {
		t.Errorf("Intercept = %v, want 1", reg.Intercept)
	}
	if !almostEqual(reg.R2, 1.0, 1e-10) {
		t.Errorf("R2 = %v, want 1", reg.R2)
	}
	for i, r := range reg.Residuals {
		if !almostEqual(r, 0, 1e-10) {
			t.Errorf("Residuals[%d] = %v, want 0", i, r)
		}
	}

	// x 无方差
	if _, ok := LinearRegression([]float64{1, 1, 1}, []float64{1, 2, 3}); ok {
		t.Error("expected ok=false for constant x")
	}
}
