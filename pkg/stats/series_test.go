package stats

import (
	"math"
	"testing"
	"time"
)

func testTimestamps(n int) []time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]time.Time, n)
	for i := range ts {
		ts[i] = start.AddDate(0, 0, i)
	}
	return ts
}

func TestSeries_Diff(t *testing.T) {
	s := NewSeries("x", testTimestamps(4), []float64{2, 5, 5, 1})
	d := s.Diff()

	want := []float64{2, 3, 0, -4}
	for i, v := range want {
		if d.At(i) != v {
			t.Errorf("Diff()[%d] = %v, want %v", i, d.At(i), v)
		}
	}
}

func TestSeries_Change(t *testing.T) {
	s := NewSeries("x", testTimestamps(3), []float64{100, 101, 99})
	c := s.Change()

	want := []float64{0, 1, -2}
	for i, v := range want {
		if c.At(i) != v {
			t.Errorf("Change()[%d] = %v, want %v", i, c.At(i), v)
		}
	}
}

func TestSeries_Shift(t *testing.T) {
	s := NewSeries("x", testTimestamps(4), []float64{1, 2, 3, 4})

	tests := []struct {
		name string
		k    int
		want []float64
	}{
		{"No shift", 0, []float64{1, 2, 3, 4}},
		{"Lag one", 1, []float64{0, 1, 2, 3}},
		{"Lag beyond length", 5, []float64{0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Shift(tt.k, 0)
			for i, v := range tt.want {
				if got.At(i) != v {
					t.Errorf("Shift(%d)[%d] = %v, want %v", tt.k, i, got.At(i), v)
				}
			}
		})
	}
}

func TestSeries_CumSumAndSum(t *testing.T) {
	s := NewSeries("pnl", testTimestamps(4), []float64{1, -2, 3, 0.5})
	cs := s.CumSum()

	last, ok := cs.Last()
	if !ok || !almostEqual(last, 2.5, 1e-12) {
		t.Errorf("CumSum().Last() = %v, want 2.5", last)
	}
	if !almostEqual(s.Sum(), 2.5, 1e-12) {
		t.Errorf("Sum() = %v, want 2.5", s.Sum())
	}
}

func TestSeries_NewSeriesCopies(t *testing.T) {
	data := []float64{1, 2}
	s := NewSeries("x", testTimestamps(2), data)
	data[0] = 99

	if s.At(0) != 1 {
		t.Errorf("NewSeries should copy input, got %v", s.At(0))
	}
}

func TestSeries_HasNaN(t *testing.T) {
	s := NewSeries("x", testTimestamps(3), []float64{1, math.NaN(), 3})
	if !s.HasNaN() {
		t.Error("HasNaN() = false, want true")
	}
	if got := s.GetLast(2); len(got) != 2 || got[1] != 3 {
		t.Errorf("GetLast(2) = %v", got)
	}
}
