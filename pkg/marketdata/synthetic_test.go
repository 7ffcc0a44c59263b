package marketdata

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateSynthetic(t *testing.T) {
	opts := DefaultSyntheticOptions()
	opts.Days = 30

	a, b, err := GenerateSynthetic(opts)
	if err != nil {
		t.Fatalf("GenerateSynthetic failed: %v", err)
	}
	if a.Len() != 30 || b.Len() != 30 {
		t.Fatalf("expected 30 rows, got %d / %d", a.Len(), b.Len())
	}
	for i, ts := range a.Timestamps {
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			t.Errorf("row %d falls on a weekend: %s", i, ts)
		}
		if i > 0 && !ts.After(a.Timestamps[i-1]) {
			t.Errorf("timestamps not increasing at %d", i)
		}
		if b.Prices[i] <= 0 {
			t.Errorf("non-positive B price at %d: %f", i, b.Prices[i])
		}
	}
	if a.Symbol != "SYN_A" || b.Symbol != "SYN_B" {
		t.Errorf("unexpected symbols %q / %q", a.Symbol, b.Symbol)
	}

	// 相同种子结果一致
	a2, _, _ := GenerateSynthetic(opts)
	for i := range a.Prices {
		if a.Prices[i] != a2.Prices[i] {
			t.Fatalf("same seed produced different prices at %d", i)
		}
	}
}

func TestGenerateSynthetic_Invalid(t *testing.T) {
	opts := DefaultSyntheticOptions()
	opts.Days = 0
	if _, _, err := GenerateSynthetic(opts); err == nil {
		t.Error("expected error for zero days")
	}

	opts = DefaultSyntheticOptions()
	opts.StartPrice = -1
	if _, _, err := GenerateSynthetic(opts); err == nil {
		t.Error("expected error for negative start price")
	}
}

func TestGenerateSynthetic_LoadPair(t *testing.T) {
	dir := t.TempDir()
	a, b, err := GenerateSynthetic(DefaultSyntheticOptions())
	if err != nil {
		t.Fatal(err)
	}
	pathA := filepath.Join(dir, "a.csv")
	pathB := filepath.Join(dir, "b.csv")
	if err := WriteCSV(pathA, DefaultPriceColumn, a); err != nil {
		t.Fatal(err)
	}
	if err := WriteCSV(pathB, DefaultPriceColumn, b); err != nil {
		t.Fatal(err)
	}

	table, err := LoadPair(DataSettings{Source: "csv", CSVA: pathA, CSVB: pathB})
	if err != nil {
		t.Fatalf("LoadPair failed: %v", err)
	}
	if table.Len() != a.Len() {
		t.Errorf("expected %d aligned rows, got %d", a.Len(), table.Len())
	}
	if table.A[10] != a.Prices[10] {
		t.Errorf("price mismatch: %f vs %f", table.A[10], a.Prices[10])
	}
}
