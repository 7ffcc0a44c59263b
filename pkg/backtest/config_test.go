package backtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60, cfg.Strategy.Lookback)
	assert.Equal(t, 2.0, cfg.Strategy.Entry)
	require.NotNil(t, cfg.Strategy.MaxAbsZ)
	assert.Equal(t, 4.0, *cfg.Strategy.MaxAbsZ)
	assert.Nil(t, cfg.Strategy.Beta)
	assert.Equal(t, 1_000_000.0, cfg.Execution.Capital)
	assert.Equal(t, 1, cfg.Execution.SignalDelay)
	assert.Nil(t, cfg.Execution.MaxGross)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "pair.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "xom_cvx", cfg.Name)
	assert.Equal(t, "XOM", cfg.Data.SymbolA)
	assert.Equal(t, "data/CVX.csv", cfg.Data.CSVB)
	assert.Equal(t, 40, cfg.Strategy.Lookback)
	assert.Equal(t, 2.5, cfg.Strategy.Entry)
	assert.Nil(t, cfg.Strategy.MaxAbsZ, "null should disable the stop-loss")
	assert.Equal(t, 2, cfg.Execution.SignalDelay)
	require.NotNil(t, cfg.Execution.MaxGross)
	assert.Equal(t, 400000.0, *cfg.Execution.MaxGross)
	assert.False(t, cfg.Output.SaveSeries)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// 未出现的字段保留默认值
	assert.Equal(t, "pairsbt.results", cfg.Engine.NATSSubject)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseConfig_JSON(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"name": "grpc", "strategy": {"lookback": 20, "beta": 1.25}}`))
	require.NoError(t, err)

	assert.Equal(t, "grpc", cfg.Name)
	assert.Equal(t, 20, cfg.Strategy.Lookback)
	require.NotNil(t, cfg.Strategy.Beta)
	assert.Equal(t, 1.25, *cfg.Strategy.Beta)
	assert.Equal(t, 2.0, cfg.Strategy.Entry)
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig([]byte("strategy: [unclosed"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"Empty name", func(c *Config) { c.Name = "" }, "name is required"},
		{"Name with separator", func(c *Config) { c.Name = "../escaped" }, "may only contain"},
		{"Absolute name", func(c *Config) { c.Name = "/tmp/x" }, "may only contain"},
		{"Dot-dot name", func(c *Config) { c.Name = ".." }, "may only contain"},
		{"Lookback too small", func(c *Config) { c.Strategy.Lookback = 1 }, "lookback"},
		{"Zero entry", func(c *Config) { c.Strategy.Entry = 0 }, "entry must be > 0"},
		{"Negative exit", func(c *Config) { c.Strategy.Exit = -1 }, "exit must be >= 0"},
		{"Negative cooldown", func(c *Config) { c.Strategy.Cooldown = -1 }, "cooldown"},
		{"Stop-loss below entry", func(c *Config) { v := 1.0; c.Strategy.MaxAbsZ = &v }, "max_abs_z (1) must be > entry (2)"},
		{"Stop-loss equal to entry", func(c *Config) { v := 2.0; c.Strategy.MaxAbsZ = &v }, "max_abs_z (2) must be > entry (2)"},
		{"Negative tc", func(c *Config) { c.Execution.TCBps = -0.1 }, "tc_bps"},
		{"Negative slippage", func(c *Config) { c.Execution.SlippageBps = -1 }, "slippage_bps"},
		{"Negative borrow", func(c *Config) { c.Execution.ShortBorrowAPR = -0.01 }, "short_borrow_apr"},
		{"Zero capital", func(c *Config) { c.Execution.Capital = 0 }, "capital"},
		{"Negative delay", func(c *Config) { c.Execution.SignalDelay = -1 }, "signal_delay"},
		{"Zero periods per year", func(c *Config) { c.Execution.PeriodsPerYear = 0 }, "periods_per_year"},
		{"Zero max gross", func(c *Config) { v := 0.0; c.Execution.MaxGross = &v }, "max_gross"},
		{"Bad frequency", func(c *Config) { c.Data.Freq = "W" }, ""},
		{"Bad start date", func(c *Config) { c.Data.Start = "2020/13/45" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			if tt.wantMsg != "" {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
		})
	}
}

func TestConfig_ValidateAcceptsFileSafeNames(t *testing.T) {
	for _, name := range []string{"xom_cvx", "BRK.B_SPY", "pair-2024", "..x"} {
		cfg := DefaultConfig()
		cfg.Name = name
		assert.NoError(t, cfg.Validate(), name)
	}
}

func TestParseConfig_RejectsInvalid(t *testing.T) {
	_, err := ParseConfig([]byte("execution:\n  capital: -5\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "backtest.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("example config not present")
	}
	_, err := LoadConfig(path)
	assert.NoError(t, err)
}

func TestExecutionConfig_CostRate(t *testing.T) {
	e := ExecutionConfig{TCBps: 10, SlippageBps: 5}
	assert.InDelta(t, 0.0015, e.CostRate(), 1e-15)
}
