package backtest

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/pairs-backtest/pkg/marketdata"
	"github.com/yourusername/pairs-backtest/pkg/signal"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

// name 同时用作结果子目录和文件名前缀，只允许单个路径段
var validName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Config represents the pairs backtest configuration
type Config struct {
	Name      string                  `yaml:"name" json:"name"`
	Data      marketdata.DataSettings `yaml:"data" json:"data"`
	Strategy  StrategySettings        `yaml:"strategy" json:"strategy"`
	Execution ExecutionConfig         `yaml:"execution" json:"execution"`
	Output    OutputSettings          `yaml:"output" json:"output"`
	Engine    EngineSettings          `yaml:"engine" json:"engine"`
	Logging   LoggingSettings         `yaml:"logging" json:"logging"`
}

// StrategySettings contains signal parameters
type StrategySettings struct {
	Lookback int      `yaml:"lookback" json:"lookback"`
	Entry    float64  `yaml:"entry" json:"entry"`
	Exit     float64  `yaml:"exit" json:"exit"`
	MaxAbsZ  *float64 `yaml:"max_abs_z" json:"max_abs_z"` // null 关闭止损
	Cooldown int      `yaml:"cooldown" json:"cooldown"`
	Beta     *float64 `yaml:"beta" json:"beta"` // 设置后覆盖协整估计的对冲比率
}

// SignalParams 转换为状态机参数
func (s StrategySettings) SignalParams() signal.Params {
	return signal.Params{
		Entry:    s.Entry,
		Exit:     s.Exit,
		MaxAbsZ:  s.MaxAbsZ,
		Cooldown: s.Cooldown,
	}
}

// ExecutionConfig contains execution and cost settings
type ExecutionConfig struct {
	TCBps          float64  `yaml:"tc_bps" json:"tc_bps"`
	SlippageBps    float64  `yaml:"slippage_bps" json:"slippage_bps"`
	ShortBorrowAPR float64  `yaml:"short_borrow_apr" json:"short_borrow_apr"`
	Capital        float64  `yaml:"capital" json:"capital"`
	SignalDelay    int      `yaml:"signal_delay" json:"signal_delay"`
	PeriodsPerYear int      `yaml:"periods_per_year" json:"periods_per_year"`
	MaxGross       *float64 `yaml:"max_gross" json:"max_gross"` // 总敞口上限（美元），null 不限制
}

// OutputSettings contains output settings
type OutputSettings struct {
	ResultDir      string `yaml:"result_dir" json:"result_dir"`
	SaveSeries     bool   `yaml:"save_series" json:"save_series"`
	GenerateReport bool   `yaml:"generate_report" json:"generate_report"`
}

// EngineSettings contains optional transport and persistence endpoints
type EngineSettings struct {
	NATSURL     string `yaml:"nats_url" json:"nats_url"`
	NATSSubject string `yaml:"nats_subject" json:"nats_subject"`
	DatabaseDSN string `yaml:"database_dsn" json:"database_dsn"`
}

// LoggingSettings contains logger settings
type LoggingSettings struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	maxAbsZ := 4.0
	return &Config{
		Name: "pair",
		Data: marketdata.DataSettings{
			Source:   "csv",
			PriceCol: marketdata.DefaultPriceColumn,
			Freq:     string(marketdata.FreqBusinessDay),
		},
		Strategy: StrategySettings{
			Lookback: 60,
			Entry:    2.0,
			Exit:     0.0,
			MaxAbsZ:  &maxAbsZ,
			Cooldown: 2,
		},
		Execution: DefaultExecutionConfig(),
		Output: OutputSettings{
			ResultDir:      "backtest_results",
			SaveSeries:     true,
			GenerateReport: true,
		},
		Engine: EngineSettings{
			NATSSubject: "pairsbt.results",
		},
		Logging: LoggingSettings{
			Level:   "info",
			Console: true,
		},
	}
}

// DefaultExecutionConfig 默认执行参数
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		TCBps:          1.0,
		SlippageBps:    0.5,
		ShortBorrowAPR: 0.02,
		Capital:        1_000_000,
		SignalDelay:    1,
		PeriodsPerYear: 252,
	}
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig 解析 YAML（或 JSON）并覆盖默认值，然后校验
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if !validName.MatchString(c.Name) || c.Name == "." || c.Name == ".." {
		return fmt.Errorf("%w: name %q may only contain letters, digits, '.', '_' and '-'", ErrInvalidConfig, c.Name)
	}
	if c.Strategy.Lookback < 2 {
		return fmt.Errorf("%w: strategy.lookback must be >= 2, got %d", ErrInvalidConfig, c.Strategy.Lookback)
	}
	if err := c.Strategy.SignalParams().Validate(); err != nil {
		return fmt.Errorf("%w: strategy: %v", ErrInvalidConfig, err)
	}
	if c.Strategy.Beta != nil && !isFinite(*c.Strategy.Beta) {
		return fmt.Errorf("%w: strategy.beta must be finite", ErrInvalidConfig)
	}
	if err := c.Execution.Validate(); err != nil {
		return err
	}
	if _, err := c.Data.AlignOptions(); err != nil {
		return fmt.Errorf("%w: data: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate 校验执行参数
func (e ExecutionConfig) Validate() error {
	rates := []struct {
		name  string
		value float64
	}{
		{"tc_bps", e.TCBps},
		{"slippage_bps", e.SlippageBps},
		{"short_borrow_apr", e.ShortBorrowAPR},
	}
	for _, r := range rates {
		if !(r.value >= 0) || math.IsInf(r.value, 0) {
			return fmt.Errorf("%w: execution.%s must be >= 0, got %v", ErrInvalidConfig, r.name, r.value)
		}
	}

	if !(e.Capital > 0) || math.IsInf(e.Capital, 0) {
		return fmt.Errorf("%w: execution.capital must be positive, got %v", ErrInvalidConfig, e.Capital)
	}
	if e.SignalDelay < 0 {
		return fmt.Errorf("%w: execution.signal_delay must be >= 0, got %d", ErrInvalidConfig, e.SignalDelay)
	}
	if e.PeriodsPerYear <= 0 {
		return fmt.Errorf("%w: execution.periods_per_year must be positive, got %d", ErrInvalidConfig, e.PeriodsPerYear)
	}
	if e.MaxGross != nil && !(*e.MaxGross > 0) {
		return fmt.Errorf("%w: execution.max_gross must be positive when set, got %v", ErrInvalidConfig, *e.MaxGross)
	}
	return nil
}

// CostRate 每单位成交名义金额的成本率
func (e ExecutionConfig) CostRate() float64 {
	return (e.TCBps + e.SlippageBps) / 10_000.0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
