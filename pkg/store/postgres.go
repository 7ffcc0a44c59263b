// Package store 把回测结果持久化到 PostgreSQL
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/yourusername/pairs-backtest/pkg/backtest"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	symbol_a     TEXT NOT NULL,
	symbol_b     TEXT NOT NULL,
	period_start TEXT NOT NULL,
	period_end   TEXT NOT NULL,
	periods      INTEGER NOT NULL,
	beta         DOUBLE PRECISION NOT NULL,
	beta_source  TEXT NOT NULL,
	p_value      DOUBLE PRECISION NOT NULL,
	final_equity DOUBLE PRECISION NOT NULL,
	sharpe       DOUBLE PRECISION NOT NULL,
	max_drawdown DOUBLE PRECISION NOT NULL,
	total_trades INTEGER NOT NULL,
	config       JSONB,
	summary      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_name ON backtest_runs (name, created_at DESC);
`

const selectColumns = `id, name, symbol_a, symbol_b, period_start, period_end, periods, beta, beta_source,
	p_value, final_equity, sharpe, max_drawdown, total_trades, config, summary, created_at`

// Config 连接池配置
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

// RunRecord backtest_runs 表的一行
type RunRecord struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	SymbolA     string    `db:"symbol_a"`
	SymbolB     string    `db:"symbol_b"`
	PeriodStart string    `db:"period_start"`
	PeriodEnd   string    `db:"period_end"`
	Periods     int       `db:"periods"`
	Beta        float64   `db:"beta"`
	BetaSource  string    `db:"beta_source"`
	PValue      float64   `db:"p_value"`
	FinalEquity float64   `db:"final_equity"`
	Sharpe      float64   `db:"sharpe"`
	MaxDrawdown float64   `db:"max_drawdown"`
	TotalTrades int       `db:"total_trades"`
	Config      []byte    `db:"config"`
	Summary     []byte    `db:"summary"`
	CreatedAt   time.Time `db:"created_at"`
}

// NewRunRecord 由运行结果构造记录，非有限数值置 0
func NewRunRecord(out *backtest.RunOutput) (RunRecord, error) {
	s := out.Summary().Sanitized()
	summary, err := json.Marshal(s)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to marshal summary: %w", err)
	}
	var config []byte
	if out.Config != nil {
		if config, err = json.Marshal(out.Config); err != nil {
			return RunRecord{}, fmt.Errorf("failed to marshal config: %w", err)
		}
	}
	return RunRecord{
		ID:          s.RunID,
		Name:        s.Name,
		SymbolA:     s.SymbolA,
		SymbolB:     s.SymbolB,
		PeriodStart: s.Start,
		PeriodEnd:   s.End,
		Periods:     s.Periods,
		Beta:        s.Beta,
		BetaSource:  s.BetaSource,
		PValue:      s.PValue,
		FinalEquity: s.FinalEquity,
		Sharpe:      s.Metrics.SharpeRatio,
		MaxDrawdown: s.Metrics.MaxDrawdown,
		TotalTrades: s.Metrics.TotalTrades,
		Config:      config,
		Summary:     summary,
	}, nil
}

// DecodeSummary 解析 summary 列
func (r RunRecord) DecodeSummary() (backtest.Summary, error) {
	var s backtest.Summary
	err := json.Unmarshal(r.Summary, &s)
	return s, err
}

// PostgresStore 实现 backtest.RunStore
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore 包装已有连接（测试时传入 sqlmock）
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// Open 连接数据库并检查连通性
func Open(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresStore(db, cfg.QueryTimeout), nil
}

// Close 关闭连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema 建表（幂等）
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun 写入一条记录，同一 id 重复写入时覆盖
func (s *PostgresStore) SaveRun(ctx context.Context, rec RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO backtest_runs
		(id, name, symbol_a, symbol_b, period_start, period_end, periods, beta, beta_source,
		 p_value, final_equity, sharpe, max_drawdown, total_trades, config, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			final_equity = EXCLUDED.final_equity,
			sharpe = EXCLUDED.sharpe,
			max_drawdown = EXCLUDED.max_drawdown,
			total_trades = EXCLUDED.total_trades,
			config = EXCLUDED.config,
			summary = EXCLUDED.summary`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.SymbolA, rec.SymbolB, rec.PeriodStart, rec.PeriodEnd, rec.Periods,
		rec.Beta, rec.BetaSource, rec.PValue, rec.FinalEquity, rec.Sharpe, rec.MaxDrawdown,
		rec.TotalTrades, rec.Config, rec.Summary)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// Record 实现 backtest.RunStore
func (s *PostgresStore) Record(ctx context.Context, out *backtest.RunOutput) error {
	rec, err := NewRunRecord(out)
	if err != nil {
		return err
	}
	return s.SaveRun(ctx, rec)
}

// GetRun 按 id 读取
func (s *PostgresStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rec RunRecord
	err := s.db.GetContext(ctx, &rec, `SELECT `+selectColumns+` FROM backtest_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns 按时间倒序列出最近的记录
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var recs []RunRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT `+selectColumns+` FROM backtest_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return recs, nil
}
