// Package signal turns a z-score series into a position regime with
// entry/exit hysteresis, a hard stop-loss and a post-exit cooldown.
package signal

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourusername/pairs-backtest/pkg/spread"
)

// Position 期望持仓方向
type Position int8

const (
	Short Position = -1 // 做空 spread: 空 A，多 β·B
	Flat  Position = 0
	Long  Position = 1 // 做多 spread: 多 A，空 β·B
)

// String returns the string representation of Position
func (p Position) String() string {
	switch p {
	case Long:
		return "Long"
	case Short:
		return "Short"
	case Flat:
		return "Flat"
	default:
		return "Unknown"
	}
}

// Float 转为 +1/0/-1
func (p Position) Float() float64 {
	return float64(p)
}

// Event 单步状态转移的原因，用于日志和成交归因
type Event int

const (
	EventNone     Event = iota // 状态不变
	EventCooldown              // 冷却期内强制空仓
	EventNoSignal              // z-score 无效
	EventStopLoss              // |z| 触及 MaxAbsZ
	EventEnter                 // 开仓
	EventExit                  // 正常平仓
)

// String returns the string representation of Event
func (e Event) String() string {
	switch e {
	case EventCooldown:
		return "cooldown"
	case EventNoSignal:
		return "no_signal"
	case EventStopLoss:
		return "stop_loss"
	case EventEnter:
		return "enter"
	case EventExit:
		return "exit"
	default:
		return "none"
	}
}

// ErrInvalidParams 参数越界
var ErrInvalidParams = errors.New("invalid signal params")

// Params 信号参数
type Params struct {
	Entry    float64  // 开仓阈值 |z| >= Entry
	Exit     float64  // 平仓阈值
	MaxAbsZ  *float64 // 止损阈值，nil 表示不启用
	Cooldown int      // 平仓/止损后的冷却周期数
}

// Validate 检查参数范围（状态机本身不做检查）
func (p Params) Validate() error {
	if !(p.Entry > 0) || math.IsInf(p.Entry, 0) {
		return fmt.Errorf("%w: entry must be > 0, got %v", ErrInvalidParams, p.Entry)
	}
	if !(p.Exit >= 0) || math.IsInf(p.Exit, 0) {
		return fmt.Errorf("%w: exit must be >= 0, got %v", ErrInvalidParams, p.Exit)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must be >= 0, got %d", ErrInvalidParams, p.Cooldown)
	}
	if p.MaxAbsZ != nil && !(*p.MaxAbsZ > p.Entry) {
		return fmt.Errorf("%w: max_abs_z (%v) must be > entry (%v)", ErrInvalidParams, *p.MaxAbsZ, p.Entry)
	}
	return nil
}

// State 状态机状态
type State struct {
	Position Position
	Cooldown int // 剩余冷却周期
}

// Next 纯状态转移，按优先级依次判断:
// 冷却 > z 无效 > 止损 > 迟滞开平仓 > 平仓后进入冷却
func (s State) Next(z spread.ZScore, p Params) (State, Event) {
	if s.Cooldown > 0 {
		return State{Position: Flat, Cooldown: s.Cooldown - 1}, EventCooldown
	}

	if !z.Valid {
		// 冷却计数保持不变（此时必为 0）
		return State{Position: Flat, Cooldown: s.Cooldown}, EventNoSignal
	}

	if p.MaxAbsZ != nil && math.Abs(z.Value) >= *p.MaxAbsZ {
		return State{Position: Flat, Cooldown: p.Cooldown}, EventStopLoss
	}

	next := State{Position: s.Position}
	event := EventNone

	switch s.Position {
	case Flat:
		if z.Value <= -p.Entry {
			next.Position = Long
			event = EventEnter
		} else if z.Value >= p.Entry {
			next.Position = Short
			event = EventEnter
		}
	case Long:
		if z.Value >= p.Exit {
			next.Position = Flat
			event = EventExit
		}
	case Short:
		if z.Value <= -p.Exit {
			next.Position = Flat
			event = EventExit
		}
	}

	if event == EventExit && p.Cooldown > 0 {
		next.Cooldown = p.Cooldown
	}
	return next, event
}

// Generate 逐点运行状态机，输出与 z 等长
// 第 0 个点恒为 Flat 且不参与状态转移
func Generate(z []spread.ZScore, p Params) []Position {
	positions, _ := GenerateWithEvents(z, p)
	return positions
}

// GenerateWithEvents 同 Generate，额外返回每一步的转移原因
func GenerateWithEvents(z []spread.ZScore, p Params) ([]Position, []Event) {
	positions := make([]Position, len(z))
	events := make([]Event, len(z))

	var state State
	for i := 1; i < len(z); i++ {
		state, events[i] = state.Next(z[i], p)
		positions[i] = state.Position
	}
	return positions, events
}

// Count 统计各方向的周期数
func Count(positions []Position) (long, short, flat int) {
	for _, pos := range positions {
		switch pos {
		case Long:
			long++
		case Short:
			short++
		default:
			flat++
		}
	}
	return
}
