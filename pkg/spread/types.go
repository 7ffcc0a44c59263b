// Package spread builds the hedged spread of a pair and its rolling z-score
package spread

import "math"

// ZScore 标准化偏离值
// Valid=false 表示"无信号"（窗口未满、窗口含缺失值或标准差为 0），
// 此时 Value 没有意义
type ZScore struct {
	Value float64
	Valid bool
}

// Invalid 无效 z-score
var Invalid = ZScore{}

// Of 构造有效 z-score，NaN/Inf 视为无效
func Of(v float64) ZScore {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Invalid
	}
	return ZScore{Value: v, Valid: true}
}

// Float 转换为浮点数，无效时返回 NaN（用于输出）
func (z ZScore) Float() float64 {
	if !z.Valid {
		return math.NaN()
	}
	return z.Value
}

// Stats spread 统计摘要
type Stats struct {
	Current     float64 // 最新 spread 值
	Mean        float64 // 最近窗口均值
	Std         float64 // 最近窗口样本标准差
	ZScore      ZScore  // 最新 z-score
	Correlation float64 // A/B 价格相关系数
	HedgeRatio  float64 // 对冲比率（Beta）
	HalfLife    float64 // 均值回归半衰期（周期数），无法估计时为 0
}
