package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Curve 单个错误类别的退避曲线
type Curve struct {
	// Base 第 0 次重试的基础延迟
	Base time.Duration `json:"base_delay" yaml:"base_delay" koanf:"base_delay"`

	// Max 延迟上限（抖动前）
	Max time.Duration `json:"max_delay" yaml:"max_delay" koanf:"max_delay"`

	// Multiplier 每次重试的放大倍数
	Multiplier float64 `json:"multiplier" yaml:"multiplier" koanf:"multiplier"`
}

// Validate 校验曲线参数
func (c Curve) Validate() error {
	if c.Base <= 0 {
		return fmt.Errorf("%w: base_delay must be positive, got %s", ErrInvalidCurve, c.Base)
	}
	if c.Max < c.Base {
		return fmt.Errorf("%w: max_delay %s is below base_delay %s", ErrInvalidCurve, c.Max, c.Base)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be >= 1, got %g", ErrInvalidCurve, c.Multiplier)
	}
	return nil
}

// Raw 返回未加抖动的延迟：min(base * multiplier^attempt, max)
func (c Curve) Raw(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(c.Base) * math.Pow(c.Multiplier, float64(attempt))

	// 设计决策: attempt 极大时 math.Pow 溢出为 +Inf，NaN/Inf/负数一律视为已达上限。
	if math.IsNaN(delay) || math.IsInf(delay, 0) || delay < 0 || delay >= float64(c.Max) {
		return c.Max
	}
	return time.Duration(delay)
}

// Jittered 在 Raw 基础上叠加对称抖动并施加下限。
// r 取值 [0,1)，jitter 取值 [0,1]，结果 = max(floor, exp * (1 + (2r-1) * jitter))。
func (c Curve) Jittered(attempt int, jitter, r float64, floor time.Duration) time.Duration {
	exp := float64(c.Raw(attempt))
	delay := exp * (1 + (r*2-1)*jitter)
	if math.IsNaN(delay) || delay < float64(floor) {
		return floor
	}
	return time.Duration(delay)
}

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// RandomFloat64 返回 [0,1) 的随机数，基于 crypto/rand。
func RandomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 失败时返回 0.5，即不加抖动
		return 0.5
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
