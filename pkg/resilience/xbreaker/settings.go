package xbreaker

import (
	"fmt"
	"strings"
	"time"
)

// Strategy 熔断后的恢复策略，只影响半开探测名额的发放速度。
type Strategy string

const (
	// StrategyGradual 半开阶段发放 1 个探测名额
	StrategyGradual Strategy = "gradual"

	// StrategyCautious 1 个探测名额，打开时长按 CautiousMultiplier 放大
	StrategyCautious Strategy = "cautious"

	// StrategyImmediate 立即发放全部探测名额
	StrategyImmediate Strategy = "immediate"
)

// 默认值
const (
	DefaultFailureThreshold     = 5
	DefaultTimeout              = 60 * time.Second
	DefaultHalfOpenTestRequests = 3
	DefaultCautiousMultiplier   = 2.0
)

// ParseStrategy 解析恢复策略，兼容 "gradual_recovery" 这类带后缀的写法。
// 空串解析为 StrategyGradual。
func ParseStrategy(s string) (Strategy, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_recovery")
	switch Strategy(name) {
	case "", StrategyGradual:
		return StrategyGradual, nil
	case StrategyCautious:
		return StrategyCautious, nil
	case StrategyImmediate:
		return StrategyImmediate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// UnmarshalText 实现 encoding.TextUnmarshaler，配置文件中可直接写策略名。
func (s *Strategy) UnmarshalText(data []byte) error {
	parsed, err := ParseStrategy(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Settings 单个操作键的熔断配置。零值字段在注册时由默认配置补齐。
type Settings struct {
	// FailureThreshold 连续失败多少次后打开
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" koanf:"failure_threshold"`

	// Timeout 打开状态持续多久后进入半开
	Timeout time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`

	// HalfOpenTestRequests 半开阶段的最大并发探测数（immediate 策略使用）
	HalfOpenTestRequests int `json:"half_open_test_requests" yaml:"half_open_test_requests" koanf:"half_open_test_requests"`

	// Strategy 恢复策略
	Strategy Strategy `json:"strategy" yaml:"strategy" koanf:"strategy"`

	// CautiousMultiplier cautious 策略下打开时长的放大倍数
	CautiousMultiplier float64 `json:"cautious_multiplier" yaml:"cautious_multiplier" koanf:"cautious_multiplier"`
}

// DefaultSettings 返回默认熔断配置
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold:     DefaultFailureThreshold,
		Timeout:              DefaultTimeout,
		HalfOpenTestRequests: DefaultHalfOpenTestRequests,
		Strategy:             StrategyGradual,
		CautiousMultiplier:   DefaultCautiousMultiplier,
	}
}

// Merge 用 base 补齐 s 中的零值字段
func (s Settings) Merge(base Settings) Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = base.FailureThreshold
	}
	if s.Timeout == 0 {
		s.Timeout = base.Timeout
	}
	if s.HalfOpenTestRequests == 0 {
		s.HalfOpenTestRequests = base.HalfOpenTestRequests
	}
	if s.Strategy == "" {
		s.Strategy = base.Strategy
	}
	if s.CautiousMultiplier == 0 {
		s.CautiousMultiplier = base.CautiousMultiplier
	}
	return s
}

// Validate 校验配置
func (s Settings) Validate() error {
	if s.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure_threshold must be >= 1, got %d", ErrInvalidSettings, s.FailureThreshold)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidSettings, s.Timeout)
	}
	if s.HalfOpenTestRequests < 1 {
		return fmt.Errorf("%w: half_open_test_requests must be >= 1, got %d", ErrInvalidSettings, s.HalfOpenTestRequests)
	}
	if s.CautiousMultiplier < 1 {
		return fmt.Errorf("%w: cautious_multiplier must be >= 1, got %g", ErrInvalidSettings, s.CautiousMultiplier)
	}
	if _, err := ParseStrategy(string(s.Strategy)); err != nil {
		return err
	}
	return nil
}

// ProbeQuota 半开阶段允许的并发探测数
func (s Settings) ProbeQuota() int {
	if s.Strategy == StrategyImmediate && s.HalfOpenTestRequests > 0 {
		return s.HalfOpenTestRequests
	}
	return 1
}

// OpenTimeout 打开状态的实际持续时长
func (s Settings) OpenTimeout() time.Duration {
	if s.Strategy == StrategyCautious && s.CautiousMultiplier > 1 {
		return time.Duration(float64(s.Timeout) * s.CautiousMultiplier)
	}
	return s.Timeout
}
