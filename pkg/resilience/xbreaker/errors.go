package xbreaker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSettings 熔断配置非法
	ErrInvalidSettings = errors.New("xbreaker: invalid settings")

	// ErrUnknownStrategy 恢复策略名称无法识别
	ErrUnknownStrategy = errors.New("xbreaker: unknown recovery strategy")
)

// BreakerError 熔断拒绝错误
//
// 包装 ErrOpenState 或 ErrTooManyRequests，并实现 Retryable() 返回 false，
// 重试循环遇到它应立即停止。
type BreakerError struct {
	Err   error  // ErrOpenState 或 ErrTooManyRequests
	Key   string // 操作键
	State State  // 拒绝时的状态
}

// Error 实现 error 接口
func (e *BreakerError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("breaker %s: %v", e.Key, e.Err)
	}
	return e.Err.Error()
}

// Unwrap 实现 errors.Unwrap 接口
func (e *BreakerError) Unwrap() error {
	return e.Err
}

// Retryable 熔断拒绝不可重试
func (e *BreakerError) Retryable() bool {
	return false
}

// rejection 包装 gobreaker 的拒绝错误，状态由错误推出：名额用尽只会发生在半开阶段。
func rejection(key string, err error) *BreakerError {
	state := StateOpen
	if errors.Is(err, ErrTooManyRequests) {
		state = StateHalfOpen
	}
	return &BreakerError{Err: err, Key: key, State: state}
}

// IsOpen 检查错误是否是熔断器打开错误
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpenState)
}

// IsTooManyRequests 检查错误是否是半开名额耗尽错误
func IsTooManyRequests(err error) bool {
	return errors.Is(err, ErrTooManyRequests)
}

// IsBreakerError 检查错误是否是熔断拒绝错误
//
// 示例:
//
//	permit, err := reg.Guard("model-inference")
//	if xbreaker.IsBreakerError(err) {
//	    return fallbackValue, nil
//	}
//	defer func() { permit.Done(err) }()
func IsBreakerError(err error) bool {
	return IsOpen(err) || IsTooManyRequests(err)
}
