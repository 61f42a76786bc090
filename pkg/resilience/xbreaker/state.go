package xbreaker

import (
	"github.com/sony/gobreaker/v2"
)

// State 熔断器状态，沿用 gobreaker 的取值与字符串表示
// （"closed" / "half-open" / "open"）。
type State = gobreaker.State

// 熔断器状态常量
const (
	// StateClosed 关闭状态（正常）
	StateClosed = gobreaker.StateClosed

	// StateHalfOpen 半开状态（探测）
	StateHalfOpen = gobreaker.StateHalfOpen

	// StateOpen 打开状态（熔断）
	StateOpen = gobreaker.StateOpen
)

// 熔断器拒绝错误
var (
	// ErrTooManyRequests 半开状态下探测名额已用尽
	ErrTooManyRequests = gobreaker.ErrTooManyRequests

	// ErrOpenState 熔断器处于打开状态
	ErrOpenState = gobreaker.ErrOpenState
)
