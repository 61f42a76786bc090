package xlog

import (
	"fmt"
	"log/slog"
	"time"
)

// 日志中常用的标准字段名。
const (
	KeyError        = "error"
	KeyDuration     = "duration"
	KeyComponent    = "component"
	KeyOperation    = "operation"
	KeyMessageID    = "message_id"
	KeyTraceID      = "trace_id"
	KeySpanID       = "span_id"
	KeyCategory     = "category"
	KeyRecoveryType = "recovery_type"
	KeyAttempt      = "attempt"
	KeyDelay        = "delay"
	KeyState        = "state"
)

// Err 创建错误属性；err 为 nil 时返回空属性（会被 handler 忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性，输出人类可读格式（如 "1.5s"）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Delay 创建退避延迟属性
func Delay(d time.Duration) slog.Attr {
	return slog.String(KeyDelay, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名属性
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Category 创建错误分类属性，参数通常是 xclassify.Category。
func Category(c fmt.Stringer) slog.Attr {
	if c == nil {
		return slog.Attr{}
	}
	return slog.String(KeyCategory, c.String())
}

// RecoveryType 创建恢复策略属性
func RecoveryType(name string) slog.Attr {
	return slog.String(KeyRecoveryType, name)
}

// Attempt 创建尝试序号属性
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// State 创建熔断状态属性
func State(s fmt.Stringer) slog.Attr {
	if s == nil {
		return slog.Attr{}
	}
	return slog.String(KeyState, s.String())
}
