package xrecovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
)

// Type 恢复策略类型
type Type string

// 内置恢复策略
const (
	TypeModelFallback     Type = "model-fallback"
	TypeComputeRetry      Type = "compute-retry"
	TypeNetworkWait       Type = "network-wait"
	TypeCredentialRefresh Type = "credential-refresh"
	TypeRetryBackoff      Type = "retry-backoff"
	TypeGeneric           Type = "generic"
)

// Types 返回全部内置类型。
func Types() []Type {
	return []Type{
		TypeModelFallback, TypeComputeRetry, TypeNetworkWait,
		TypeCredentialRefresh, TypeRetryBackoff, TypeGeneric,
	}
}

// 兼容旧消息中的类型名。
var typeAliases = map[string]Type{
	"bedrock_fallback":    TypeModelFallback,
	"model_fallback":      TypeModelFallback,
	"lambda_recovery":     TypeComputeRetry,
	"compute_retry":       TypeComputeRetry,
	"network_recovery":    TypeNetworkWait,
	"network_wait":        TypeNetworkWait,
	"credential_refresh":  TypeCredentialRefresh,
	"refresh_credentials": TypeCredentialRefresh,
	"retry_with_backoff":  TypeRetryBackoff,
	"retry_backoff":       TypeRetryBackoff,
	"generic_retry":       TypeGeneric,
}

// ParseType 解析恢复类型名（大小写不敏感，接受旧别名）。
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Types() {
		if string(t) == name {
			return t, nil
		}
	}
	if t, ok := typeAliases[name]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// UnmarshalText 实现 encoding.TextUnmarshaler，便于配置直接解析。
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Call 是被保护的原始调用。
type Call func(ctx context.Context) (any, error)

// Request 一次恢复请求
type Request struct {
	// Operation 原始操作名
	Operation string

	// Category 触发恢复的错误类别
	Category xclassify.Category

	// RetryCount 该失败已被升级重投的次数，只由升级管理器递增
	RetryCount int

	// Err 触发恢复的最后一次错误
	Err error

	// Call 原始调用，compute-retry / retry-backoff / generic 会重调它
	Call Call

	// Model 附带的模型调用，model-fallback 需要
	Model *ModelRequest

	// Context 随升级消息透传的业务上下文
	Context map[string]string
}

// Outcome 恢复结果
type Outcome struct {
	Success bool
	Detail  string

	// Value 恢复成功时产生的结果（替代模型输出、重调返回值等）
	Value any
}

// Handler 单个恢复策略
//
// 实现必须可重复调用；error 只在 ctx 取消时返回。
type Handler interface {
	Recover(ctx context.Context, req *Request) (Outcome, error)
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, req *Request) (Outcome, error)

// Recover 实现 Handler
func (f HandlerFunc) Recover(ctx context.Context, req *Request) (Outcome, error) {
	return f(ctx, req)
}

func failed(format string, args ...any) Outcome {
	return Outcome{Detail: fmt.Sprintf(format, args...)}
}
