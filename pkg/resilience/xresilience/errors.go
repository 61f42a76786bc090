package xresilience

import (
	"errors"
	"fmt"
	"strings"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
)

var (
	// ErrUnavailable 熔断器拒绝了调用（快速失败），与分类后的业务错误区分开。
	ErrUnavailable = errors.New("xresilience: operation unavailable")

	// ErrNilCall 未提供受保护调用
	ErrNilCall = errors.New("xresilience: nil call")

	// ErrEmptyOperation 操作键为空
	ErrEmptyOperation = errors.New("xresilience: empty operation key")

	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = errors.New("xresilience: invalid config")

	// ErrPanic 受保护调用发生 panic，按 GENERIC 分类
	ErrPanic = errors.New("xresilience: call panicked")

	// ErrResultType Execute 的结果类型与调用方期望不符
	ErrResultType = errors.New("xresilience: unexpected result type")
)

// Failure 受保护调用的终态失败：本地重试与恢复都已用尽，失败已交给升级管理器。
//
// 调用方拿到的是分类后的类别与恢复历史，而不是原始堆栈。
type Failure struct {
	// Operation 操作键
	Operation string

	// Category 最后一次失败的类别
	Category xclassify.Category

	// Attempts 本次调用中受保护调用实际执行的次数
	Attempts int

	// RecoveryType 选用的恢复策略
	RecoveryType xrecovery.Type

	// Recovery 恢复结果说明，恢复未执行时为空
	Recovery string

	// History 此前各次升级重投的记录
	History []xescalate.Attempt

	// Escalation 升级结果；升级关闭或投递失败时为 nil
	Escalation *xescalate.Outcome

	// Err 最后一次失败的错误（升级投递失败时与投递错误合并）
	Err error
}

// Error 实现 error 接口
func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "xresilience: %s failed after %d attempt(s) [%s]", f.Operation, f.Attempts, f.Category)
	if f.Escalation != nil {
		fmt.Fprintf(&b, ", %s", f.Escalation.Kind)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

// Unwrap 实现 errors.Unwrap 接口
func (f *Failure) Unwrap() error { return f.Err }

// Is 使 errors.Is(err, xclassify.ErrNetwork) 等类别判断成立。
func (f *Failure) Is(target error) bool {
	return target == f.Category.Sentinel()
}

// Retryable 终态失败不可重试，重投已由升级管理器接管。
func (f *Failure) Retryable() bool { return false }

// AsFailure 从错误链中取出 *Failure。
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
