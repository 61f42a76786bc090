package xretry

import (
	"context"

	retry "github.com/avast/retry-go/v5"
)

// 设计决策: 只镜像调度器与调用方实际用到的 retry-go API，
// 业务代码无需直接依赖第三方包。
type (
	// Option 是 retry-go 的配置选项类型
	Option = retry.Option

	// DelayContext 提供延迟计算所需的配置值
	DelayContext = retry.DelayContext

	// Timer 表示用于跟踪重试时间的计时器接口
	Timer = retry.Timer
)

// 以下是 retry-go 的配置选项函数
var (
	// Attempts 设置总尝试次数（包含首次尝试），0 表示无限重试
	Attempts = retry.Attempts

	// DelayType 设置延迟类型
	DelayType = retry.DelayType

	// RetryIf 设置重试条件判断函数
	RetryIf = retry.RetryIf

	// OnRetry 设置重试回调函数
	OnRetry = retry.OnRetry

	// Context 设置上下文
	Context = retry.Context

	// WithTimer 设置自定义计时器（主要用于测试）
	WithTimer = retry.WithTimer

	// LastErrorOnly 只返回最后一个错误
	LastErrorOnly = retry.LastErrorOnly

	// Unrecoverable 将错误标记为不可恢复（不再重试）
	Unrecoverable = retry.Unrecoverable

	// IsRecoverable 检查错误是否可恢复
	IsRecoverable = retry.IsRecoverable
)

// DoWithData 执行带重试的操作（有返回值）
//
// 上下文总是第一个选项；opts 中的 RetryIf 覆盖默认的 IsRetryable 判断。
//
// 示例:
//
//	sched := xretry.NewScheduler()
//	v, err := xretry.DoWithData(ctx, call, sched.Options("data-retrieval", xclassify.Classify, nil)...)
func DoWithData[T any](ctx context.Context, fn func() (T, error), opts ...Option) (T, error) {
	all := make([]Option, 0, len(opts)+2)
	all = append(all, Context(ctx), RetryIf(func(err error) bool {
		return IsRecoverable(err) && IsRetryable(err)
	}))
	return retry.NewWithData[T](append(all, opts...)...).Do(fn)
}

// safeIntToUint 将 int 安全转换为 uint，负数返回 0。
func safeIntToUint(n int) uint {
	if n <= 0 {
		return 0
	}
	return uint(n)
}
