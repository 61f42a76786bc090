package mqcore

import (
	"context"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

// ConsumeFunc 消费函数签名。
// 返回 error 时会触发退避重试，返回 nil 时重置退避。
type ConsumeFunc func(ctx context.Context) error

// ConsumeLoopOptions 消费循环配置选项。
type ConsumeLoopOptions struct {
	// Backoff 退避曲线，默认 DefaultBackoff()。
	Backoff xretry.Curve

	// OnError 错误回调，可选。
	// 在每次消费错误时调用，用于记录日志或指标。
	OnError func(err error)
}

// ConsumeLoopOption 配置函数类型。
type ConsumeLoopOption func(*ConsumeLoopOptions)

// WithBackoff 设置退避曲线，非法曲线被忽略。
func WithBackoff(curve xretry.Curve) ConsumeLoopOption {
	return func(o *ConsumeLoopOptions) {
		if curve.Validate() == nil {
			o.Backoff = curve
		}
	}
}

// WithOnError 设置错误回调。
func WithOnError(onError func(err error)) ConsumeLoopOption {
	return func(o *ConsumeLoopOptions) {
		o.OnError = onError
	}
}

// DefaultBackoff 返回默认退避曲线：100ms 起，每次翻倍，上限 30s。
func DefaultBackoff() xretry.Curve {
	return xretry.Curve{
		Base:       100 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
	}
}

// RunConsumeLoop 运行消费循环，使用退避曲线处理错误。
//
// 循环逻辑：
//  1. 调用 consume 函数消费消息
//  2. 如果成功（err == nil），重置退避计数器
//  3. 如果失败（err != nil），按 Backoff.Raw(连续失败次数-1) 等待后重试
//  4. 循环直到 ctx 取消
//
// ctx 取消时返回 ctx.Err()。
func RunConsumeLoop(ctx context.Context, consume ConsumeFunc, opts ...ConsumeLoopOption) error {
	options := &ConsumeLoopOptions{
		Backoff: DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(options)
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := consume(ctx); err == nil {
			failures = 0
			continue
		} else if options.OnError != nil {
			options.OnError(err)
		}

		delay := options.Backoff.Raw(failures)
		failures++
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
