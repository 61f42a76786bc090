package xrun

import (
	"context"
	"errors"
	"time"
)

// Looper 阻塞式消费循环，xredisq.Consumer 满足此接口。
type Looper interface {
	ConsumeLoop(ctx context.Context) error
}

// LooperFunc 把需要额外参数的消费循环适配为 Looper：
//
//	xrun.Loop(xrun.LooperFunc(func(ctx context.Context) error {
//	    return kafkaConsumer.ConsumeLoop(ctx, handler)
//	}))
type LooperFunc func(ctx context.Context) error

// ConsumeLoop 实现 Looper。
func (f LooperFunc) ConsumeLoop(ctx context.Context) error { return f(ctx) }

// Loop 把消费循环包装为服务函数。ctx 取消导致的退出视为正常结束。
func Loop(l Looper) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if l == nil {
			return ErrNilLooper
		}
		err := l.ConsumeLoop(ctx)
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil
		}
		return err
	}
}

// Ticker 返回周期执行 fn 的服务函数，fn 返回错误时服务结束。
// immediate 为 true 时启动后先执行一次。
func Ticker(interval time.Duration, immediate bool, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		// 已取消的 context 不触发副作用
		if immediate {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx); err != nil {
				return err
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// OnShutdown 返回在 Group 取消后执行清理的服务函数。
//
// fn 收到一个独立的 context（不继承取消），timeout > 0 时带超时。
// 用于关闭生产者、提交位点等必须在消费循环退出后完成的动作。
func OnShutdown(timeout time.Duration, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if fn == nil {
			return ErrNilFunc
		}
		<-ctx.Done()
		cleanupCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			cleanupCtx, cancel = context.WithTimeout(cleanupCtx, timeout)
			defer cancel()
		}
		return fn(cleanupCtx)
	}
}
